package virtual

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/samsamfire/gocanfd/pkg/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Relays every message to all other clients, like a virtualcan broker
func startBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)

	var mu sync.Mutex
	clients := map[net.Conn]bool{}
	relay := func(conn net.Conn) {
		defer func() {
			mu.Lock()
			delete(clients, conn)
			mu.Unlock()
			conn.Close()
		}()
		for {
			header := make([]byte, headerSize)
			if _, err := io.ReadFull(conn, header); err != nil {
				return
			}
			body := make([]byte, binary.BigEndian.Uint32(header))
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
			mu.Lock()
			for client := range clients {
				if client != conn {
					_, _ = client.Write(append(header, body...))
				}
			}
			mu.Unlock()
		}
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			clients[conn] = true
			mu.Unlock()
			go relay(conn)
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for client := range clients {
			client.Close()
		}
	})
	return ln.Addr().String()
}

type frameReceiver struct {
	mu     sync.Mutex
	frames []host.Frame
}

func (r *frameReceiver) Handle(frame host.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *frameReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *frameReceiver) received() []host.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]host.Frame(nil), r.frames...)
}

func newConnectedBus(t *testing.T, addr string) *Bus {
	t.Helper()
	bus, err := NewVirtualCanBus(addr)
	require.Nil(t, err)
	require.Nil(t, bus.Connect())
	t.Cleanup(func() { bus.Disconnect() })
	return bus.(*Bus)
}

func TestSerializeFrame(t *testing.T) {
	frame := host.Frame{ID: 0x123 | host.EffFlag, DLC: 3, Data: [8]byte{1, 2, 3}}
	raw, err := serializeFrame(frame)
	assert.Nil(t, err)
	assert.Len(t, raw, headerSize+14)
	assert.EqualValues(t, 14, binary.BigEndian.Uint32(raw))
	assert.Equal(t, []byte{0x80, 0, 0x01, 0x23}, raw[4:8])
	decoded, err := deserializeFrame(raw[headerSize:])
	assert.Nil(t, err)
	assert.Equal(t, frame, *decoded)
}

func TestSendWithoutConnection(t *testing.T) {
	bus, _ := NewVirtualCanBus("127.0.0.1:1")
	err := bus.Send(host.Frame{ID: 0x10})
	assert.ErrorIs(t, err, ErrNoConnection)
	assert.ErrorIs(t, bus.Subscribe(&frameReceiver{}), ErrNoConnection)
}

func TestSendReceive(t *testing.T) {
	addr := startBroker(t)
	sender := newConnectedBus(t, addr)
	receiver := newConnectedBus(t, addr)
	rx := &frameReceiver{}
	require.Nil(t, receiver.Subscribe(rx))
	// let the broker register both clients
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 10; i++ {
		assert.Nil(t, sender.Send(host.Frame{ID: uint32(0x100 + i), DLC: 1, Data: [8]byte{byte(i)}}))
	}
	assert.Eventually(t, func() bool { return rx.count() == 10 }, 2*time.Second, 10*time.Millisecond)
	for i, frame := range rx.received() {
		assert.EqualValues(t, 0x100+i, frame.ID)
		assert.EqualValues(t, i, frame.Data[0])
	}
}

func TestReceiveOwn(t *testing.T) {
	addr := startBroker(t)
	bus := newConnectedBus(t, addr)
	rx := &frameReceiver{}
	require.Nil(t, bus.Subscribe(rx))
	bus.SetReceiveOwn(true)
	assert.Nil(t, bus.Send(host.Frame{ID: 0x7ff, DLC: 0}))
	assert.Equal(t, 1, rx.count())
}

func TestDisconnectStopsReception(t *testing.T) {
	addr := startBroker(t)
	bus := newConnectedBus(t, addr)
	require.Nil(t, bus.Subscribe(&frameReceiver{}))
	assert.Nil(t, bus.Disconnect())
	assert.Nil(t, bus.Disconnect())
	assert.ErrorIs(t, bus.Send(host.Frame{}), ErrNoConnection)
}

func TestRegistered(t *testing.T) {
	bus, err := host.NewBus("virtual", "localhost:18888")
	assert.Nil(t, err)
	assert.IsType(t, &Bus{}, bus)
	assert.Contains(t, host.Interfaces(), "virtualcan")
}
