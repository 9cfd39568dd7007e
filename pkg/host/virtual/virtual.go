package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/samsamfire/gocanfd/pkg/host"
	log "github.com/sirupsen/logrus"
)

// Virtual CAN bus over TCP, used for testing without hardware.
// Frames are relayed to all connected clients by a broker server,
// see https://github.com/windelbouwman/virtualcan

const (
	readTimeout  = 200 * time.Millisecond
	writeTimeout = 10 * time.Millisecond
	headerSize   = 4
	maxMessage   = 64
)

func init() {
	host.RegisterInterface("virtual", NewVirtualCanBus)
	host.RegisterInterface("virtualcan", NewVirtualCanBus)
}

var ErrNoConnection = errors.New("no active connection")

type Bus struct {
	mu            sync.Mutex
	channel       string
	conn          net.Conn
	receiveOwn    bool
	framehandler  host.FrameListener
	stopChan      chan struct{}
	wg            sync.WaitGroup
	isRunning     bool
	errSubscriber bool
}

func NewVirtualCanBus(channel string) (host.Bus, error) {
	return &Bus{channel: channel}, nil
}

// Serialize a frame as a 4 byte big endian length followed by the frame
func serializeFrame(frame host.Frame) ([]byte, error) {
	buffer := new(bytes.Buffer)
	buffer.Write(make([]byte, headerSize))
	err := binary.Write(buffer, binary.BigEndian, frame)
	if err != nil {
		return nil, err
	}
	frameBytes := buffer.Bytes()
	binary.BigEndian.PutUint32(frameBytes, uint32(len(frameBytes)-headerSize))
	return frameBytes, nil
}

func deserializeFrame(buffer []byte) (*host.Frame, error) {
	var frame host.Frame
	err := binary.Read(bytes.NewReader(buffer), binary.BigEndian, &frame)
	if err != nil {
		return nil, err
	}
	return &frame, nil
}

// "Connect" to server e.g. localhost:18888
func (b *Bus) Connect(...any) error {
	conn, err := net.Dial("tcp", b.channel)
	if err != nil {
		return err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return err
		}
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	log.Infof("[HOST][VIRTUAL] connected to %v", b.channel)
	return nil
}

// "Disconnect" from server
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	running := b.isRunning
	conn := b.conn
	b.isRunning = false
	b.conn = nil
	if running {
		close(b.stopChan)
	}
	b.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	b.wg.Wait()
	return err
}

// "Send" implementation of Bus interface
func (b *Bus) Send(frame host.Frame) error {
	b.mu.Lock()
	conn := b.conn
	handler := b.framehandler
	receiveOwn := b.receiveOwn
	b.mu.Unlock()

	if receiveOwn && handler != nil {
		handler.Handle(frame)
	}
	if conn == nil {
		if receiveOwn && handler != nil {
			return nil
		}
		return fmt.Errorf("%w, abort send", ErrNoConnection)
	}
	frameBytes, err := serializeFrame(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = conn.Write(frameBytes)
	return err
}

// "Subscribe" implementation of Bus interface
func (b *Bus) Subscribe(framehandler host.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.framehandler = framehandler
	if b.isRunning {
		return nil
	}
	if b.conn == nil {
		return fmt.Errorf("%w, abort subscribe", ErrNoConnection)
	}
	b.isRunning = true
	b.errSubscriber = false
	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.handleReception(b.conn, b.stopChan)
	return nil
}

// Receive a frame, returns a timeout error when nothing arrived within the read timeout
func (b *Bus) Recv() (*host.Frame, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("%w, abort receive", ErrNoConnection)
	}
	return recv(conn)
}

func recv(conn net.Conn) (*host.Frame, error) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	header := make([]byte, headerSize)
	n, err := io.ReadFull(conn, header)
	if n == 0 && err != nil {
		return nil, err
	}
	// A message has started, finish reading it whatever the deadline
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		if _, err = io.ReadFull(conn, header[n:]); err != nil {
			return nil, err
		}
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxMessage {
		return nil, fmt.Errorf("error deserializing : message length %v exceeds %v", length, maxMessage)
	}
	frameBytes := make([]byte, length)
	if _, err := io.ReadFull(conn, frameBytes); err != nil {
		return nil, fmt.Errorf("error deserializing : expected %v bytes, err : %v", length, err)
	}
	return deserializeFrame(frameBytes)
}

// Handle incoming traffic
func (b *Bus) handleReception(conn net.Conn, stop chan struct{}) {
	defer b.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		frame, err := recv(conn)
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			continue
		}
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			log.Errorf("[HOST][VIRTUAL] listening routine has closed because : %v", err)
			b.mu.Lock()
			b.errSubscriber = true
			b.isRunning = false
			b.mu.Unlock()
			return
		}
		b.mu.Lock()
		handler := b.framehandler
		b.mu.Unlock()
		if handler != nil {
			handler.Handle(*frame)
		}
	}
}

// Deliver sent frames to the local subscriber as well
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receiveOwn = receiveOwn
}
