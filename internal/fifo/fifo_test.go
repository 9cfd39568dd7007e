package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFifoWrite(t *testing.T) {
	fifo := NewFifo(100)
	res := fifo.Write([]uint32{1, 2, 3, 4, 5})
	assert.Equal(t, 5, res)
	assert.Equal(t, 5, fifo.writePos)
	assert.Equal(t, 0, fifo.readPos)

	res = fifo.Write(make([]uint32, 500))
	assert.Equal(t, 95, res)
	assert.Equal(t, 0, fifo.GetSpace())
	assert.Equal(t, 0, fifo.Write([]uint32{1}))

	// Free up some space by reading then re writing
	fifo.Read(make([]uint32, 10))
	assert.Equal(t, 10, fifo.GetSpace())
	assert.Equal(t, 10, fifo.Write(make([]uint32, 10)))
}

func TestFifoRead(t *testing.T) {
	fifo := NewFifo(100)
	buffer := make([]uint32, 10)
	assert.Equal(t, 0, fifo.Read(buffer))

	fifo.Write([]uint32{1, 2, 3, 4})
	assert.Equal(t, 4, fifo.GetOccupied())
	assert.Equal(t, 4, fifo.Read(buffer))
	assert.Equal(t, []uint32{1, 2, 3, 4}, buffer[:4])
	assert.Equal(t, 0, fifo.GetOccupied())
}

func TestFifoWrapAround(t *testing.T) {
	fifo := NewFifo(4)
	for i := uint32(0); i < 20; i++ {
		assert.Equal(t, 1, fifo.Write([]uint32{i}))
		word, ok := fifo.Pop()
		assert.True(t, ok)
		assert.Equal(t, i, word)
	}
	_, ok := fifo.Pop()
	assert.False(t, ok)
}

func TestFifoReset(t *testing.T) {
	fifo := NewFifo(8)
	fifo.Write([]uint32{1, 2, 3})
	fifo.Reset()
	assert.Equal(t, 0, fifo.GetOccupied())
	assert.Equal(t, 8, fifo.GetSpace())
}
