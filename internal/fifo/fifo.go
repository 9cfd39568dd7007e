package fifo

// Circular Fifo of 32 bit words, used to model the receive FIFO of the controller.
// One slot is always kept free to tell a full fifo from an empty one.
type Fifo struct {
	buffer   []uint32
	writePos int
	readPos  int
}

// NewFifo creates a fifo able to hold size words
func NewFifo(size uint16) *Fifo {
	return &Fifo{
		buffer:   make([]uint32, int(size)+1),
		writePos: 0,
		readPos:  0,
	}
}

func (f *Fifo) Reset() {
	f.readPos = 0
	f.writePos = 0
}

func (f *Fifo) GetSpace() int {
	sizeLeft := f.readPos - f.writePos - 1
	if sizeLeft < 0 {
		sizeLeft += len(f.buffer)
	}
	return sizeLeft
}

func (f *Fifo) GetOccupied() int {
	sizeOccupied := f.writePos - f.readPos
	if sizeOccupied < 0 {
		sizeOccupied += len(f.buffer)
	}
	return sizeOccupied
}

// Write words to fifo and return number of words written
func (f *Fifo) Write(words []uint32) int {
	writeCounter := 0
	for _, word := range words {
		writePosNext := f.writePos + 1
		if writePosNext == len(f.buffer) {
			writePosNext = 0
		}
		if writePosNext == f.readPos {
			break
		}
		f.buffer[f.writePos] = word
		f.writePos = writePosNext
		writeCounter++
	}
	return writeCounter
}

// Read words from fifo and return number of words read
func (f *Fifo) Read(words []uint32) int {
	readCounter := 0
	for index := range words {
		if f.readPos == f.writePos {
			break
		}
		words[index] = f.buffer[f.readPos]
		readCounter++
		f.readPos++
		if f.readPos == len(f.buffer) {
			f.readPos = 0
		}
	}
	return readCounter
}

// Pop a single word, an empty fifo reads as 0
func (f *Fifo) Pop() (uint32, bool) {
	var word [1]uint32
	if f.Read(word[:]) == 0 {
		return 0, false
	}
	return word[0], true
}
