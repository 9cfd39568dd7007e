package regs

import "encoding/binary"

// PackWords copies data into little endian register words, missing bytes are zero
func PackWords(data []byte) [DataWords]uint32 {
	var buf [DataWords * 4]byte
	var words [DataWords]uint32
	copy(buf[:], data)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return words
}

// UnpackWords copies little endian register words into dst, and returns the number of bytes copied
func UnpackWords(dst []byte, words []uint32) int {
	var buf [DataWords * 4]byte
	n := min(len(words), DataWords)
	for i, w := range words[:n] {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return copy(dst, buf[:n*4])
}

// Number of words needed to carry length bytes
func WordCount(length uint8) int {
	return (int(length) + 3) / 4
}
