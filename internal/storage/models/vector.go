package models

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vector is a fixed-size float32 embedding. It is stored in sqlite as a
// little-endian float32 blob.
type Vector []float32

func (v Vector) Bytes() []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func VectorFromBytes(buf []byte) (Vector, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	v := make(Vector, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
