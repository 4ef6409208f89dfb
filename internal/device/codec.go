// internal/device/codec.go
package device

import (
	"fmt"
	"math"
)

// EncodeFloat32BE packs each value as a big-endian IEEE-754 single and
// returns two registers per value, in argument order.
func EncodeFloat32BE(values ...float64) []uint16 {
	out := make([]uint16, 0, 2*len(values))
	for _, v := range values {
		bits := math.Float32bits(float32(v))
		out = append(out, uint16(bits>>16), uint16(bits))
	}
	return out
}

// DecodeFloat32BE is the inverse of EncodeFloat32BE.
// The word count must be positive and even.
func DecodeFloat32BE(words []uint16) ([]float64, error) {
	if len(words) == 0 || len(words)%2 != 0 {
		return nil, &ProtocolError{
			Op:     "decode float32",
			Reason: fmt.Sprintf("word count %d is not a positive even number", len(words)),
		}
	}

	out := make([]float64, len(words)/2)
	for i := range out {
		bits := uint32(words[2*i])<<16 | uint32(words[2*i+1])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out, nil
}
