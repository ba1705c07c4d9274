package hashutil

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"lukechampine.com/blake3"
)

func Blake3Hash(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Blake3Floats hashes the IEEE-754 bit patterns of values, so two vectors
// hash equal only when they are bit-for-bit identical.
func Blake3Floats(values []float64) [32]byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}

	return blake3.Sum256(buf)
}
