package diffusion

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// RandomSeed draws a fresh 32-bit seed from the operating system's entropy
// source. The result is always non-negative and fits the native sampler's
// seed width.
func RandomSeed() (int64, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("diffusion: failed to read entropy for seed: %w", err)
	}
	return int64(binary.BigEndian.Uint32(buf[:])), nil
}

// ResolveSeed returns seed unchanged when the caller supplied one, or a
// fresh random seed when seed is negative. The second return reports whether
// a random seed was drawn.
func ResolveSeed(seed int64) (int64, bool, error) {
	if seed >= 0 {
		return seed, false, nil
	}
	drawn, err := RandomSeed()
	if err != nil {
		return 0, false, err
	}
	return drawn, true, nil
}
