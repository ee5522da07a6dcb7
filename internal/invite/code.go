// Package invite generates invite codes. Codes are capability tokens: anyone
// holding one can join the appointment, so they come from crypto/rand only.
package invite

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	Alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	DefaultLength = 8
	MaxLength     = 32
)

var ErrLength = errors.New("invite: code length out of range")

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate returns a uniformly random code of n characters drawn from Alphabet.
func Generate(n int) (string, error) {
	if n <= 0 || n > MaxLength {
		return "", ErrLength
	}
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b[i] = Alphabet[idx.Int64()]
	}
	return string(b), nil
}

// Generator returns a Generate bound to a fixed length.
func Generator(n int) func() (string, error) {
	return func() (string, error) { return Generate(n) }
}

// WellFormed reports whether s could have been produced by Generate.
// Lookups use it to skip a storage round trip for garbage input.
func WellFormed(s string) bool {
	if len(s) == 0 || len(s) > MaxLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
