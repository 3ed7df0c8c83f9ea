// Package roomcode generates and normalizes the short join codes used to
// invite members into a room.
package roomcode

import (
	"crypto/rand"
	"errors"
	"io"
	"strings"
)

const (
	// Alphabet is the set of characters a room code is drawn from.
	Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// Length is the number of characters in a room code.
	Length = 6

	// rejectAbove is the largest multiple of len(Alphabet) that fits in a byte.
	rejectAbove = 256 - 256%len(Alphabet)
)

var ErrInvalidCode = errors.New("room code must be 6 characters from A-Z and 0-9")

// Generator draws room codes from a random source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{rand: rand.Reader}
}

// NewGeneratorFrom returns a generator reading from r, which is useful for
// deterministic tests.
func NewGeneratorFrom(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// Next returns a new random code. Bytes outside the largest multiple of the
// alphabet size are discarded so every character is equally likely.
func (g *Generator) Next() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)

	for len(out) < Length {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}

	return string(out), nil
}

// Normalize trims and uppercases a user-supplied code and validates it.
func Normalize(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !Valid(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

// Valid reports whether code is exactly Length characters from Alphabet.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
