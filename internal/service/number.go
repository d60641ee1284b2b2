package service

import (
	"fmt"
	"math/rand/v2"
)

// NumberGenerator proposes candidate account numbers. Uniqueness is checked by
// the caller.
type NumberGenerator interface {
	Next() string
}

// NumberGeneratorFunc adapts a function to NumberGenerator.
type NumberGeneratorFunc func() string

func (f NumberGeneratorFunc) Next() string { return f() }

// RandomNumbers samples uniformly from the 8-digit space 00000000-99999999.
var RandomNumbers NumberGenerator = NumberGeneratorFunc(func() string {
	return fmt.Sprintf("%08d", rand.IntN(100_000_000))
})
