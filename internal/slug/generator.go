package slug

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"unicode/utf8"
)

// DefaultSymbols is the URL-safe alphabet used for paste identifiers.
const DefaultSymbols = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"

// DefaultLength is the identifier length used when none is configured.
const DefaultLength = 10

const (
	minSymbols = 2
	maxSymbols = 1024
)

// ErrInvalidConfig is returned by New for an unusable length or alphabet.
var ErrInvalidConfig = errors.New("invalid slug generator configuration")

// Generator produces fixed-length random identifiers drawn uniformly from an
// alphabet. It is safe for concurrent use.
type Generator struct {
	symbols []rune
	index   map[rune]struct{}
	length  int
	mask    uint16
	wide    bool // two random bytes per sample
	random  io.Reader
}

// New creates a generator for the given length and alphabet. An empty
// alphabet selects DefaultSymbols.
func New(length int, symbols string) (*Generator, error) {
	if length < 1 {
		return nil, fmt.Errorf("%w: length must be >= 1, got %d", ErrInvalidConfig, length)
	}
	if symbols == "" {
		symbols = DefaultSymbols
	}
	if !utf8.ValidString(symbols) {
		return nil, fmt.Errorf("%w: alphabet is not valid UTF-8", ErrInvalidConfig)
	}

	runes := []rune(symbols)
	if len(runes) < minSymbols || len(runes) > maxSymbols {
		return nil, fmt.Errorf("%w: alphabet size must be in [%d, %d], got %d",
			ErrInvalidConfig, minSymbols, maxSymbols, len(runes))
	}
	index := make(map[rune]struct{}, len(runes))
	for _, r := range runes {
		if _, dup := index[r]; dup {
			return nil, fmt.Errorf("%w: alphabet contains duplicate symbol %q", ErrInvalidConfig, r)
		}
		index[r] = struct{}{}
	}

	// Smallest all-ones mask covering every index in the alphabet.
	mask := uint16(1)<<bits.Len(uint(len(runes)-1)) - 1

	return &Generator{
		symbols: runes,
		index:   index,
		length:  length,
		mask:    mask,
		wide:    mask > math.MaxUint8,
		random:  rand.Reader,
	}, nil
}

// Length returns the configured identifier length.
func (g *Generator) Length() int {
	return g.length
}

// Generate creates a new random identifier of the configured length.
func (g *Generator) Generate() (string, error) {
	return g.GenerateLength(g.length)
}

// GenerateLength creates a random identifier of exactly length symbols.
//
// Random bytes are masked down to the next power of two above the alphabet
// size and out-of-range values are discarded, so every symbol is equally
// likely.
func (g *Generator) GenerateLength(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("%w: length must be >= 1, got %d", ErrInvalidConfig, length)
	}

	width := 1
	if g.wide {
		width = 2
	}
	// Expected draws per accepted symbol is (mask+1)/len(symbols) <= 2; the
	// 1.6 factor keeps most calls to a single read.
	step := int(math.Ceil(1.6 * float64(g.mask) * float64(length) / float64(len(g.symbols))))
	if step < 1 {
		step = 1
	}
	buf := make([]byte, step*width)

	out := make([]rune, 0, length)
	for len(out) < length {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for i := 0; i < step && len(out) < length; i++ {
			var v uint16
			if g.wide {
				v = binary.BigEndian.Uint16(buf[i*2:])
			} else {
				v = uint16(buf[i])
			}
			v &= g.mask
			if int(v) < len(g.symbols) {
				out = append(out, g.symbols[v])
			}
		}
	}

	return string(out), nil
}

// Valid reports whether id has the configured length and uses only symbols
// from the generator's alphabet.
func (g *Generator) Valid(id string) bool {
	if utf8.RuneCountInString(id) != g.length {
		return false
	}
	for _, r := range id {
		if _, ok := g.index[r]; !ok {
			return false
		}
	}
	return true
}
