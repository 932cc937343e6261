// Package inputs builds the batch of integers handed to the coordinator.
package inputs

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/duke-git/lancet/v2/strutil"
)

var (
	// ErrInvalidInput is returned for inputs below 1, which never reach 1.
	ErrInvalidInput = errors.New("inputs must be positive integers")

	// ErrInvalidRange is returned when min > max or count < 0.
	ErrInvalidRange = errors.New("invalid input range")
)

// Generate draws count integers uniformly from [lo, hi].
// The same seed always yields the same batch.
func Generate(count int, lo, hi uint64, seed uint64) ([]uint64, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: count %d", ErrInvalidRange, count)
	}
	if lo < 1 {
		return nil, fmt.Errorf("%w: min %d", ErrInvalidInput, lo)
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: min %d > max %d", ErrInvalidRange, lo, hi)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	span := hi - lo + 1

	out := make([]uint64, count)
	for i := range out {
		out[i] = lo + rng.Uint64N(span)
	}
	return out, nil
}

// ParseValues parses a comma or whitespace separated list such as "1, 2,7".
func ParseValues(s string) ([]uint64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	fields = slice.Filter(fields, func(_ int, f string) bool {
		return !strutil.IsBlank(f)
	})

	values := make([]uint64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidInput, f)
		}
		values = append(values, v)
	}
	if err := Validate(values); err != nil {
		return nil, err
	}
	return values, nil
}

// Validate checks that every input is at least 1.
func Validate(values []uint64) error {
	if slice.Contain(values, 0) {
		return fmt.Errorf("%w: got 0", ErrInvalidInput)
	}
	return nil
}
