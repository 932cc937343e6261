// Package workload provides property-based tests for the Collatz workload.
// For every positive n the sequence length is deterministic, doubling n adds
// exactly one step, and the uint64 and big.Int implementations agree.
package workload

import (
	"math"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"
)

func TestCollatzLengthProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("deterministic", prop.ForAll(
		func(n uint64) bool {
			return CollatzLength(n) == CollatzLength(n)
		},
		gen.UInt64Range(1, 1_000_000),
	))

	properties.Property("doubling adds one step", prop.ForAll(
		func(n uint64) bool {
			return CollatzLength(2*n) == CollatzLength(n)+1
		},
		gen.UInt64Range(1, 1_000_000),
	))

	properties.Property("odd n takes 3n+1 next", prop.ForAll(
		func(n uint64) bool {
			if n%2 == 0 {
				n++
			}
			if n == 1 {
				return CollatzLength(n) == 0
			}
			return CollatzLength(n) == CollatzLength(3*n+1)+1
		},
		gen.UInt64Range(1, 1_000_000),
	))

	properties.TestingRun(t)
}

// TestCollatzLengthBigAgreementProperty 大数实现与 uint64 实现在整个取值范围内一致。
func TestCollatzLengthBigAgreementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.Uint64Range(1, math.MaxUint64).Draw(t, "n")

		got := CollatzLength(n)
		want := CollatzLengthBig(new(big.Int).SetUint64(n))
		if got != want {
			t.Fatalf("CollatzLength(%d) = %d, big = %d", n, got, want)
		}
	})
}
