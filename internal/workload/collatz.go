package workload

import (
	"math"
	"math/big"
)

// Func computes the metric of a single work item.
type Func[T, U any] func(item T) U

// maxSafeOdd is the largest n for which 3n+1 fits in a uint64.
const maxSafeOdd = (math.MaxUint64 - 1) / 3

var (
	bigOne   = big.NewInt(1)
	bigThree = big.NewInt(3)
)

// Collatz is the Collatz sequence length as a workload function.
var Collatz Func[uint64, int] = CollatzLength

// CollatzLength returns the number of halving/tripling steps needed for n to
// reach 1 under the Collatz map. CollatzLength(1) is 0; values below 1 have
// no sequence and also yield 0. Intermediate values that would overflow
// uint64 continue in arbitrary precision.
func CollatzLength(n uint64) int {
	steps := 0
	for n > 1 {
		switch {
		case n&1 == 0:
			n >>= 1
		case n <= maxSafeOdd:
			n = 3*n + 1
		default:
			return steps + CollatzLengthBig(new(big.Int).SetUint64(n))
		}
		steps++
	}
	return steps
}

// CollatzLengthBig is CollatzLength for arbitrary-precision inputs.
// n is not modified.
func CollatzLengthBig(n *big.Int) int {
	if n == nil || n.Sign() <= 0 {
		return 0
	}

	x := new(big.Int).Set(n)
	steps := 0
	for x.Cmp(bigOne) > 0 {
		if x.Bit(0) == 0 {
			x.Rsh(x, 1)
		} else {
			x.Mul(x, bigThree)
			x.Add(x, bigOne)
		}
		steps++
	}
	return steps
}
