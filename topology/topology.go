// Package topology defines hypercube adjacency. A vertex is an n-bit integer
// and its neighbor on dimension j is the vertex that differs only in bit j.
package topology

import (
	"math/bits"
	"strings"

	"github.com/pkg/errors"
)

// MaxDimension bounds the size of a simulated hypercube. A dimension-16 cube
// already runs 65536 vertex units over about a million channels.
const MaxDimension = 16

// ErrDimensionOutOfRange is returned for a dimension outside [0, MaxDimension].
var ErrDimensionOutOfRange = errors.New("dimension out of range")

// ValidateDimension checks that n can be simulated.
func ValidateDimension(n int) error {
	if n < 0 || n > MaxDimension {
		return errors.Wrapf(ErrDimensionOutOfRange,
			"dimension %d, allowed [0, %d]", n, MaxDimension)
	}

	return nil
}

// NumVertices returns 2^n.
func NumVertices(n int) int {
	return 1 << n
}

// NumChannels returns the number of directed channels needed to realize every
// edge of a dimension-n hypercube, one per (vertex, dimension) pair.
func NumChannels(n int) int {
	return n * NumVertices(n)
}

// Neighbor returns the vertex that differs from v in bit j. Neighbor is its own
// inverse: Neighbor(Neighbor(v, j), j) == v.
func Neighbor(v, j int) int {
	return v ^ (1 << j)
}

// Neighbors lists the n neighbors of v, indexed by dimension.
func Neighbors(v, n int) []int {
	neighbors := make([]int, n)
	for j := 0; j < n; j++ {
		neighbors[j] = Neighbor(v, j)
	}

	return neighbors
}

// HammingDistance returns the number of bits in which a and b differ.
func HammingDistance(a, b int) int {
	return bits.OnesCount(uint(a ^ b))
}

// Address renders v as an n-bit binary string, most significant bit first.
// The single vertex of a dimension-0 cube is rendered as "0".
func Address(v, n int) string {
	if n == 0 {
		return "0"
	}

	var sb strings.Builder
	sb.Grow(n)

	for j := n - 1; j >= 0; j-- {
		if v&(1<<j) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}
