// Copyright (c) 2024 The Legacy Protocol developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coordinate implements the fractal coordinate algebra: positions
// in a Sierpinski-triangle addressing scheme, shard derivation, parent/child
// relationships, and Cartesian embedding.
package coordinate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/littlekickoffkittie/legacy-protocol/chainerr"
)

// sqrt3 is math.Sqrt(3), computed once.
var sqrt3 = math.Sqrt(3)

// Coordinate is an immutable position in the Sierpinski-triangle coordinate
// system: a depth and a path of digits in {0,1,2}, one per level. The zero
// value is not valid; build coordinates with New.
type Coordinate struct {
	depth int
	path  []int

	once      sync.Once
	hash      string
	cartX     float64
	cartY     float64
}

// New constructs a coordinate at the given depth with the given path. It
// fails with an ErrInvalidCoordinate RuleError if depth is negative, if
// len(path) != depth, or if any path element is outside {0,1,2}.
func New(depth int, path []int) (*Coordinate, error) {
	if depth < 0 {
		return nil, chainerr.New(chainerr.ErrInvalidCoordinate,
			"depth must be non-negative, got %d", depth)
	}
	if len(path) != depth {
		return nil, chainerr.New(chainerr.ErrInvalidCoordinate,
			"path length (%d) must equal depth (%d)", len(path), depth)
	}
	for i, p := range path {
		if p < 0 || p > 2 {
			return nil, chainerr.New(chainerr.ErrInvalidCoordinate,
				"invalid path element %d at index %d: must be 0, 1, or 2", p, i)
		}
	}

	cp := make([]int, len(path))
	copy(cp, path)
	return &Coordinate{depth: depth, path: cp}, nil
}

// Root returns the depth-0 coordinate (the root of the Sierpinski triangle).
func Root() *Coordinate {
	c, _ := New(0, nil)
	return c
}

// Depth returns the coordinate's recursion depth.
func (c *Coordinate) Depth() int {
	return c.depth
}

// Path returns a copy of the coordinate's path digits, so callers cannot
// mutate the coordinate through the returned slice.
func (c *Coordinate) Path() []int {
	cp := make([]int, len(c.path))
	copy(cp, c.path)
	return cp
}

// String implements fmt.Stringer.
func (c *Coordinate) String() string {
	digits := make([]string, len(c.path))
	for i, p := range c.path {
		digits[i] = strconv.Itoa(p)
	}
	return fmt.Sprintf("Coordinate(depth=%d, path=[%s])", c.depth, strings.Join(digits, ","))
}

// Equal reports whether c and other denote the same coordinate.
func (c *Coordinate) Equal(other *Coordinate) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.depth != other.depth || len(c.path) != len(other.path) {
		return false
	}
	for i := range c.path {
		if c.path[i] != other.path[i] {
			return false
		}
	}
	return true
}

// ShardID returns the top-level shard this coordinate belongs to: path[0]
// at depth >= 1, or 0 at the root.
func (c *Coordinate) ShardID() int {
	if c.depth == 0 {
		return 0
	}
	return c.path[0]
}

// Parent returns the coordinate one level up (path with its last digit
// trimmed). The root is its own parent.
func (c *Coordinate) Parent() *Coordinate {
	if c.depth == 0 {
		return c
	}
	parent, err := New(c.depth-1, c.path[:c.depth-1])
	if err != nil {
		// Unreachable: trimming a valid path can never produce an
		// invalid one.
		panic(chainerr.AssertError(err.Error()))
	}
	return parent
}

// Children returns the three direct children at depth+1, for path digits
// 0, 1, 2 in that order.
func (c *Coordinate) Children() [3]*Coordinate {
	var children [3]*Coordinate
	for i := 0; i < 3; i++ {
		childPath := make([]int, c.depth+1)
		copy(childPath, c.path)
		childPath[c.depth] = i
		child, err := New(c.depth+1, childPath)
		if err != nil {
			panic(chainerr.AssertError(err.Error()))
		}
		children[i] = child
	}
	return children
}

// computeHash and computeCartesian are run at most once per instance,
// guarded by once, to memoize the deterministic derivations.
func (c *Coordinate) ensureComputed() {
	c.once.Do(func() {
		c.hash = computeHash(c.depth, c.path)
		c.cartX, c.cartY = computeCartesian(c.path)
	})
}

func computeHash(depth int, path []int) string {
	digits := make([]string, len(path))
	for i, p := range path {
		digits[i] = strconv.Itoa(p)
	}
	serialized := fmt.Sprintf("%d:%s", depth, strings.Join(digits, ","))
	sum := sha256.Sum256([]byte(serialized))
	return hex.EncodeToString(sum[:])
}

func computeCartesian(path []int) (float64, float64) {
	// Start at the centroid of the unit triangle (0,0)-(1,0)-(0.5, sqrt3/2).
	x, y := 0.5, sqrt3/6
	scale := 1.0

	for _, move := range path {
		scale /= 2
		switch move {
		case 0: // lower-left sub-triangle
			x -= scale / 2
			y -= scale * (sqrt3 / 6)
		case 1: // top sub-triangle
			y += scale * (sqrt3 / 3)
		case 2: // lower-right sub-triangle
			x += scale / 2
			y -= scale * (sqrt3 / 6)
		}
	}

	return x, y
}

// Hash returns the SHA-256 hex digest of "<depth>:<d0>,<d1>,...". It is
// memoized after the first call.
func (c *Coordinate) Hash() string {
	c.ensureComputed()
	return c.hash
}

// Cartesian returns the (x, y) embedding of this coordinate within the unit
// Sierpinski triangle with vertices (0,0), (1,0), (0.5, sqrt(3)/2). It is
// memoized after the first call.
func (c *Coordinate) Cartesian() (float64, float64) {
	c.ensureComputed()
	return c.cartX, c.cartY
}

// DistanceTo returns the Euclidean distance between c's and other's
// Cartesian embeddings. Present in the original legacy_coordinate
// implementation; no other package in this module calls it.
func (c *Coordinate) DistanceTo(other *Coordinate) float64 {
	x1, y1 := c.Cartesian()
	x2, y2 := other.Cartesian()
	return math.Hypot(x2-x1, y2-y1)
}
