package segment

import (
	"fmt"
	"math/rand/v2"
)

type Split string

const (
	Train Split = "train"
	Dev   Split = "dev"
	Test  Split = "test"
)

func ParseSplit(s string) (Split, error) {
	switch Split(s) {
	case Train, Dev, Test:
		return Split(s), nil
	}
	return "", fmt.Errorf("unknown split %q", s)
}

// Router assigns a chunk to a split.
type Router interface {
	Route(c Chunk) Split
}

// EveryNth sends every Nth chunk of a recording (by index, skipping the
// first) to test. With Once only index N goes to test.
type EveryNth struct {
	N    int
	Once bool
}

func (r EveryNth) Route(c Chunk) Split {
	if r.N <= 0 || c.Index == 0 {
		return Train
	}
	if r.Once {
		if c.Index == r.N {
			return Test
		}
		return Train
	}
	if c.Index%r.N == 0 {
		return Test
	}
	return Train
}

// Fixed routes everything to one split.
type Fixed Split

func (f Fixed) Route(Chunk) Split { return Split(f) }

// Shuffle permutes items in place, reproducibly for a given seed.
func Shuffle[T any](items []T, seed uint64) {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
