package segment

import (
	"iter"
	"strings"
)

// DefaultMaxDuration is the chunk threshold in milliseconds.
const DefaultMaxDuration = 10_000

// TrailingPolicy decides what happens to an unfinished chunk at end of input.
type TrailingPolicy int

const (
	// DropTrailing discards the last partial chunk.
	DropTrailing TrailingPolicy = iota
	// FlushTrailing emits the last partial chunk even if it is short.
	FlushTrailing
)

func (p TrailingPolicy) String() string {
	if p == FlushTrailing {
		return "flush"
	}
	return "drop"
}

type Options struct {
	MaxDuration float64
	Trailing    TrailingPolicy
}

// Accumulator merges consecutive utterances of one recording into chunks of
// at least MaxDuration. Not safe for concurrent use.
type Accumulator struct {
	recording string
	opts      Options

	started bool
	start   float64
	end     float64
	buffer  []string
	index   int
}

func NewAccumulator(recording string, opts Options) *Accumulator {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	return &Accumulator{recording: recording, opts: opts}
}

// Feed adds one utterance and returns the chunk it closed, if any.
func (a *Accumulator) Feed(u Utterance) (*Chunk, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	if !a.started {
		a.start = u.Start
		a.started = true
	}

	if t := strings.TrimSpace(u.Text); t != "" {
		a.buffer = append(a.buffer, t)
	}
	a.end = u.End

	if a.end-a.start < a.opts.MaxDuration {
		return nil, nil
	}

	c := a.take()
	// следующий чанк начинается там, где закончился предыдущий
	a.start = c.End
	return &c, nil
}

// Flush returns the pending partial chunk when the policy allows it.
func (a *Accumulator) Flush() *Chunk {
	if !a.Pending() || a.opts.Trailing == DropTrailing {
		a.buffer = nil
		return nil
	}
	c := a.take()
	a.start = c.End
	return &c
}

// Pending reports whether text has been fed since the last closed chunk.
func (a *Accumulator) Pending() bool {
	return len(a.buffer) > 0
}

func (a *Accumulator) take() Chunk {
	c := Chunk{
		Recording: a.recording,
		Index:     a.index,
		Text:      strings.Join(a.buffer, " "),
		Start:     a.start,
		End:       a.end,
	}
	a.index++
	a.buffer = nil
	return c
}

// Chunks lazily accumulates seq. Iteration stops after the first error.
func (a *Accumulator) Chunks(seq iter.Seq[Utterance]) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for u := range seq {
			c, err := a.Feed(u)
			if err != nil {
				yield(Chunk{}, err)
				return
			}
			if c != nil && !yield(*c, nil) {
				return
			}
		}
		if c := a.Flush(); c != nil {
			yield(*c, nil)
		}
	}
}

// Accumulate is the eager form of Chunks.
func Accumulate(recording string, utts []Utterance, opts Options) ([]Chunk, error) {
	acc := NewAccumulator(recording, opts)
	var out []Chunk
	for c, err := range acc.Chunks(func(yield func(Utterance) bool) {
		for _, u := range utts {
			if !yield(u) {
				return
			}
		}
	}) {
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}
