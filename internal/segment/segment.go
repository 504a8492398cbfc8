package segment

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedRecord - транскрипт без корректных временных меток
var ErrMalformedRecord = errors.New("malformed record")

// Utterance - одна реплика из разметки датасета (время в миллисекундах)
type Utterance struct {
	ID      string  `json:"id,omitempty"`
	Text    string  `json:"text"`
	Start   float64 `json:"start_ms"`
	End     float64 `json:"end_ms"`
	Channel int     `json:"channel,omitempty"`
}

// Validate checks that both offsets are present and ordered.
func (u Utterance) Validate() error {
	if math.IsNaN(u.Start) || math.IsNaN(u.End) || math.IsInf(u.Start, 0) || math.IsInf(u.End, 0) {
		return fmt.Errorf("%w: missing offsets in %q", ErrMalformedRecord, u.Text)
	}
	if u.Start < 0 || u.End < u.Start {
		return fmt.Errorf("%w: bad offsets %v-%v in %q", ErrMalformedRecord, u.Start, u.End, u.Text)
	}
	return nil
}

// Chunk - склеенный отрезок записи, экспортируется в один аудиофайл
type Chunk struct {
	ID        string  `json:"id,omitempty"`
	Recording string  `json:"recording"`
	Index     int     `json:"index"`
	Text      string  `json:"text"`
	Start     float64 `json:"start_ms"`
	End       float64 `json:"end_ms"`
	Channel   int     `json:"channel,omitempty"`
}

// Duration returns the chunk length in milliseconds.
func (c Chunk) Duration() float64 {
	return c.End - c.Start
}

// Name is the deterministic file stem of the chunk. Utterance-level chunks
// keep the dataset's own id.
func (c Chunk) Name() string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("%s_%s_%s", c.Recording, FormatMs(c.Start), FormatMs(c.End))
}

// FromUtterance wraps a single utterance as a chunk.
func FromUtterance(recording string, index int, u Utterance) Chunk {
	return Chunk{
		ID:        u.ID,
		Recording: recording,
		Index:     index,
		Text:      strings.TrimSpace(u.Text),
		Start:     u.Start,
		End:       u.End,
		Channel:   u.Channel,
	}
}

// FormatMs prints whole milliseconds without a fraction.
func FormatMs(ms float64) string {
	if ms == math.Trunc(ms) {
		return strconv.FormatInt(int64(ms), 10)
	}
	return strconv.FormatFloat(ms, 'f', -1, 64)
}
