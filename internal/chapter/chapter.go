package chapter

import (
	"errors"
	"fmt"
	"math"

	"github.com/sendrec/chaptersync/internal/validate"
)

var (
	ErrInvalid    = errors.New("invalid chapter list")
	ErrOutOfRange = errors.New("chapter index out of range")
)

// Chapter is a named segment of the video timeline. StartTime is in seconds.
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"startTime"`
	Target    string  `json:"target"`
}

// Index is the ordered, read-only chapter list for one media item.
type Index struct {
	chapters []Chapter
}

// New validates the chapters and builds an Index. Chapters must already be
// sorted by StartTime; equal start times are allowed.
func New(chapters []Chapter) (*Index, error) {
	if len(chapters) == 0 {
		return nil, fmt.Errorf("%w: no chapters", ErrInvalid)
	}
	for i, ch := range chapters {
		if ch.Title == "" {
			return nil, fmt.Errorf("%w: chapter %d has no title", ErrInvalid, i)
		}
		if msg := validate.ChapterTitle(ch.Title); msg != "" {
			return nil, fmt.Errorf("%w: chapter %d: %s", ErrInvalid, i, msg)
		}
		if ch.Target == "" {
			return nil, fmt.Errorf("%w: chapter %d has no target", ErrInvalid, i)
		}
		if msg := validate.ChapterTarget(ch.Target); msg != "" {
			return nil, fmt.Errorf("%w: chapter %d: %s", ErrInvalid, i, msg)
		}
		if math.IsNaN(ch.StartTime) || math.IsInf(ch.StartTime, 0) || ch.StartTime < 0 {
			return nil, fmt.Errorf("%w: chapter %d has invalid start time %v", ErrInvalid, i, ch.StartTime)
		}
		if i > 0 && ch.StartTime < chapters[i-1].StartTime {
			return nil, fmt.Errorf("%w: chapter %d starts at %v, before chapter %d at %v",
				ErrInvalid, i, ch.StartTime, i-1, chapters[i-1].StartTime)
		}
	}

	owned := make([]Chapter, len(chapters))
	copy(owned, chapters)
	return &Index{chapters: owned}, nil
}

func (x *Index) Len() int {
	return len(x.chapters)
}

// At returns the chapter at position i.
func (x *Index) At(i int) (Chapter, error) {
	if i < 0 || i >= len(x.chapters) {
		return Chapter{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(x.chapters))
	}
	return x.chapters[i], nil
}

// All returns a copy of the chapter list.
func (x *Index) All() []Chapter {
	out := make([]Chapter, len(x.chapters))
	copy(out, x.chapters)
	return out
}

// Resolve returns the index of the last chapter whose start time is at or
// before t, or -1 when t precedes the first chapter. The scan walks forward
// and stops at the first chapter that has not started yet, so later chapters
// sharing a start time win. NaN resolves to -1.
func (x *Index) Resolve(t float64) int {
	active := -1
	if math.IsNaN(t) {
		return active
	}
	for i, ch := range x.chapters {
		if t < ch.StartTime {
			break
		}
		active = i
	}
	return active
}

// FormatTime renders seconds as M:SS. Minutes are not capped.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	m := int64(math.Floor(seconds / 60))
	s := int64(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%d:%02d", m, s)
}
