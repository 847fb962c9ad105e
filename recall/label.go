package recall

import (
	"context"

	"github.com/hubenschmidt/go-resurface/core"
)

const (
	DefaultLabelLength = 30
	EmptyClusterLabel  = "related notes"
)

// Labeler names a cluster. Notes are in cluster order, seed first.
type Labeler interface {
	Label(ctx context.Context, notes []core.ScoredNote) (string, error)
}

// TruncateLabeler labels a cluster with the opening of its first note.
type TruncateLabeler struct {
	// Length is the number of runes kept; zero means DefaultLabelLength.
	Length int
}

func (l TruncateLabeler) Label(_ context.Context, notes []core.ScoredNote) (string, error) {
	if len(notes) == 0 || notes[0].Content == "" {
		return EmptyClusterLabel, nil
	}
	n := l.Length
	if n <= 0 {
		n = DefaultLabelLength
	}
	return Truncate(notes[0].Content, n), nil
}

// Truncate keeps the first n runes of s and appends "..." when it cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
