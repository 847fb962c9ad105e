// Package llm names recalled clusters with a language model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hubenschmidt/go-resurface/core"
	"github.com/hubenschmidt/go-resurface/recall"
)

const (
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 32
	DefaultMaxNotes  = 5

	// noteExcerpt bounds each note in the prompt.
	noteExcerpt = 280
	// maxLabel bounds the returned label.
	maxLabel = 60
)

var errEmptyLabel = errors.New("model returned no label")

// Options configures an AnthropicLabeler.
type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	// MaxNotes bounds how many cluster notes are sent to the model.
	MaxNotes int
}

// AnthropicLabeler asks Claude for a short topic label per cluster.
// It implements recall.Labeler.
type AnthropicLabeler struct {
	client *anthropic.Client
	opts   Options
}

// NewAnthropicLabeler creates a labeler. An empty APIKey falls back to the
// ANTHROPIC_API_KEY environment variable read by the client.
func NewAnthropicLabeler(opts Options) *AnthropicLabeler {
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	return NewAnthropicLabelerFromClient(&client, opts)
}

// NewAnthropicLabelerFromClient wraps an existing client.
func NewAnthropicLabelerFromClient(client *anthropic.Client, opts Options) *AnthropicLabeler {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.MaxNotes <= 0 {
		opts.MaxNotes = DefaultMaxNotes
	}
	return &AnthropicLabeler{client: client, opts: opts}
}

func (l *AnthropicLabeler) Label(ctx context.Context, notes []core.ScoredNote) (string, error) {
	if len(notes) == 0 {
		return recall.EmptyClusterLabel, nil
	}

	resp, err := l.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(l.opts.Model),
		MaxTokens: l.opts.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: "You name groups of personal notes. Reply with a topic label of at most six words. No quotes, no punctuation at the end."},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(l.prompt(notes))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic label: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	label := clean(text.String())
	if label == "" {
		return "", errEmptyLabel
	}
	return label, nil
}

func (l *AnthropicLabeler) prompt(notes []core.ScoredNote) string {
	if len(notes) > l.opts.MaxNotes {
		notes = notes[:l.opts.MaxNotes]
	}

	var b strings.Builder
	b.WriteString("These notes were recalled together:\n")
	for _, n := range notes {
		b.WriteString("- ")
		b.WriteString(recall.Truncate(strings.Join(strings.Fields(n.Content), " "), noteExcerpt))
		b.WriteString("\n")
	}
	b.WriteString("Label:")
	return b.String()
}

// clean keeps the first line and strips wrapping quotes.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'` ")
	s = strings.TrimSuffix(s, ".")
	return recall.Truncate(strings.TrimSpace(s), maxLabel)
}

var _ recall.Labeler = (*AnthropicLabeler)(nil)
