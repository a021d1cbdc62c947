package summary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/JakeFAU/page-insights/internal/insights"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeModel struct {
	reply    string
	err      error
	messages []llms.MessageContent
	noChoice bool
}

func (m *fakeModel) GenerateContent(
	_ context.Context,
	messages []llms.MessageContent,
	_ ...llms.CallOption,
) (*llms.ContentResponse, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	if m.noChoice {
		return &llms.ContentResponse{}, nil
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func org() insights.Organization {
	return insights.Organization{PageID: "acme", Name: "Acme", Industry: insights.IndustryRetail}
}

func TestSummarizeParsesFencedJSON(t *testing.T) {
	t.Parallel()

	model := &fakeModel{reply: "```json\n{\"summary\":\"Acme sells anvils.\",\"content_insights\":\"Video wins.\"}\n```"}
	s := NewWithModel(model, 0, fixedClock{now: now}, nil)

	got, err := s.Summarize(context.Background(), org(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "acme", got.PageID)
	require.Equal(t, "Acme sells anvils.", got.Summary)
	require.Equal(t, "Video wins.", got.ContentInsights)
	require.Equal(t, now, got.CreatedAt)
	require.Len(t, model.messages, 2)
}

func TestSummarizeMalformedReplyFallsBack(t *testing.T) {
	t.Parallel()

	s := NewWithModel(&fakeModel{reply: "not json"}, 0, fixedClock{now: now}, nil)
	got, err := s.Summarize(context.Background(), org(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, malformedSummary, got.Summary)

	s = NewWithModel(&fakeModel{noChoice: true}, 0, fixedClock{now: now}, nil)
	got, err = s.Summarize(context.Background(), org(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, fallbackSummary, got.Summary)
}

func TestSummarizeModelError(t *testing.T) {
	t.Parallel()

	s := NewWithModel(&fakeModel{err: errors.New("rate limited")}, 0, fixedClock{now: now}, nil)
	_, err := s.Summarize(context.Background(), org(), nil, nil)
	require.ErrorContains(t, err, "rate limited")
}

func TestBuildPromptBoundsInput(t *testing.T) {
	t.Parallel()

	posts := make([]insights.Post, 8)
	for i := range posts {
		posts[i] = insights.Post{Content: strings.Repeat("x", 300), PostType: insights.PostText}
	}
	people := make([]insights.Person, 12)

	prompt, err := buildPrompt(org(), posts, people)
	require.NoError(t, err)
	require.Equal(t, maxPosts, strings.Count(prompt, `"type": "text"`))
	require.Equal(t, maxPeople, strings.Count(prompt, `"headline"`))
	require.Contains(t, prompt, strings.Repeat("x", 200)+"...")
	require.NotContains(t, prompt, strings.Repeat("x", 201))
}

func TestNewRequiresConfiguration(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, fixedClock{now: now}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}
