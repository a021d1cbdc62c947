// Package summary produces LLM-written overviews of an organization.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/insights"
)

const (
	maxPosts       = 5
	maxPeople      = 10
	maxPostContent = 200

	fallbackSummary  = "No summary generated."
	malformedSummary = "Generated summary contained formatting errors."
)

// ErrNotConfigured is returned when no model endpoint is configured.
var ErrNotConfigured = errors.New("summarizer not configured")

// Summary is the generated overview of one organization.
type Summary struct {
	PageID             string         `json:"page_id"`
	Summary            string         `json:"summary"`
	FollowerInsights   string         `json:"follower_insights,omitempty"`
	EngagementInsights string         `json:"engagement_insights,omitempty"`
	ContentInsights    string         `json:"content_insights,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	ExtraData          map[string]any `json:"extra_data"`
}

// Summarizer writes a Summary from already-resolved entities.
type Summarizer interface {
	Summarize(ctx context.Context, org insights.Organization, posts []insights.Post, people []insights.Person) (Summary, error)
}

// Config selects an OpenAI-compatible chat endpoint.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// Configured reports whether an endpoint or key is present.
func (c Config) Configured() bool {
	return c.APIKey != "" || c.BaseURL != ""
}

// LLM implements Summarizer on a langchaingo chat model.
type LLM struct {
	model       llms.Model
	temperature float64
	clock       insights.Clock
	logger      *zap.Logger
}

// New builds an LLM summarizer from cfg.
func New(cfg Config, clock insights.Clock, logger *zap.Logger) (*LLM, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible servers accept any token.
		token = "none"
	}
	opts := []openai.Option{openai.WithToken(token)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return NewWithModel(client, cfg.Temperature, clock, logger), nil
}

// NewWithModel wraps an existing model.
func NewWithModel(model llms.Model, temperature float64, clock insights.Clock, logger *zap.Logger) *LLM {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLM{model: model, temperature: temperature, clock: clock, logger: logger}
}

type completion struct {
	Summary            string `json:"summary"`
	FollowerInsights   string `json:"follower_insights"`
	EngagementInsights string `json:"engagement_insights"`
	ContentInsights    string `json:"content_insights"`
}

// Summarize asks the model for a JSON overview. A malformed reply still yields
// a Summary carrying a placeholder text.
func (l *LLM) Summarize(
	ctx context.Context,
	org insights.Organization,
	posts []insights.Post,
	people []insights.Person,
) (Summary, error) {
	prompt, err := buildPrompt(org, posts, people)
	if err != nil {
		return Summary{}, err
	}
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := l.model.GenerateContent(ctx, content, llms.WithTemperature(l.temperature), llms.WithJSONMode())
	if err != nil {
		return Summary{}, fmt.Errorf("generate summary: %w", err)
	}

	out := Summary{
		PageID:    org.PageID,
		Summary:   fallbackSummary,
		CreatedAt: l.clock.Now().UTC(),
		ExtraData: map[string]any{},
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}
	var parsed completion
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Content)), &parsed); err != nil {
		l.logger.Warn("unparseable summary response", zap.String("page_id", org.PageID), zap.Error(err))
		out.Summary = malformedSummary
		return out, nil
	}
	if parsed.Summary != "" {
		out.Summary = parsed.Summary
	}
	out.FollowerInsights = parsed.FollowerInsights
	out.EngagementInsights = parsed.EngagementInsights
	out.ContentInsights = parsed.ContentInsights
	return out, nil
}

const systemPrompt = `You are a business analyst. Reply with a JSON object with the string fields ` +
	`summary, follower_insights, engagement_insights and content_insights.`

type postDigest struct {
	Content   string `json:"content"`
	Reactions int64  `json:"reactions"`
	Type      string `json:"type"`
}

type personDigest struct {
	Headline string `json:"headline"`
	Location string `json:"location"`
}

func buildPrompt(org insights.Organization, posts []insights.Post, people []insights.Person) (string, error) {
	digest := struct {
		Name          string         `json:"name"`
		Description   string         `json:"description"`
		Industry      string         `json:"industry"`
		FollowerCount int64          `json:"follower_count"`
		HeadCount     int64          `json:"head_count"`
		Specialities  []string       `json:"specialities"`
		Posts         []postDigest   `json:"recent_posts"`
		People        []personDigest `json:"employee_sample"`
	}{
		Name:          org.Name,
		Description:   org.Description,
		Industry:      string(org.Industry),
		FollowerCount: org.FollowerCount,
		HeadCount:     org.HeadCount,
		Specialities:  org.Specialities,
		Posts:         []postDigest{},
		People:        []personDigest{},
	}
	for _, p := range posts[:min(len(posts), maxPosts)] {
		digest.Posts = append(digest.Posts, postDigest{
			Content:   truncate(p.Content, maxPostContent),
			Reactions: p.Reactions.Total,
			Type:      string(p.PostType),
		})
	}
	for _, p := range people[:min(len(people), maxPeople)] {
		digest.People = append(digest.People, personDigest{Headline: p.Headline, Location: p.Location})
	}
	raw, err := json.MarshalIndent(digest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode summary input: %w", err)
	}
	return "Summarize this organization page:\n" + string(raw), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
