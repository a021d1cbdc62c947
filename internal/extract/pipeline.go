package extract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/metrics"
)

// personScrollAttempts bounds infinite scroll on the people page.
const personScrollAttempts = 3

// Config bounds waits and pagination.
type Config struct {
	BaseURL          string
	OrganizationWait time.Duration
	PostsWait        time.Duration
	PeopleWait       time.Duration
	CommentsWait     time.Duration
	MaxPosts         int
	MaxPostScrolls   int
	MaxPeople        int
	MaxComments      int
	// ScrollPause is slept after each scroll so lazy content can render.
	ScrollPause time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:          "https://www.linkedin.com",
		OrganizationWait: 10 * time.Second,
		PostsWait:        10 * time.Second,
		PeopleWait:       5 * time.Second,
		CommentsWait:     5 * time.Second,
		MaxPosts:         15,
		MaxPostScrolls:   10,
		MaxPeople:        100,
		MaxComments:      100,
		ScrollPause:      2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.OrganizationWait <= 0 {
		c.OrganizationWait = def.OrganizationWait
	}
	if c.PostsWait <= 0 {
		c.PostsWait = def.PostsWait
	}
	if c.PeopleWait <= 0 {
		c.PeopleWait = def.PeopleWait
	}
	if c.CommentsWait <= 0 {
		c.CommentsWait = def.CommentsWait
	}
	if c.MaxPosts <= 0 {
		c.MaxPosts = def.MaxPosts
	}
	if c.MaxPostScrolls <= 0 {
		c.MaxPostScrolls = def.MaxPostScrolls
	}
	if c.MaxPeople <= 0 {
		c.MaxPeople = def.MaxPeople
	}
	if c.MaxComments <= 0 {
		c.MaxComments = def.MaxComments
	}
	if c.ScrollPause < 0 {
		c.ScrollPause = 0
	}
	return c
}

// Deps are the collaborators of a Pipeline. Blobs may be nil to disable snapshots.
type Deps struct {
	Logger *zap.Logger
	Clock  insights.Clock
	Hasher insights.Hasher
	Blobs  insights.BlobStore
	// OnTransition, when set, observes every state change.
	OnTransition func(kind insights.Kind, from, to State)
}

// Pipeline extracts entities through a caller-owned Session.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
	clock  insights.Clock
	hasher insights.Hasher
	blobs  insights.BlobStore
	onStep func(kind insights.Kind, from, to State)
}

// New constructs a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.Hasher == nil {
		return nil, errors.New("hasher is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:    cfg.withDefaults(),
		logger: logger,
		clock:  deps.Clock,
		hasher: deps.Hasher,
		blobs:  deps.Blobs,
		onStep: deps.OnTransition,
	}, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// OrganizationURL is the deterministic profile URL for pageID.
func (p *Pipeline) OrganizationURL(pageID string) string {
	return fmt.Sprintf("%s/company/%s/", p.cfg.BaseURL, pageID)
}

// Organization renders the profile page. Any failure yields ErrNotFound.
func (p *Pipeline) Organization(ctx context.Context, sess Session, pageID string) (insights.Organization, error) {
	pageURL := p.OrganizationURL(pageID)
	orgs, err := run(ctx, p, sess, plan[insights.Organization]{
		kind:      insights.KindOrganization,
		parentKey: pageID,
		url:       pageURL,
		marker:    selOrgCard,
		wait:      p.cfg.OrganizationWait,
		required:  true,
		parse: func(doc *goquery.Document, now time.Time) ([]insights.Organization, int) {
			return parseOrganization(doc, pageID, pageURL, now), 0
		},
	})
	if err != nil {
		return insights.Organization{}, err
	}
	return orgs[0], nil
}

// Posts collects up to MaxPosts posts, scrolling for more.
func (p *Pipeline) Posts(ctx context.Context, sess Session, pageID string) ([]insights.Post, error) {
	return run(ctx, p, sess, plan[insights.Post]{
		kind:        insights.KindPost,
		parentKey:   pageID,
		url:         fmt.Sprintf("%s/company/%s/posts/", p.cfg.BaseURL, pageID),
		marker:      selPostMarker,
		wait:        p.cfg.PostsWait,
		paginate:    true,
		maxAttempts: p.cfg.MaxPostScrolls,
		maxResults:  p.cfg.MaxPosts,
		parse: func(doc *goquery.Document, now time.Time) ([]insights.Post, int) {
			return parsePosts(doc, pageID, p.cfg.BaseURL, now)
		},
	})
}

// People collects employee cards, scrolling at most three times.
func (p *Pipeline) People(ctx context.Context, sess Session, pageID string) ([]insights.Person, error) {
	return run(ctx, p, sess, plan[insights.Person]{
		kind:        insights.KindPerson,
		parentKey:   pageID,
		url:         fmt.Sprintf("%s/company/%s/people/", p.cfg.BaseURL, pageID),
		marker:      selPersonCard,
		wait:        p.cfg.PeopleWait,
		paginate:    true,
		maxAttempts: personScrollAttempts,
		maxResults:  p.cfg.MaxPeople,
		parse: func(doc *goquery.Document, now time.Time) ([]insights.Person, int) {
			return parsePeople(doc, pageID, p.cfg.BaseURL, now)
		},
	})
}

// Comments renders postURL and collects its visible comments.
func (p *Pipeline) Comments(ctx context.Context, sess Session, postID, postURL string) ([]insights.Comment, error) {
	if postURL == "" {
		return []insights.Comment{}, nil
	}
	return run(ctx, p, sess, plan[insights.Comment]{
		kind:       insights.KindComment,
		parentKey:  postID,
		url:        postURL,
		marker:     selComment,
		wait:       p.cfg.CommentsWait,
		maxResults: p.cfg.MaxComments,
		prepare: func(ctx context.Context, sess Session) {
			if err := sess.Click(ctx, selCommentsLoadMore); err != nil {
				p.logger.Debug("load more comments unavailable", zap.String("post_id", postID), zap.Error(err))
				return
			}
			p.pause(ctx)
		},
		parse: func(doc *goquery.Document, now time.Time) ([]insights.Comment, int) {
			return parseComments(doc, postID, now, p.commentID)
		},
	})
}

// commentID derives a stable identity from the comment's natural attributes.
// ordinal counts earlier comments in the same post with the same author and
// text, in document order.
func (p *Pipeline) commentID(postID, userID, content string, ordinal int) string {
	key := postID + "|" + userID + "|" + content
	if ordinal > 0 {
		key += "|" + strconv.Itoa(ordinal)
	}
	digest, err := p.hasher.Hash([]byte(key))
	if err != nil || len(digest) < 16 {
		return "comment_" + postID + "_" + userID + "_" + strconv.Itoa(ordinal)
	}
	return "comment_" + digest[:16]
}

func (p *Pipeline) pause(ctx context.Context) {
	if p.cfg.ScrollPause <= 0 {
		return
	}
	timer := time.NewTimer(p.cfg.ScrollPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type plan[T insights.Record] struct {
	kind        insights.Kind
	parentKey   string
	url         string
	marker      string
	wait        time.Duration
	required    bool
	paginate    bool
	maxAttempts int
	maxResults  int
	prepare     func(ctx context.Context, sess Session)
	parse       func(doc *goquery.Document, now time.Time) ([]T, int)
}

type machine struct {
	kind   insights.Kind
	state  State
	logger *zap.Logger
	onStep func(kind insights.Kind, from, to State)
}

func (m *machine) to(next State) {
	m.logger.Debug("extraction transition",
		zap.Stringer("from", m.state),
		zap.Stringer("to", next),
	)
	if m.onStep != nil {
		m.onStep(m.kind, m.state, next)
	}
	m.state = next
}

func run[T insights.Record](ctx context.Context, p *Pipeline, sess Session, pl plan[T]) ([]T, error) {
	start := p.clock.Now()
	logger := p.logger.With(
		zap.String("kind", string(pl.kind)),
		zap.String("parent_key", pl.parentKey),
	)
	m := &machine{kind: pl.kind, state: StateIdle, logger: logger, onStep: p.onStep}

	out, err := drive(ctx, p, sess, pl, m, logger)
	outcome := "ok"
	switch {
	case err != nil:
		m.to(StateFailed)
		outcome = "failed"
		logger.Warn("extraction failed", zap.String("url", pl.url), zap.Error(err))
	default:
		m.to(StateDone)
		if len(out) == 0 {
			outcome = "empty"
		}
	}
	metrics.ObserveExtraction(string(pl.kind), outcome, len(out), p.clock.Now().Sub(start))

	if pl.required && (err != nil || len(out) == 0) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("extract %s %s: %w", pl.kind, pl.parentKey, ctxErr)
		}
		return nil, fmt.Errorf("extract %s %s: %w", pl.kind, pl.parentKey, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("extraction finished", zap.Int("records", len(out)))
	return out, nil
}

func drive[T insights.Record](
	ctx context.Context,
	p *Pipeline,
	sess Session,
	pl plan[T],
	m *machine,
	logger *zap.Logger,
) ([]T, error) {
	out := []T{}
	seen := make(map[string]struct{})

	m.to(StateNavigating)
	if err := sess.Navigate(ctx, pl.url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w: %w", pl.url, ErrExtraction, err)
	}

	m.to(StateWaitingForContent)
	if err := sess.WaitFor(ctx, pl.marker, pl.wait); err != nil {
		if errors.Is(err, ErrWaitTimeout) && !pl.required {
			logger.Info("no content rendered", zap.String("marker", pl.marker))
			return out, nil
		}
		return nil, fmt.Errorf("wait for %s: %w: %w", pl.marker, ErrExtraction, err)
	}
	if pl.prepare != nil {
		pl.prepare(ctx, sess)
	}

	attempts := 0
	for {
		m.to(StateExtracting)
		html, err := sess.HTML(ctx)
		if err != nil {
			return nil, fmt.Errorf("read document: %w: %w", ErrExtraction, err)
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("parse document: %w: %w", ErrExtraction, err)
		}
		p.snapshot(ctx, pl.kind, pl.parentKey, html)

		records, dropped := pl.parse(doc, p.clock.Now())
		for i := 0; i < dropped; i++ {
			metrics.ObserveDroppedRecord(string(pl.kind), "missing_identity")
		}
		if dropped > 0 {
			logger.Debug("dropped records without identity", zap.Int("dropped", dropped))
		}
		for _, rec := range records {
			if _, dup := seen[rec.Key()]; dup {
				continue
			}
			seen[rec.Key()] = struct{}{}
			out = append(out, rec)
			if pl.maxResults > 0 && len(out) >= pl.maxResults {
				return out, nil
			}
		}

		if !pl.paginate || attempts >= pl.maxAttempts {
			return out, nil
		}

		m.to(StatePaginating)
		grew, err := scroll(ctx, p, sess)
		attempts++
		if err != nil {
			logger.Debug("pagination stopped", zap.Int("attempts", attempts), zap.Error(err))
			return out, nil
		}
		if !grew {
			return out, nil
		}
		m.to(StateWaitingForContent)
		if err := sess.WaitFor(ctx, pl.marker, pl.wait); err != nil {
			return out, nil
		}
	}
}

// scroll triggers infinite loading and reports whether the document grew.
func scroll(ctx context.Context, p *Pipeline, sess Session) (bool, error) {
	before, err := sess.ScrollHeight(ctx)
	if err != nil {
		return false, fmt.Errorf("measure height: %w", err)
	}
	if err := sess.ScrollToBottom(ctx); err != nil {
		return false, fmt.Errorf("scroll: %w", err)
	}
	p.pause(ctx)
	after, err := sess.ScrollHeight(ctx)
	if err != nil {
		return false, fmt.Errorf("measure height: %w", err)
	}
	return after > before, nil
}

// snapshot archives the rendered document; failures are logged only.
func (p *Pipeline) snapshot(ctx context.Context, kind insights.Kind, parentKey, html string) {
	if p.blobs == nil {
		return
	}
	digest, err := p.hasher.Hash([]byte(html))
	if err != nil {
		metrics.ObserveSnapshot("error")
		p.logger.Warn("hash snapshot", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/%s.html", kind.Collection(), parentKey, digest)
	uri, err := p.blobs.PutObject(ctx, path, "text/html; charset=utf-8", strings.NewReader(html))
	if err != nil {
		metrics.ObserveSnapshot("error")
		p.logger.Warn("archive snapshot", zap.String("path", path), zap.Error(err))
		return
	}
	metrics.ObserveSnapshot("stored")
	p.logger.Debug("snapshot archived", zap.String("uri", uri))
}
