// Package resolver answers entity lookups from the cache, then the document
// store, then live extraction, populating the faster tiers on the way back.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/cache"
	"github.com/JakeFAU/page-insights/internal/extract"
	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/store"
)

// ErrNotFound is returned when the root organization cannot be produced.
var ErrNotFound = errors.New("not found")

// DefaultAcquiredTopic receives an event after every composite acquisition.
const DefaultAcquiredTopic = "organization.acquired"

// Extractor is the live tier. *extract.Pipeline satisfies it.
type Extractor interface {
	Organization(ctx context.Context, sess extract.Session, pageID string) (insights.Organization, error)
	Posts(ctx context.Context, sess extract.Session, pageID string) ([]insights.Post, error)
	People(ctx context.Context, sess extract.Session, pageID string) ([]insights.Person, error)
	Comments(ctx context.Context, sess extract.Session, postID, postURL string) ([]insights.Comment, error)
}

// Config bounds store reads and the composite acquisition.
type Config struct {
	// MaxPosts caps posts read back from the store.
	MaxPosts int
	// ListLimit caps people and comments read back from the store.
	ListLimit int
	// CommentPosts is how many of the most recent posts get comments in AcquireAll.
	CommentPosts  int
	CacheTTL      time.Duration
	AcquiredTopic string
}

func (c Config) withDefaults() Config {
	if c.MaxPosts <= 0 {
		c.MaxPosts = 15
	}
	if c.ListLimit <= 0 {
		c.ListLimit = 100
	}
	if c.CommentPosts <= 0 {
		c.CommentPosts = 5
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = cache.DefaultTTL
	}
	if c.AcquiredTopic == "" {
		c.AcquiredTopic = DefaultAcquiredTopic
	}
	return c
}

// Deps are the process-wide collaborators shared by every request.
type Deps struct {
	Logger      *zap.Logger
	Cache       cache.Cache
	Documents   store.DocumentStore
	Extractor   Extractor
	Browser     extract.Browser
	Credentials extract.Credentials
	// Publisher is optional; nil disables acquisition events.
	Publisher insights.Publisher
	IDs       insights.IDGenerator
	Clock     insights.Clock
}

// Engine owns shared connections. Each request gets its own Resolver via Begin.
type Engine struct {
	cfg       Config
	logger    *zap.Logger
	cache     cache.Cache
	extractor Extractor
	browser   extract.Browser
	creds     extract.Credentials
	publisher insights.Publisher
	ids       insights.IDGenerator
	clock     insights.Clock

	organizations *store.Collection[insights.Organization]
	posts         *store.Collection[insights.Post]
	people        *store.Collection[insights.Person]
	comments      *store.Collection[insights.Comment]
}

// New validates deps and builds an Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Documents == nil {
		return nil, errors.New("document store is required")
	}
	if deps.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if deps.Browser == nil {
		return nil, errors.New("browser is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.Publisher != nil && deps.IDs == nil {
		return nil, errors.New("id generator is required when publishing events")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := deps.Cache
	if c == nil {
		c = cache.Noop{}
	}
	return &Engine{
		cfg:           cfg.withDefaults(),
		logger:        logger,
		cache:         c,
		extractor:     deps.Extractor,
		browser:       deps.Browser,
		creds:         deps.Credentials,
		publisher:     deps.Publisher,
		ids:           deps.IDs,
		clock:         deps.Clock,
		organizations: store.NewCollection[insights.Organization](deps.Documents),
		posts:         store.NewCollection[insights.Post](deps.Documents),
		people:        store.NewCollection[insights.Person](deps.Documents),
		comments:      store.NewCollection[insights.Comment](deps.Documents),
	}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Begin starts a request scope. Callers must Close the Resolver.
func (e *Engine) Begin() *Resolver {
	return &Resolver{engine: e}
}

// ListOrganizations pages through stored organizations matching filter.
func (e *Engine) ListOrganizations(
	ctx context.Context,
	filter store.Filter,
	page, limit int,
) ([]insights.Organization, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	items, total, err := e.organizations.QueryFiltered(ctx, filter, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list organizations: %w", err)
	}
	return items, total, nil
}
