package resolver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/cache"
	"github.com/JakeFAU/page-insights/internal/extract"
	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/metrics"
	"github.com/JakeFAU/page-insights/internal/store"
)

// Resolver serves one request. Its browser session is opened on first use and
// is not shared, so a Resolver must not be used from multiple goroutines.
type Resolver struct {
	engine *Engine
	sess   extract.Session
}

// Close releases the browser session, if one was opened.
func (r *Resolver) Close() error {
	if r.sess == nil {
		return nil
	}
	sess := r.sess
	r.sess = nil
	if err := sess.Close(); err != nil {
		return fmt.Errorf("close browser session: %w", err)
	}
	return nil
}

func (r *Resolver) session(ctx context.Context) (extract.Session, error) {
	if r.sess != nil {
		return r.sess, nil
	}
	sess, err := r.engine.browser.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser session: %w", err)
	}
	r.sess = sess
	// Sign-in runs once per opened session; a failure is not retried on it.
	if r.engine.creds.Configured() {
		if err := sess.SignIn(ctx, r.engine.creds); err != nil {
			r.engine.logger.Warn("sign-in failed, continuing unauthenticated", zap.Error(err))
		}
	}
	return sess, nil
}

// kindPlan is the per-kind capability set driven by resolve.
type kindPlan[T insights.Record] struct {
	kind   insights.Kind
	parent string
	coll   *store.Collection[T]
	load   func(ctx context.Context) ([]T, error)
	// extract runs the live tier; it opens the session through Resolver.session.
	extract  func(ctx context.Context) ([]T, error)
	required bool
	// single caches the first record as an object instead of a list.
	single bool
}

func resolve[T insights.Record](ctx context.Context, r *Resolver, plan kindPlan[T], force bool) ([]T, error) {
	e := r.engine
	kind := string(plan.kind)
	key := plan.kind.CacheKey(plan.parent)
	logger := e.logger.With(zap.String("kind", kind), zap.String("parent", plan.parent))

	if !force {
		if items, ok := readCache[T](ctx, e.cache, key, plan.single); ok {
			metrics.ObserveTierLookup(kind, metrics.TierCache, "hit")
			return items, nil
		}
		metrics.ObserveTierLookup(kind, metrics.TierCache, "miss")

		items, err := plan.load(ctx)
		switch {
		case err != nil:
			metrics.ObserveTierLookup(kind, metrics.TierStore, "error")
			logger.Warn("store read failed, falling through to extraction", zap.Error(err))
		case len(items) > 0:
			metrics.ObserveTierLookup(kind, metrics.TierStore, "hit")
			writeCache(ctx, e, logger, key, items, plan.single)
			return items, nil
		default:
			metrics.ObserveTierLookup(kind, metrics.TierStore, "miss")
		}
	}

	extracted, err := plan.extract(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("resolve %s: %w", key, ctxErr)
		}
		metrics.ObserveTierLookup(kind, metrics.TierExtract, "error")
		if plan.required {
			logger.Info("root entity extraction failed", zap.Error(err))
			return nil, fmt.Errorf("%s %q: %w", kind, plan.parent, ErrNotFound)
		}
		logger.Warn("extraction failed, returning empty result", zap.Error(err))
		return []T{}, nil
	}
	if len(extracted) == 0 {
		metrics.ObserveTierLookup(kind, metrics.TierExtract, "miss")
		if plan.required {
			return nil, fmt.Errorf("%s %q: %w", kind, plan.parent, ErrNotFound)
		}
		return []T{}, nil
	}
	metrics.ObserveTierLookup(kind, metrics.TierExtract, "hit")

	stored := make([]T, 0, len(extracted))
	for _, rec := range extracted {
		if err := plan.coll.Upsert(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist %s: %w", key, err)
		}
		saved, err := plan.coll.Get(ctx, rec.Key())
		if err != nil {
			return nil, fmt.Errorf("reload %s: %w", key, err)
		}
		stored = append(stored, saved)
	}
	writeCache(ctx, e, logger, key, stored, plan.single)
	return stored, nil
}

func readCache[T insights.Record](ctx context.Context, c cache.Cache, key string, single bool) ([]T, bool) {
	if single {
		item, ok := cache.GetJSON[T](ctx, c, key)
		if !ok || item.Key() == "" {
			return nil, false
		}
		return []T{item}, true
	}
	return cache.GetJSON[[]T](ctx, c, key)
}

func writeCache[T insights.Record](
	ctx context.Context,
	e *Engine,
	logger *zap.Logger,
	key string,
	items []T,
	single bool,
) {
	var value any = items
	if single {
		value = items[0]
	}
	if err := cache.SetJSON(ctx, e.cache, key, value, e.cfg.CacheTTL); err != nil {
		logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
	}
}

// GetOrganization resolves the root entity. Absence yields ErrNotFound.
func (r *Resolver) GetOrganization(ctx context.Context, pageID string, force bool) (insights.Organization, error) {
	e := r.engine
	items, err := resolve(ctx, r, kindPlan[insights.Organization]{
		kind:   insights.KindOrganization,
		parent: pageID,
		coll:   e.organizations,
		load: func(ctx context.Context) ([]insights.Organization, error) {
			org, err := e.organizations.Get(ctx, pageID)
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []insights.Organization{org}, nil
		},
		extract: func(ctx context.Context) ([]insights.Organization, error) {
			sess, err := r.session(ctx)
			if err != nil {
				return nil, err
			}
			org, err := e.extractor.Organization(ctx, sess, pageID)
			if err != nil {
				return nil, err
			}
			return []insights.Organization{org}, nil
		},
		required: true,
		single:   true,
	}, force)
	if err != nil {
		return insights.Organization{}, err
	}
	return items[0], nil
}

// GetPosts resolves the most recent posts of pageID.
func (r *Resolver) GetPosts(ctx context.Context, pageID string, force bool) ([]insights.Post, error) {
	e := r.engine
	return resolve(ctx, r, kindPlan[insights.Post]{
		kind:   insights.KindPost,
		parent: pageID,
		coll:   e.posts,
		load: func(ctx context.Context) ([]insights.Post, error) {
			return e.posts.FindByParent(ctx, pageID, store.SortPublishedDesc, e.cfg.MaxPosts)
		},
		extract: func(ctx context.Context) ([]insights.Post, error) {
			sess, err := r.session(ctx)
			if err != nil {
				return nil, err
			}
			return e.extractor.Posts(ctx, sess, pageID)
		},
	}, force)
}

// GetPersons resolves the employees listed under pageID.
func (r *Resolver) GetPersons(ctx context.Context, pageID string, force bool) ([]insights.Person, error) {
	e := r.engine
	return resolve(ctx, r, kindPlan[insights.Person]{
		kind:   insights.KindPerson,
		parent: pageID,
		coll:   e.people,
		load: func(ctx context.Context) ([]insights.Person, error) {
			return e.people.Find(ctx,
				store.Filter{ParentKey: pageID, Attrs: map[string]any{"is_employee": true}},
				store.FindOptions{Limit: e.cfg.ListLimit},
			)
		},
		extract: func(ctx context.Context) ([]insights.Person, error) {
			sess, err := r.session(ctx)
			if err != nil {
				return nil, err
			}
			return e.extractor.People(ctx, sess, pageID)
		},
	}, force)
}

// GetComments resolves the comments of postID. The post must already be stored
// because its URL drives extraction; an unknown post yields an empty result.
func (r *Resolver) GetComments(ctx context.Context, postID string, force bool) ([]insights.Comment, error) {
	e := r.engine
	return resolve(ctx, r, kindPlan[insights.Comment]{
		kind:   insights.KindComment,
		parent: postID,
		coll:   e.comments,
		load: func(ctx context.Context) ([]insights.Comment, error) {
			return e.comments.FindByParent(ctx, postID, store.SortNone, e.cfg.ListLimit)
		},
		extract: func(ctx context.Context) ([]insights.Comment, error) {
			post, err := e.posts.Get(ctx, postID)
			if errors.Is(err, store.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			sess, err := r.session(ctx)
			if err != nil {
				return nil, err
			}
			return e.extractor.Comments(ctx, sess, postID, post.URL)
		},
	}, force)
}
