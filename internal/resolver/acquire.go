package resolver

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/metrics"
)

// AcquireAll refreshes the organization, its posts, its people and the comments
// of its most recent posts, in that order, through the same session.
func (r *Resolver) AcquireAll(ctx context.Context, pageID string) (insights.Acquisition, error) {
	acq, err := r.acquire(ctx, pageID)
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.ObserveAcquisition("not_found")
	case err != nil:
		metrics.ObserveAcquisition("error")
	default:
		metrics.ObserveAcquisition("success")
	}
	return acq, err
}

func (r *Resolver) acquire(ctx context.Context, pageID string) (insights.Acquisition, error) {
	org, err := r.GetOrganization(ctx, pageID, true)
	if err != nil {
		return insights.Acquisition{}, err
	}
	posts, err := r.GetPosts(ctx, pageID, true)
	if err != nil {
		return insights.Acquisition{}, err
	}
	people, err := r.GetPersons(ctx, pageID, true)
	if err != nil {
		return insights.Acquisition{}, err
	}
	comments := []insights.Comment{}
	for _, post := range mostRecent(posts, r.engine.cfg.CommentPosts) {
		batch, err := r.GetComments(ctx, post.PostID, true)
		if err != nil {
			return insights.Acquisition{}, err
		}
		comments = append(comments, batch...)
	}

	acq := insights.Acquisition{
		Organization: org,
		Posts:        posts,
		People:       people,
		Comments:     comments,
	}
	r.publish(ctx, acq)
	return acq, nil
}

// mostRecent returns up to n posts, newest first. Posts without a publish
// time keep their page order after the dated ones.
func mostRecent(posts []insights.Post, n int) []insights.Post {
	ordered := slices.Clone(posts)
	slices.SortStableFunc(ordered, func(a, b insights.Post) int {
		switch {
		case a.PublishedAt == nil && b.PublishedAt == nil:
			return 0
		case a.PublishedAt == nil:
			return 1
		case b.PublishedAt == nil:
			return -1
		default:
			return b.PublishedAt.Compare(*a.PublishedAt)
		}
	})
	if len(ordered) > n {
		ordered = ordered[:n]
	}
	return ordered
}

func (r *Resolver) publish(ctx context.Context, acq insights.Acquisition) {
	e := r.engine
	if e.publisher == nil {
		return
	}
	id, err := e.ids.NewID()
	if err != nil {
		e.logger.Warn("event id generation failed", zap.Error(err))
		return
	}
	event := insights.AcquiredEvent{
		ID:         id,
		PageID:     acq.Organization.PageID,
		Posts:      len(acq.Posts),
		People:     len(acq.People),
		Comments:   len(acq.Comments),
		AcquiredAt: e.clock.Now().UTC(),
	}
	msgID, err := e.publisher.Publish(ctx, e.cfg.AcquiredTopic, event)
	if err != nil {
		e.logger.Warn("publish acquisition event failed",
			zap.String("page_id", event.PageID),
			zap.Error(err),
		)
		return
	}
	e.logger.Info("acquisition event published",
		zap.String("page_id", event.PageID),
		zap.String("message_id", msgID),
	)
}
