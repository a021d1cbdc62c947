package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-insights/internal/cache"
	"github.com/JakeFAU/page-insights/internal/config"
	"github.com/JakeFAU/page-insights/internal/insights"
	"github.com/JakeFAU/page-insights/internal/resolver"
	"github.com/JakeFAU/page-insights/internal/store"
	"github.com/JakeFAU/page-insights/internal/summary"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	summaryCacheKey = "summaries:"
)

type organizationPage struct {
	Items []insights.Organization `json:"items"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
	Pages int                     `json:"pages"`
}

type postsResponse struct {
	PageID string          `json:"page_id"`
	Posts  []insights.Post `json:"posts"`
}

type peopleResponse struct {
	PageID string            `json:"page_id"`
	People []insights.Person `json:"people"`
}

type commentsResponse struct {
	PostID   string             `json:"post_id"`
	Comments []insights.Comment `json:"comments"`
}

type acquireResponse struct {
	PageID   string `json:"page_id"`
	Posts    int    `json:"posts"`
	People   int    `json:"people"`
	Comments int    `json:"comments"`
}

func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrganizationFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, limit, err := parsePageLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := s.engine.ListOrganizations(r.Context(), filter, page, limit)
	if err != nil {
		s.logger.Error("list organizations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list organizations")
		return
	}
	if items == nil {
		items = []insights.Organization{}
	}
	writeJSON(w, http.StatusOK, organizationPage{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	})
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	force, err := parseBool(r, "force_refresh")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.engine.Begin()
	defer s.closeResolver(res)

	org, err := res.GetOrganization(r.Context(), chi.URLParam(r, "page_id"), force)
	if err != nil {
		s.resolveError(w, r, "organization", err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (s *Server) getPosts(w http.ResponseWriter, r *http.Request) {
	force, err := parseBool(r, "force_refresh")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageID := chi.URLParam(r, "page_id")
	res := s.engine.Begin()
	defer s.closeResolver(res)

	if _, err := res.GetOrganization(r.Context(), pageID, false); err != nil {
		s.resolveError(w, r, "organization", err)
		return
	}
	posts, err := res.GetPosts(r.Context(), pageID, force)
	if err != nil {
		s.resolveError(w, r, "posts", err)
		return
	}
	writeJSON(w, http.StatusOK, postsResponse{PageID: pageID, Posts: posts})
}

func (s *Server) getPeople(w http.ResponseWriter, r *http.Request) {
	force, err := parseBool(r, "force_refresh")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageID := chi.URLParam(r, "page_id")
	res := s.engine.Begin()
	defer s.closeResolver(res)

	if _, err := res.GetOrganization(r.Context(), pageID, false); err != nil {
		s.resolveError(w, r, "organization", err)
		return
	}
	people, err := res.GetPersons(r.Context(), pageID, force)
	if err != nil {
		s.resolveError(w, r, "people", err)
		return
	}
	writeJSON(w, http.StatusOK, peopleResponse{PageID: pageID, People: people})
}

func (s *Server) getComments(w http.ResponseWriter, r *http.Request) {
	force, err := parseBool(r, "force_refresh")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	postID := chi.URLParam(r, "post_id")
	res := s.engine.Begin()
	defer s.closeResolver(res)

	comments, err := res.GetComments(r.Context(), postID, force)
	if err != nil {
		s.resolveError(w, r, "comments", err)
		return
	}
	writeJSON(w, http.StatusOK, commentsResponse{PostID: postID, Comments: comments})
}

func (s *Server) acquire(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "page_id")
	res := s.engine.Begin()
	defer s.closeResolver(res)

	acq, err := res.AcquireAll(r.Context(), pageID)
	if err != nil {
		s.resolveError(w, r, "acquisition", err)
		return
	}
	s.cache.Delete(r.Context(), summaryCacheKey+pageID)
	writeJSON(w, http.StatusOK, acquireResponse{
		PageID:   pageID,
		Posts:    len(acq.Posts),
		People:   len(acq.People),
		Comments: len(acq.Comments),
	})
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	if s.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, summary.ErrNotConfigured.Error())
		return
	}
	force, err := parseBool(r, "force_generate")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageID := chi.URLParam(r, "page_id")
	key := summaryCacheKey + pageID
	if !force {
		if cached, ok := cache.GetJSON[summary.Summary](r.Context(), s.cache, key); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	res := s.engine.Begin()
	defer s.closeResolver(res)

	org, err := res.GetOrganization(r.Context(), pageID, false)
	if err != nil {
		s.resolveError(w, r, "organization", err)
		return
	}
	posts, err := res.GetPosts(r.Context(), pageID, false)
	if err != nil {
		s.resolveError(w, r, "posts", err)
		return
	}
	people, err := res.GetPersons(r.Context(), pageID, false)
	if err != nil {
		s.resolveError(w, r, "people", err)
		return
	}
	out, err := s.summarizer.Summarize(r.Context(), org, posts, people)
	if err != nil {
		s.logger.Error("summarize failed", zap.String("page_id", pageID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to generate summary")
		return
	}
	ttl := config.Seconds(s.cfg.Summary.CacheTTLSeconds)
	if err := cache.SetJSON(r.Context(), s.cache, key, out, ttl); err != nil {
		s.logger.Warn("cache summary failed", zap.String("page_id", pageID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) resolveError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		s.logger.Error("resolve failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("what", what),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load "+what)
	}
}

func (s *Server) closeResolver(res *resolver.Resolver) {
	if err := res.Close(); err != nil {
		s.logger.Warn("close browser session", zap.Error(err))
	}
}

func parseBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", name)
	}
	return v, nil
}

func parsePageLimit(r *http.Request) (int, int, error) {
	page, limit := 1, defaultPageSize
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return 0, 0, fmt.Errorf("limit must be between 1 and %d", maxPageSize)
		}
		limit = n
	}
	return page, limit, nil
}

func parseOrganizationFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	filter := store.Filter{Name: strings.TrimSpace(q.Get("name"))}
	if v := strings.TrimSpace(q.Get("industry")); v != "" {
		filter.Industry = insights.ParseIndustry(v)
	}
	for _, bound := range []struct {
		name string
		dst  **int64
	}{
		{"min_followers", &filter.MinFollowers},
		{"max_followers", &filter.MaxFollowers},
	} {
		v := q.Get(bound.name)
		if v == "" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return store.Filter{}, fmt.Errorf("%s must be a non-negative integer", bound.name)
		}
		*bound.dst = &n
	}
	if filter.MinFollowers != nil && filter.MaxFollowers != nil && *filter.MinFollowers > *filter.MaxFollowers {
		return store.Filter{}, errors.New("min_followers must not exceed max_followers")
	}
	return filter, nil
}
