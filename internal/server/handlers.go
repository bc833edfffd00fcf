package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/technews/internal/model"
)

const triggerTimeout = 15 * time.Minute

func (s *Server) listContent(w http.ResponseWriter, r *http.Request) {
	var (
		f   model.ContentFilter
		err error
	)
	if f.CategoryID, err = queryInt64(r, "category_id"); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.SourceID, err = queryInt64(r, "source_id"); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.IsRead, err = queryBool(r, "is_read"); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.IsBookmarked, err = queryBool(r, "is_bookmarked"); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.Page, err = queryInt(r, "page"); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.PageSize, err = queryInt(r, "page_size"); err != nil {
		s.fail(w, r, err)
		return
	}
	f.Search = r.URL.Query().Get("search")

	page, err := s.store.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		Duration int `json:"duration"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Duration < 0 {
		s.fail(w, r, invalid("duration must not be negative"))
		return
	}
	if err := s.store.MarkRead(r.Context(), id, body.Duration); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_read": true})
}

func (s *Server) markUnread(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.MarkUnread(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_read": false})
}

func (s *Server) toggleBookmark(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	state, err := s.store.ToggleBookmark(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_bookmarked": state})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items, err := s.store.History(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.Categories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	categoryID, err := queryInt64(r, "category_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sources, err := s.store.ListSources(r.Context(), categoryID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sources == nil {
		sources = []model.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

type createSourceRequest struct {
	Name        string           `json:"name"`
	URL         string           `json:"url"`
	Description string           `json:"description"`
	CategoryID  int64            `json:"category_id"`
	Category    string           `json:"category"`
	Trust       model.TrustLevel `json:"trust"`
	Active      *bool            `json:"active"`
}

func (req createSourceRequest) validate() error {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("url must be an absolute http(s) URL")
	}
	if req.Trust == model.TrustSpecialized && req.CategoryID == 0 && req.Category == "" {
		return invalid("a specialized source needs a category")
	}
	return nil
}

// createSource only registers URLs that currently serve a parseable feed
// with at least one entry.
func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	req.URL = strings.TrimSpace(req.URL)

	if err := s.feeds.Validate(r.Context(), req.URL); err != nil {
		s.fail(w, r, invalid("feed check failed: %v", err))
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	src, err := s.store.CreateSource(r.Context(), model.Source{
		Name:        strings.TrimSpace(req.Name),
		URL:         req.URL,
		Description: req.Description,
		CategoryID:  req.CategoryID,
		Category:    req.Category,
		Trust:       req.Trust,
		Active:      active,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("source registered", "source_id", src.ID, "source", src.URL)
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) sourceStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.store.SourceStats(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Active == nil {
		s.fail(w, r, invalid("active is required"))
		return
	}
	if err := s.store.SetActive(r.Context(), id, *body.Active); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": *body.Active})
}

// triggerContext detaches a manual run from the client connection. A
// disconnect must not abandon a cycle halfway.
func triggerContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(r.Context()), triggerTimeout)
}

func (s *Server) fetchSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx, cancel := triggerContext(r)
	defer cancel()
	report, err := s.ingest.FetchOne(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) fetchAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := triggerContext(r)
	defer cancel()
	sum, err := s.ingest.FetchAll(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := triggerContext(r)
	defer cancel()
	n, err := s.ingest.SummarizeMissing(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"summarized": n})
}
