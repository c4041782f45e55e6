package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/quantmind-br/docgate/internal/domain"
	"github.com/quantmind-br/docgate/internal/refs"
	"github.com/quantmind-br/docgate/pkg/version"
	"golang.org/x/sync/errgroup"
)

// DocsResponse is the body of a canonical /docs request
type DocsResponse struct {
	Lang string              `json:"lang"`
	Ref  string              `json:"ref"`
	Menu []*domain.MenuNode  `json:"menu"`
	Doc  *domain.RenderedDoc `json:"doc"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Short(),
		"caches":  s.content.CacheStats(),
	})
}

func (s *Server) handleRefs(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	set, err := s.refs.Refs(r.Context(), repo)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	tree, err := s.content.GetMenu(r.Context(), repo, r.PathValue("ref"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleDoc(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	doc, err := s.content.GetDoc(r.Context(), repo, r.PathValue("ref"), r.PathValue("slug"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}
	slug := r.PathValue("slug")
	data, err := s.content.GetImage(r.Context(), repo, r.PathValue("ref"), slug)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(slug))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleDocs redirects non-canonical paths and otherwise returns the menu
// and page of the requested ref together.
func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	repo, ok := s.repo(w, r)
	if !ok {
		return
	}

	p := refs.ParsePath(r.PathValue("path"))
	target, redirect, err := s.refs.Resolve(r.Context(), repo, p, s.opts.DefaultLang)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if redirect {
		location := "/docs/" + target
		if r.URL.RawQuery != "" {
			location += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, location, http.StatusFound)
		return
	}

	resp := DocsResponse{Lang: p.Lang, Ref: p.Ref}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		tree, err := s.content.GetMenu(ctx, repo, p.Ref)
		resp.Menu = tree
		return err
	})
	g.Go(func() error {
		doc, err := s.content.GetDoc(ctx, repo, p.Ref, p.Splat)
		resp.Doc = doc
		return err
	})
	if err := g.Wait(); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) repo(w http.ResponseWriter, r *http.Request) (string, bool) {
	repo, err := s.opts.Repo(strings.TrimSpace(r.URL.Query().Get("repo")))
	if err != nil {
		s.writeErr(w, r, err)
		return "", false
	}
	return repo, true
}

// StatusFor maps an error to its HTTP status code
func StatusFor(err error) int {
	var (
		validationErr *domain.ValidationError
		parseErr      *domain.ParseError
		transportErr  *domain.TransportError
		fetchErr      *domain.FetchError
	)
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transportErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	event := s.logger.Warn()
	if status == http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
