package server

import (
	"errors"
	"net/http"
	"strings"

	"bizassist/internal/util"
	"bizassist/pkg/domain"
	"bizassist/services/api/internal/app"
)

type websiteRequest struct {
	Name      string `json:"name" validate:"required,max=120"`
	Subdomain string `json:"subdomain" validate:"required,max=63"`
}

type pageRequest struct {
	Slug        string `json:"slug" validate:"required,max=128"`
	Title       string `json:"title" validate:"max=200"`
	Description string `json:"description" validate:"max=500"`
	HTML        string `json:"html" validate:"required"`
}

type publishRequest struct {
	Published *bool `json:"published"`
}

func (s *Server) handleWebsites(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.app.ListWebsites(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
	case http.MethodPost:
		var req websiteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		site, err := s.app.CreateWebsite(r.Context(), id, app.WebsiteInput{Name: req.Name, Subdomain: req.Subdomain})
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, site)
	default:
		methodNotAllowed(w)
	}
}

// handleWebsiteByID serves /api/websites/{id}, /api/websites/{id}/pages and
// /api/websites/{id}/publish.
func (s *Server) handleWebsiteByID(w http.ResponseWriter, r *http.Request, id domain.Identity) {
	path := strings.TrimPrefix(r.URL.Path, "/api/websites/")
	parts := strings.SplitN(path, "/", 2)
	websiteID := parts[0]
	if websiteID == "" {
		http.NotFound(w, r)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "pages":
			s.handlePutPage(w, r, id, websiteID)
		case "publish":
			s.handlePublish(w, r, id, websiteID)
		default:
			http.NotFound(w, r)
		}
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	site, err := s.app.GetWebsite(r.Context(), id, websiteID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handlePutPage(w http.ResponseWriter, r *http.Request, id domain.Identity, websiteID string) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req pageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	page, err := s.app.PutPage(r.Context(), id, websiteID, app.PageInput{
		Slug:        req.Slug,
		Title:       req.Title,
		Description: req.Description,
		HTML:        req.HTML,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request, id domain.Identity, websiteID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	published := true
	var req publishRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Published != nil {
			published = *req.Published
		}
	}
	site, err := s.app.PublishWebsite(r.Context(), id, websiteID, published)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

// handlePublicSite renders /sites/{subdomain}/{slug} without authentication.
func (s *Server) handlePublicSite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	subdomain, slug, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, util.PublicSitePrefix), "/")
	if subdomain == "" {
		http.NotFound(w, r)
		return
	}
	body, err := s.app.RenderPublicPage(r.Context(), subdomain, slug)
	if err != nil {
		var nf *app.NotFoundError
		if errors.As(err, &nf) {
			http.NotFound(w, r)
			return
		}
		util.LoggerFromContext(r.Context()).Error("render public page failed", "subdomain", subdomain, "slug", slug, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		_, _ = w.Write(body)
	}
}
