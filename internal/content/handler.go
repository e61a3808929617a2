package content

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"certprep/internal/app/apiresp"
)

type certificationWriter interface {
	Save(ctx context.Context, cert Certification) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, slug string) error
}

// AdminHandler imports question workbooks into the content directory and
// drops stale cache entries.
type AdminHandler struct {
	store certificationWriter
	cache cacheInvalidator
}

func NewAdminHandler(store certificationWriter, cache cacheInvalidator) *AdminHandler {
	return &AdminHandler{store: store, cache: cache}
}

func (h *AdminHandler) ImportWorkbook(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "slug is required")
		return
	}
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}

	var threshold *int
	if raw := strings.TrimSpace(r.FormValue("pass_threshold")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			apiresp.WriteError(w, r, http.StatusBadRequest, "pass_threshold must be between 1 and 100")
			return
		}
		threshold = &n
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	cert, report, err := ParseWorkbook(slug, strings.TrimSpace(r.FormValue("name")), threshold, file)
	if err != nil {
		if errors.Is(err, ErrInvalidWorkbook) || errors.Is(err, ErrInvalidContent) {
			msg := err.Error()
			if report != nil && report.FailedRows > 0 {
				msg = fmt.Sprintf("%s (%d of %d rows rejected, first on row %d: %s)",
					msg, report.FailedRows, report.TotalRows, report.Errors[0].Row, report.Errors[0].Error)
			}
			apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "invalid_workbook", msg)
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to read workbook")
		return
	}

	if err := h.store.Save(r.Context(), cert); err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to save certification")
		return
	}
	invalidated := false
	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context(), slug); err != nil {
			log.Printf("content import slug=%s: cache invalidation failed: %v", slug, err)
		} else {
			invalidated = true
		}
	}

	apiresp.WriteOK(w, r, http.StatusOK, map[string]any{
		"filename":    hdr.Filename,
		"slug":        cert.Slug,
		"name":        cert.Name,
		"questions":   len(cert.Questions),
		"report":      report,
		"invalidated": invalidated,
	})
}

func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	if slug == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "slug is required")
		return
	}
	if h.cache == nil {
		apiresp.WriteOK(w, r, http.StatusOK, map[string]any{"slug": slug, "invalidated": false})
		return
	}
	if err := h.cache.Invalidate(r.Context(), slug); err != nil {
		apiresp.WriteError(w, r, http.StatusBadGateway, "failed to invalidate cache")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]any{"slug": slug, "invalidated": true})
}
