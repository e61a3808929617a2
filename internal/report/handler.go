package report

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certprep/internal/app/apiresp"
	"certprep/internal/identity"
	"certprep/internal/results"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// History lists the caller's persisted results.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.svc.History(r.Context(), user.ID, limit)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load results")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	out, err := h.svc.Detail(r.Context(), user, chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, results.ErrResultNotFound) {
			apiresp.WriteErrorCode(w, r, http.StatusNotFound, "result_not_found", "result not found")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to load result")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) HistoryExport(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	content, err := h.svc.HistoryWorkbook(r.Context(), user.ID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to export results")
		return
	}
	WriteXLSX(w, "results-"+user.ID+".xlsx", content)
}

func WriteXLSX(w http.ResponseWriter, filename string, content []byte) {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
