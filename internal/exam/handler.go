package exam

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"certprep/internal/app/apiresp"
	"certprep/internal/content"
	"certprep/internal/identity"
	"certprep/internal/quiz"
	"certprep/internal/report"
)

type Handler struct {
	svc examService
}

type examService interface {
	Start(ctx context.Context, user identity.User, in StartInput) (quiz.SessionView, error)
	Snapshot(sessionID string, user identity.User) (quiz.SessionView, error)
	Answer(sessionID string, user identity.User, choiceID string) (quiz.AnswerOutcome, error)
	Review(sessionID string, user identity.User, choiceID string) (ReviewOutcome, error)
	Next(sessionID string, user identity.User) (quiz.SessionView, error)
	Goto(sessionID string, user identity.User, index int) (quiz.SessionView, error)
	Restart(sessionID string, user identity.User, seed string) (quiz.SessionView, error)
	Explanation(sessionID string, user identity.User, questionID string) (string, error)
	AskAI(ctx context.Context, sessionID string, user identity.User, questionID string) (quiz.AIRequest, error)
	AIState(sessionID string, user identity.User, questionID string) (quiz.AIRequest, error)
	CancelAI(sessionID string, user identity.User) (quiz.AIRequest, error)
	Result(sessionID string, user identity.User) (quiz.Classification, error)
	Transcript(sessionID string, user identity.User) (quiz.Transcript, error)
	Finish(ctx context.Context, sessionID string, user identity.User) (quiz.Transcript, error)
	Close(sessionID string, user identity.User) error
}

type startRequest struct {
	Certification string `json:"certification"`
	Seed          string `json:"seed"`
}

type choiceRequest struct {
	ChoiceID string `json:"choice_id"`
}

type restartRequest struct {
	Seed string `json:"seed"`
}

type shuffleRequest struct {
	Items []string `json:"items"`
}

func NewHandler(svc examService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := identity.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Certification) == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "certification is required")
		return
	}

	view, err := h.svc.Start(r.Context(), user, StartInput{Certification: req.Certification, Seed: req.Seed})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, view)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Snapshot(id, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, view)
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	var req choiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.Answer(id, user, req.ChoiceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	var req choiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := h.svc.Review(id, user, req.ChoiceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	view, err := h.svc.Next(id, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, view)
}

func (h *Handler) Goto(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question index")
		return
	}
	view, err := h.svc.Goto(id, user, index)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, view)
}

func (h *Handler) Restart(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	var req restartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	view, err := h.svc.Restart(id, user, req.Seed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, view)
}

func (h *Handler) Explanation(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	questionID := chi.URLParam(r, "questionID")
	text, err := h.svc.Explanation(id, user, questionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{
		"question_id": questionID,
		"explanation": text,
	})
}

// Assist starts an AI request and answers 202 with the loading state; clients
// poll AssistState for the outcome.
func (h *Handler) Assist(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	st, err := h.svc.AskAI(r.Context(), id, user, chi.URLParam(r, "questionID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusAccepted, st)
}

func (h *Handler) AssistState(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	st, err := h.svc.AIState(id, user, chi.URLParam(r, "questionID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, st)
}

func (h *Handler) CancelAssist(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	st, err := h.svc.CancelAI(id, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, st)
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Result(id, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func (h *Handler) Finish(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Finish(r.Context(), id, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, t)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Transcript(id, user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	content, err := report.TranscriptWorkbook(t)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "failed to export session")
		return
	}
	report.WriteXLSX(w, "session-"+id+".xlsx", content)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	user, id, ok := sessionTarget(w, r)
	if !ok {
		return
	}
	if err := h.svc.Close(id, user); err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "closed"})
}

// Shuffle reorders items for a throwaway client-side preview. It never touches
// a session's canonical order.
func (h *Handler) Shuffle(w http.ResponseWriter, r *http.Request) {
	var req shuffleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) > 500 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "too many items")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string][]string{"items": quiz.ShuffleLocal(req.Items)})
}

func sessionTarget(w http.ResponseWriter, r *http.Request) (identity.User, string, bool) {
	user, ok := identity.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return identity.User{}, "", false
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid session id")
		return identity.User{}, "", false
	}
	return user, id, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSessionForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrSessionNotFound):
		apiresp.WriteErrorCode(w, r, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, quiz.ErrQuestionNotFound):
		apiresp.WriteErrorCode(w, r, http.StatusNotFound, "question_not_found", err.Error())
	case errors.Is(err, content.ErrCertificationNotFound):
		apiresp.WriteErrorCode(w, r, http.StatusNotFound, "certification_not_found", "certification not found")
	case errors.Is(err, quiz.ErrAttemptsExhausted):
		apiresp.WriteErrorCode(w, r, http.StatusConflict, "attempts_exhausted", err.Error())
	case errors.Is(err, quiz.ErrAlreadyGraded):
		apiresp.WriteErrorCode(w, r, http.StatusConflict, "already_graded", err.Error())
	case errors.Is(err, quiz.ErrSessionCompleted):
		apiresp.WriteErrorCode(w, r, http.StatusConflict, "session_completed", err.Error())
	case errors.Is(err, quiz.ErrSessionNotCompleted):
		apiresp.WriteErrorCode(w, r, http.StatusConflict, "session_not_completed", err.Error())
	case errors.Is(err, quiz.ErrExplanationLocked):
		apiresp.WriteErrorCode(w, r, http.StatusConflict, "explanation_locked", err.Error())
	case errors.Is(err, quiz.ErrOutOfRange):
		apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "out_of_range", err.Error())
	case errors.Is(err, quiz.ErrUnknownChoice):
		apiresp.WriteErrorCode(w, r, http.StatusUnprocessableEntity, "unknown_choice", err.Error())
	case errors.Is(err, quiz.ErrContentLoadFailed):
		apiresp.WriteErrorCode(w, r, http.StatusBadGateway, "content_load_failed", "certification content could not be loaded")
	case errors.Is(err, quiz.ErrAIRequestFailed):
		apiresp.WriteErrorCode(w, r, http.StatusBadGateway, "ai_request_failed", err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
