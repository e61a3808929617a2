package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"certprep/internal/app/observability"
	"certprep/internal/assistant"
	"certprep/internal/content"
	"certprep/internal/exam"
	"certprep/internal/identity"
	"certprep/internal/quiz"
	"certprep/internal/report"
	"certprep/internal/results"
)

const routerCertification = `slug: net-basics
name: Networking Basics
questions:
  - id: dns
    prompt: Which port does DNS use?
    choices:
      - id: a
        text: "53"
        correct: true
      - id: b
        text: "80"
  - id: tls
    prompt: Which port does HTTPS use?
    choices:
      - id: a
        text: "443"
        correct: true
      - id: b
        text: "21"
`

type emptyHistory struct{}

func (emptyHistory) ListByUser(ctx context.Context, userID string, limit int) ([]results.Summary, error) {
	return nil, nil
}

func (emptyHistory) Get(ctx context.Context, sessionID string) (results.Summary, []results.SubmissionRecord, error) {
	return results.Summary{}, nil, results.ErrResultNotFound
}

type routerFixture struct {
	handler   http.Handler
	collector *observability.Collector
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "net-basics.yaml"), []byte(routerCertification), 0o600); err != nil {
		t.Fatal(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("learner-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ids, err := identity.NewService(identity.Config{
		Secret:      "router-test-secret-0123456789",
		DevAccounts: []identity.DevAccount{{Username: "learner", PasswordHash: string(hash), Role: identity.RoleLearner}},
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg := Config{CORSOrigins: []string{"http://localhost:3000"}, AIRateLimitPerMin: 5}
	collector := observability.NewCollector(nil)
	dirSource := content.NewDirSource(dir)
	ai := assistant.NewService(assistant.ServiceConfig{})
	svc := exam.NewService(exam.ServiceConfig{
		Source:    dirSource,
		Explainer: ai,
		Policy:    quiz.Policy{MaxAttempts: 3, PassThreshold: 70},
		Events:    collector,
	})
	collector.TrackActiveSessions(svc.ActiveSessions)
	t.Cleanup(svc.Shutdown)

	h := NewRouter(cfg, collector, Handlers{
		Identity:  identity.NewHandler(ids),
		Exam:      exam.NewHandler(svc),
		Reports:   report.NewHandler(report.NewService(emptyHistory{})),
		Assistant: assistant.NewHandler(ai),
		Content:   content.NewAdminHandler(dirSource, nil),
	})
	return routerFixture{handler: h, collector: collector}
}

func (f routerFixture) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	out := map[string]any{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v body=%s", method, path, err, rr.Body.String())
		}
	}
	return rr.Code, out
}

func (f routerFixture) login(t *testing.T) string {
	t.Helper()
	code, body := f.do(t, http.MethodPost, "/api/v1/auth/token", "", `{"username":"learner","password":"learner-pass"}`)
	if code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d %v", code, body)
	}
	data := body["data"].(map[string]any)
	return data["access_token"].(string)
}

func TestRouterHealthz(t *testing.T) {
	f := newRouterFixture(t)
	code, body := f.do(t, http.MethodGet, "/healthz", "", "")
	if code != http.StatusOK || body["ok"] != true {
		t.Fatalf("unexpected healthz %d %v", code, body)
	}
}

func TestRouterRequiresBearerToken(t *testing.T) {
	f := newRouterFixture(t)
	code, _ := f.do(t, http.MethodPost, "/api/v1/sessions", "", `{"certification":"net-basics"}`)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRouterSessionFlow(t *testing.T) {
	f := newRouterFixture(t)
	token := f.login(t)

	code, body := f.do(t, http.MethodPost, "/api/v1/sessions", token, `{"certification":"net-basics","seed":"fixed"}`)
	if code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d %v", code, body)
	}
	view := body["data"].(map[string]any)
	id := view["id"].(string)
	if view["total"].(float64) != 2 {
		t.Fatalf("expected two questions, got %v", view["total"])
	}
	current := view["current"].(map[string]any)
	questionID := current["id"].(string)

	code, body = f.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/questions/"+questionID+"/explanation", token, "")
	if code != http.StatusConflict {
		t.Fatalf("explanation before answering: expected 409, got %d %v", code, body)
	}

	code, body = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/answer", token, `{"choice_id":"a"}`)
	if code != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d %v", code, body)
	}
	if body["data"].(map[string]any)["correct"] != true {
		t.Fatalf("expected correct answer, got %v", body)
	}

	code, _ = f.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/questions/"+questionID+"/explanation", token, "")
	if code != http.StatusOK {
		t.Fatalf("explanation after correct answer: expected 200, got %d", code)
	}

	code, body = f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/goto/5", token, "")
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("goto out of range: expected 422, got %d %v", code, body)
	}

	code, _ = f.do(t, http.MethodDelete, "/api/v1/sessions/"+id, token, "")
	if code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", code)
	}
	code, _ = f.do(t, http.MethodGet, "/api/v1/sessions/"+id, token, "")
	if code != http.StatusNotFound {
		t.Fatalf("closed session: expected 404, got %d", code)
	}

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), `certprep_session_events_total{event="session_started"} 1`) {
		t.Fatalf("expected session_started counter, got:\n%s", rr.Body.String())
	}
}

func TestRouterAdminRoutesRequireAdmin(t *testing.T) {
	f := newRouterFixture(t)
	token := f.login(t)
	code, _ := f.do(t, http.MethodDelete, "/api/v1/admin/certifications/net-basics/cache", token, "")
	if code != http.StatusForbidden {
		t.Fatalf("expected 403 for learner, got %d", code)
	}
}

func TestRouterHistoryEmpty(t *testing.T) {
	f := newRouterFixture(t)
	token := f.login(t)
	code, body := f.do(t, http.MethodGet, "/api/v1/results", token, "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", code, body)
	}
}

func TestRouterResultDetailNotFound(t *testing.T) {
	f := newRouterFixture(t)
	token := f.login(t)
	code, body := f.do(t, http.MethodGet, "/api/v1/results/nope", token, "")
	if code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %v", code, body)
	}
}
