package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"certprep/internal/quiz"
)

func TestExplainWithGemini(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/test-model:generateContent" || r.URL.RawQuery != "" || r.Header.Get("x-goog-api-key") != "k" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
			gotPrompt = body.Contents[0].Parts[0].Text
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" "},{"text":"S3 stores objects."}]}}]}`))
	}))
	defer srv.Close()

	svc := NewService(ServiceConfig{GeminiAPIKey: "k", GeminiModel: "test-model", GeminiBaseURL: srv.URL})
	if svc.Source() != SourceGemini {
		t.Fatalf("expected gemini source, got %s", svc.Source())
	}
	reply, err := svc.Explain(context.Background(), "Which service stores objects?", quiz.ExplainContext{
		CertificationName: "AWS SAA",
		Choices:           []string{"S3", "EBS"},
	})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if reply != "S3 stores objects." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if !strings.Contains(gotPrompt, "AWS SAA") || !strings.Contains(gotPrompt, "2. EBS") {
		t.Fatalf("prompt missing context: %q", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "without naming the correct choice") {
		t.Fatalf("locked prompt must not ask for the answer: %q", gotPrompt)
	}
}

func TestExplainWithOpenAICompatibleEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		var req chatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama3" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected request %+v", req)
		}
		if !strings.Contains(req.Messages[1].Content, "Official explanation: Pods run containers.") {
			t.Errorf("expected unlocked explanation in prompt, got %q", req.Messages[1].Content)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A pod wraps containers."}}]}`))
	}))
	defer srv.Close()

	svc := NewService(ServiceConfig{LLMBaseURL: srv.URL + "/v1/", LLMAPIKey: "secret", LLMModel: "llama3"})
	reply, err := svc.Explain(context.Background(), "What runs containers?", quiz.ExplainContext{Explanation: "Pods run containers."})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if reply != "A pod wraps containers." {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestExplainReturnsProviderFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := NewService(ServiceConfig{LLMBaseURL: srv.URL})
	if _, err := svc.Explain(context.Background(), "q", quiz.ExplainContext{}); err == nil {
		t.Fatalf("expected provider error")
	}

	res, err := svc.Generate(context.Background(), "how do attempts work?")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.Source != "local_fallback" || !strings.Contains(res.Reply, "attempts") {
		t.Fatalf("expected local fallback, got %+v", res)
	}
}

func TestLocalMode(t *testing.T) {
	svc := NewService(ServiceConfig{})
	if svc.Source() != SourceLocal {
		t.Fatalf("expected local source")
	}

	reply, err := svc.Explain(context.Background(), "q", quiz.ExplainContext{Explanation: "Because."})
	if err != nil || !strings.HasSuffix(reply, "Because.") {
		t.Fatalf("unexpected local explanation %q, %v", reply, err)
	}

	cases := []struct {
		query string
		want  error
	}{
		{"  ", ErrEmptyQuery},
		{strings.Repeat("x", 1201), ErrQueryTooLong},
	}
	for _, tc := range cases {
		if _, err := svc.Generate(context.Background(), tc.query); err != tc.want {
			t.Fatalf("expected %v, got %v", tc.want, err)
		}
	}
}

var _ quiz.Explainer = (*Service)(nil)

func TestGeminiTransportErrorDoesNotExposeKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	svc := NewService(ServiceConfig{GeminiAPIKey: "TOPSECRETKEY", GeminiModel: "test-model", GeminiBaseURL: base})
	_, err := svc.Explain(context.Background(), "Which service stores objects?", quiz.ExplainContext{})
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if strings.Contains(err.Error(), "TOPSECRETKEY") {
		t.Fatalf("error leaks api key: %v", err)
	}
}
