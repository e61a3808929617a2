package content

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"certprep/internal/quiz"
)

func TestHTTPSourceFetchesCertification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/certifications/aws-saa" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name": "AWS SAA", "questions": [
			{"id": "q1", "question": "Object storage?", "answers": [{"id": "a", "text": "S3", "isCorrect": true}, {"id": "b", "text": "EFS"}]}
		]}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPSourceConfig{BaseURL: srv.URL + "/", AuthHeader: "Bearer svc"})
	cert, err := src.FetchCertification(context.Background(), "aws-saa")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if cert.Slug != "aws-saa" || cert.Name != "AWS SAA" || len(cert.Questions) != 1 {
		t.Fatalf("unexpected certification: %+v", cert)
	}

	_, err = src.FetchCertification(context.Background(), "nope")
	if !errors.Is(err, ErrCertificationNotFound) || !errors.Is(err, quiz.ErrContentLoadFailed) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHTTPSourceWrapsUpstreamFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `{}`},
		{"bad json", http.StatusOK, `{"questions":`},
		{"empty set", http.StatusOK, `{"questions": []}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewHTTPSource(HTTPSourceConfig{BaseURL: srv.URL}).FetchCertification(context.Background(), "x")
			if !errors.Is(err, quiz.ErrContentLoadFailed) {
				t.Fatalf("expected content load failure, got %v", err)
			}
		})
	}
}
