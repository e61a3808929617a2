package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"certprep/internal/quiz"
)

var ErrCertificationNotFound = errors.New("certification not found")

// Certification is validated content ready for the session engine.
type Certification struct {
	Slug          string          `json:"slug"`
	Name          string          `json:"name"`
	PassThreshold *int            `json:"pass_threshold,omitempty"`
	Questions     []quiz.Question `json:"questions"`
}

type Source interface {
	FetchCertification(ctx context.Context, slug string) (Certification, error)
}

type HTTPSourceConfig struct {
	BaseURL    string
	AuthHeader string
	HTTPClient *http.Client
}

// HTTPSource reads certifications from {BaseURL}/certifications/{slug}.
type HTTPSource struct {
	baseURL    string
	authHeader string
	client     *http.Client
}

func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		authHeader: strings.TrimSpace(cfg.AuthHeader),
		client:     client,
	}
}

func (s *HTTPSource) FetchCertification(ctx context.Context, slug string) (Certification, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Certification{}, fmt.Errorf("%w: slug is required", quiz.ErrContentLoadFailed)
	}

	endpoint := s.baseURL + "/certifications/" + url.PathEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Certification{}, fmt.Errorf("%w: build request: %v", quiz.ErrContentLoadFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.authHeader != "" {
		req.Header.Set("Authorization", s.authHeader)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Certification{}, fmt.Errorf("%w: %v", quiz.ErrContentLoadFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Certification{}, fmt.Errorf("%w: read body: %v", quiz.ErrContentLoadFailed, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return Certification{}, fmt.Errorf("%w: %w: %s", quiz.ErrContentLoadFailed, ErrCertificationNotFound, slug)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Certification{}, fmt.Errorf("%w: content status %d", quiz.ErrContentLoadFailed, resp.StatusCode)
	}

	doc, err := decodeJSONDocument(raw)
	if err != nil {
		return Certification{}, fmt.Errorf("%w: %v", quiz.ErrContentLoadFailed, err)
	}
	return ParseCertification(slug, doc)
}
