package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"certprep/internal/quiz"
)

const systemPrompt = "You are a study assistant for IT certification practice exams. Explain concepts briefly and clearly. Never reveal which answer choice is correct unless the learner has already been shown the official explanation."

const (
	SourceGemini = "gemini"
	SourceLLM    = "llm"
	SourceLocal  = "local"
)

var (
	ErrEmptyQuery    = errors.New("query is required")
	ErrQueryTooLong  = errors.New("query too long")
	ErrEmptyResponse = errors.New("empty model response")
)

type ServiceConfig struct {
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	HTTPClient    *http.Client
}

// Service talks to Gemini, then to an OpenAI-compatible endpoint, and answers
// from canned text when neither is configured.
type Service struct {
	geminiAPIKey  string
	geminiModel   string
	geminiBaseURL string
	llmBaseURL    string
	llmAPIKey     string
	llmModel      string
	client        *http.Client
}

type Result struct {
	Reply  string
	Source string
}

func NewService(cfg ServiceConfig) *Service {
	model := strings.TrimSpace(cfg.GeminiModel)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	geminiBase := strings.TrimRight(strings.TrimSpace(cfg.GeminiBaseURL), "/")
	if geminiBase == "" {
		geminiBase = "https://generativelanguage.googleapis.com/v1beta"
	}
	llmModel := strings.TrimSpace(cfg.LLMModel)
	if llmModel == "" {
		llmModel = "gpt-4o-mini"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Service{
		geminiAPIKey:  strings.TrimSpace(cfg.GeminiAPIKey),
		geminiModel:   model,
		geminiBaseURL: geminiBase,
		llmBaseURL:    strings.TrimRight(strings.TrimSpace(cfg.LLMBaseURL), "/"),
		llmAPIKey:     strings.TrimSpace(cfg.LLMAPIKey),
		llmModel:      llmModel,
		client:        client,
	}
}

// Source names the backend Explain and Generate will use.
func (s *Service) Source() string {
	switch {
	case s.geminiAPIKey != "":
		return SourceGemini
	case s.llmBaseURL != "":
		return SourceLLM
	default:
		return SourceLocal
	}
}

// Explain answers a learner's question about one exam item. Provider failures
// are returned so the session shows them as an error state.
func (s *Service) Explain(ctx context.Context, questionText string, ec quiz.ExplainContext) (string, error) {
	prompt := buildExplainPrompt(questionText, ec)
	switch s.Source() {
	case SourceGemini:
		return s.generateWithGemini(ctx, prompt)
	case SourceLLM:
		return s.generateWithLLM(ctx, prompt)
	default:
		return localExplanation(questionText, ec), nil
	}
}

// Generate is the free-form study help used by the assistant reply endpoint.
// Provider failures fall back to the canned replies.
func (s *Service) Generate(ctx context.Context, query string) (Result, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Result{}, ErrEmptyQuery
	}
	if len(q) > 1200 {
		return Result{}, ErrQueryTooLong
	}

	var (
		reply string
		err   error
	)
	source := s.Source()
	switch source {
	case SourceGemini:
		reply, err = s.generateWithGemini(ctx, q)
	case SourceLLM:
		reply, err = s.generateWithLLM(ctx, q)
	default:
		return Result{Reply: localReply(q), Source: SourceLocal}, nil
	}
	if err != nil {
		return Result{Reply: localReply(q), Source: "local_fallback"}, nil
	}
	return Result{Reply: reply, Source: source}, nil
}

func buildExplainPrompt(questionText string, ec quiz.ExplainContext) string {
	var b strings.Builder
	if ec.CertificationName != "" {
		fmt.Fprintf(&b, "Certification: %s\n", ec.CertificationName)
	}
	fmt.Fprintf(&b, "Exam question: %s\n", strings.TrimSpace(questionText))
	if len(ec.Choices) > 0 {
		b.WriteString("Answer choices:\n")
		for i, c := range ec.Choices {
			fmt.Fprintf(&b, "%d. %s\n", i+1, c)
		}
	}
	if ec.Explanation != "" {
		fmt.Fprintf(&b, "Official explanation: %s\n", ec.Explanation)
		b.WriteString("Expand on the official explanation and the underlying concept.")
	} else {
		b.WriteString("Explain the concepts needed to reason about this question without naming the correct choice.")
	}
	return b.String()
}

func (s *Service) generateWithGemini(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"contents": []map[string]any{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"systemInstruction": map[string]any{
			"parts": []map[string]string{
				{"text": systemPrompt},
			},
		},
		"generationConfig": map[string]any{
			"temperature":     0.4,
			"maxOutputTokens": 512,
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", s.geminiBaseURL, s.geminiModel)
	raw, err := s.postJSON(ctx, url, map[string]string{"x-goog-api-key": s.geminiAPIKey}, reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	var out geminiGenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("gemini: decode: %w", err)
	}
	reply := strings.TrimSpace(out.firstText())
	if reply == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return reply, nil
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Stream      bool                    `json:"stream"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens"`
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
}

func (s *Service) generateWithLLM(ctx context.Context, prompt string) (string, error) {
	reqBody := chatCompletionRequest{
		Model: s.llmModel,
		Messages: []chatCompletionMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.4,
		MaxTokens:   512,
	}
	headers := map[string]string{}
	if s.llmAPIKey != "" {
		headers["Authorization"] = "Bearer " + s.llmAPIKey
	}
	raw, err := s.postJSON(ctx, s.llmBaseURL+"/chat/completions", headers, reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: %w", err)
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("llm: decode: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("llm: %w", ErrEmptyResponse)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (s *Service) postJSON(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return raw, nil
}

func localExplanation(questionText string, ec quiz.ExplainContext) string {
	if ec.Explanation != "" {
		return "Here is the reasoning behind this item: " + ec.Explanation
	}
	return "Read the question again and rule out choices that contradict its key requirement: " +
		strings.TrimSpace(questionText) + " An AI provider is not configured, so only study hints are available before the explanation unlocks."
}

func localReply(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	switch {
	case strings.Contains(q, "attempt"), strings.Contains(q, "retry"):
		return "Each question allows a limited number of attempts. Points are awarded only for the first correct answer."
	case strings.Contains(q, "explanation"), strings.Contains(q, "reveal"):
		return "The explanation unlocks after you answer correctly or use every attempt on that question."
	case strings.Contains(q, "score"), strings.Contains(q, "pass"):
		return "Your score is the share of questions answered correctly. Reaching the pass threshold marks the session as passed."
	case strings.Contains(q, "restart"), strings.Contains(q, "again"):
		return "Restarting creates a new session with a fresh order. Your previous attempts are not carried over."
	case strings.Contains(q, "error"), strings.Contains(q, "fail"):
		return "Refresh the page and try again. If the problem continues, report the time it happened to your administrator."
	default:
		return "I can help with attempts, explanations, scoring, and restarting a practice session. Describe your question briefly."
	}
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r geminiGenerateResponse) firstText() string {
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			if strings.TrimSpace(p.Text) != "" {
				return p.Text
			}
		}
	}
	return ""
}
