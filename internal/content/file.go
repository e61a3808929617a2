package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"certprep/internal/quiz"
)

// DirSource serves certifications from {dir}/{slug}.yaml|.yml|.json.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: strings.TrimSpace(dir)}
}

func (s *DirSource) FetchCertification(ctx context.Context, slug string) (Certification, error) {
	if err := ctx.Err(); err != nil {
		return Certification{}, fmt.Errorf("%w: %v", quiz.ErrContentLoadFailed, err)
	}
	slug = strings.TrimSpace(slug)
	if slug == "" || strings.ContainsAny(slug, `/\`) || strings.HasPrefix(slug, ".") {
		return Certification{}, fmt.Errorf("%w: invalid slug %q", quiz.ErrContentLoadFailed, slug)
	}

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(s.dir, slug+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Certification{}, fmt.Errorf("%w: read %s: %v", quiz.ErrContentLoadFailed, path, err)
		}
		doc, err := parseDocument(data, ext)
		if err != nil {
			return Certification{}, fmt.Errorf("%w: %s: %v", quiz.ErrContentLoadFailed, path, err)
		}
		return ParseCertification(slug, doc)
	}
	return Certification{}, fmt.Errorf("%w: %w: %s", quiz.ErrContentLoadFailed, ErrCertificationNotFound, slug)
}

func parseDocument(data []byte, ext string) (map[string]interface{}, error) {
	if ext == ".json" {
		return decodeJSONDocument(data)
	}
	return decodeYAMLDocument(data)
}

func decodeYAMLDocument(data []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, errors.New("parse yaml: multiple documents are not supported")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return nil, errors.New("parse yaml: empty document")
	}
	return doc, nil
}

type choiceDocument struct {
	ID      string `yaml:"id"`
	Text    string `yaml:"text"`
	Correct bool   `yaml:"correct,omitempty"`
}

type questionDocument struct {
	ID           string           `yaml:"id"`
	Question     string           `yaml:"question"`
	Points       int              `yaml:"points"`
	ReferenceURL string           `yaml:"reference_url,omitempty"`
	Explanation  string           `yaml:"explanation,omitempty"`
	Choices      []choiceDocument `yaml:"choices"`
}

type certificationDocument struct {
	Slug          string             `yaml:"slug"`
	Name          string             `yaml:"name"`
	PassThreshold *int               `yaml:"pass_threshold,omitempty"`
	Questions     []questionDocument `yaml:"questions"`
}

// Save writes cert to {dir}/{slug}.yaml, replacing any .yml or .json copy so
// the saved file is the one FetchCertification reads next.
func (s *DirSource) Save(ctx context.Context, cert Certification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slug := strings.TrimSpace(cert.Slug)
	if slug == "" || strings.ContainsAny(slug, `/\`) || strings.HasPrefix(slug, ".") {
		return fmt.Errorf("%w: invalid slug %q", ErrInvalidContent, slug)
	}

	doc := certificationDocument{
		Slug:          slug,
		Name:          cert.Name,
		PassThreshold: cert.PassThreshold,
		Questions:     make([]questionDocument, 0, len(cert.Questions)),
	}
	for _, q := range cert.Questions {
		qd := questionDocument{
			ID:           q.ID,
			Question:     q.Prompt,
			Points:       q.Points,
			ReferenceURL: q.ReferenceURL,
			Explanation:  q.Explanation,
			Choices:      make([]choiceDocument, 0, len(q.Choices)),
		}
		for _, c := range q.Choices {
			qd.Choices = append(qd.Choices, choiceDocument{ID: c.ID, Text: c.Text, Correct: c.IsCorrect})
		}
		doc.Questions = append(doc.Questions, qd)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create content dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+slug+"-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, slug+".yaml")); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", tmp.Name(), err)
	}
	for _, ext := range []string{".yml", ".json"} {
		if err := os.Remove(filepath.Join(s.dir, slug+ext)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale %s: %w", slug+ext, err)
		}
	}
	return nil
}
