package content

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"certprep/internal/quiz"
)

const yamlCertification = `slug: k8s-cka
name: Certified Kubernetes Administrator
passThreshold: 66
questions:
  - id: pods
    prompt: Which object runs containers?
    points: 2
    choices:
      - id: a
        text: Pod
        correct: true
      - id: b
        text: ConfigMap
  - id: svc
    prompt: Which object exposes pods?
    choices:
      - id: a
        text: Service
        correct: true
      - id: b
        text: Secret
`

func TestDirSourceReadsYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "k8s-cka.yaml"), []byte(yamlCertification), 0o600); err != nil {
		t.Fatal(err)
	}
	jsonBody := `{"name": "Terraform Associate", "questions": [{"id": 1, "prompt": "State file?", "choices": ["terraform.tfstate", "main.tf"], "answer": "A"}]}`
	if err := os.WriteFile(filepath.Join(dir, "tf.json"), []byte(jsonBody), 0o600); err != nil {
		t.Fatal(err)
	}

	src := NewDirSource(dir)

	cert, err := src.FetchCertification(context.Background(), "k8s-cka")
	if err != nil {
		t.Fatalf("yaml fetch: %v", err)
	}
	if cert.Name != "Certified Kubernetes Administrator" || len(cert.Questions) != 2 {
		t.Fatalf("unexpected yaml certification: %+v", cert)
	}
	if cert.PassThreshold == nil || *cert.PassThreshold != 66 {
		t.Fatalf("expected threshold 66")
	}
	if cert.Questions[0].Points != 2 || !cert.Questions[0].Choices[0].IsCorrect {
		t.Fatalf("unexpected first question: %+v", cert.Questions[0])
	}

	cert, err = src.FetchCertification(context.Background(), "tf")
	if err != nil {
		t.Fatalf("json fetch: %v", err)
	}
	if cert.Slug != "tf" || cert.Questions[0].ID != "1" {
		t.Fatalf("unexpected json certification: %+v", cert)
	}
}

func TestDirSourceErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("questions: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	src := NewDirSource(dir)

	_, err := src.FetchCertification(context.Background(), "missing")
	if !errors.Is(err, ErrCertificationNotFound) || !errors.Is(err, quiz.ErrContentLoadFailed) {
		t.Fatalf("expected not found load error, got %v", err)
	}

	_, err = src.FetchCertification(context.Background(), "broken")
	if !errors.Is(err, quiz.ErrContentLoadFailed) {
		t.Fatalf("expected load error for malformed yaml, got %v", err)
	}

	_, err = src.FetchCertification(context.Background(), "../etc/passwd")
	if !errors.Is(err, quiz.ErrContentLoadFailed) {
		t.Fatalf("expected slug rejection, got %v", err)
	}
}
