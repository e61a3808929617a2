package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"certprep/internal/quiz"
)

var ErrInvalidContent = errors.New("invalid certification content")

// ParseCertification turns a loosely typed upstream document into a
// Certification. Upstream field names drift, so several spellings are accepted
// for each field; anything that cannot be made into a gradable question is a
// load error rather than a silently smaller exam.
func ParseCertification(slug string, doc map[string]interface{}) (Certification, error) {
	if inner, ok := doc["certification"].(map[string]interface{}); ok {
		merged := make(map[string]interface{}, len(doc)+len(inner))
		for k, v := range inner {
			merged[k] = v
		}
		for k, v := range doc {
			if k != "certification" {
				merged[k] = v
			}
		}
		doc = merged
	}

	cert := Certification{
		Slug: firstString(doc, "slug"),
		Name: firstString(doc, "name", "title"),
	}
	if cert.Slug == "" {
		cert.Slug = slug
	}
	if cert.Name == "" {
		cert.Name = cert.Slug
	}

	if raw, ok := firstValue(doc, "passThreshold", "pass_threshold", "passingScore", "passing_score"); ok {
		n, ok := anyToInt(raw)
		if !ok || n <= 0 || n > 100 {
			return Certification{}, invalid("pass threshold %v out of range", raw)
		}
		cert.PassThreshold = &n
	}

	rawQuestions, ok := firstValue(doc, "questions")
	if !ok {
		return Certification{}, invalid("questions missing")
	}
	list, ok := rawQuestions.([]interface{})
	if !ok || len(list) == 0 {
		return Certification{}, invalid("certification %q has no questions", cert.Slug)
	}

	seen := make(map[string]struct{}, len(list))
	cert.Questions = make([]quiz.Question, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return Certification{}, invalid("question %d is not an object", i+1)
		}
		q, err := parseQuestion(i, obj)
		if err != nil {
			return Certification{}, err
		}
		if _, dup := seen[q.ID]; dup {
			return Certification{}, invalid("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
		cert.Questions = append(cert.Questions, q)
	}
	return cert, nil
}

func parseQuestion(pos int, obj map[string]interface{}) (quiz.Question, error) {
	q := quiz.Question{
		ID:           anyToString(mustValue(obj, "id", "_id", "questionId", "question_id")),
		Prompt:       firstString(obj, "question", "prompt", "text", "content"),
		ReferenceURL: firstString(obj, "referenceUrl", "reference_url", "reference", "url"),
		Explanation:  firstString(obj, "explanation"),
		Points:       1,
	}
	if q.ID == "" {
		q.ID = "q" + strconv.Itoa(pos+1)
	}
	if q.Prompt == "" {
		return quiz.Question{}, invalid("question %q has no prompt", q.ID)
	}
	if raw, ok := firstValue(obj, "points", "point_value", "pointValue", "weight"); ok {
		n, ok := anyToInt(raw)
		if !ok || n <= 0 {
			return quiz.Question{}, invalid("question %q has invalid points %v", q.ID, raw)
		}
		q.Points = n
	}

	rawChoices, _ := firstValue(obj, "answers", "choices", "options")
	list, ok := rawChoices.([]interface{})
	if !ok || len(list) < 2 {
		return quiz.Question{}, invalid("question %q needs at least two choices", q.ID)
	}
	correctRefs := toStringSet(mustValue(obj, "correct_answers", "correctAnswers", "correct_answer", "correctAnswer", "answer"))

	seen := make(map[string]struct{}, len(list))
	for i, item := range list {
		c, err := parseChoice(q.ID, i, item, correctRefs)
		if err != nil {
			return quiz.Question{}, err
		}
		if _, dup := seen[c.ID]; dup {
			return quiz.Question{}, invalid("question %q has duplicate choice id %q", q.ID, c.ID)
		}
		seen[c.ID] = struct{}{}
		q.Choices = append(q.Choices, c)
	}
	if len(q.CorrectChoiceIDs()) == 0 {
		return quiz.Question{}, invalid("question %q has no correct choice", q.ID)
	}
	return q, nil
}

func parseChoice(questionID string, pos int, item interface{}, correctRefs map[string]struct{}) (quiz.Choice, error) {
	var c quiz.Choice
	switch t := item.(type) {
	case string:
		c = quiz.Choice{ID: choiceKey(pos), Text: strings.TrimSpace(t)}
	case map[string]interface{}:
		c = quiz.Choice{
			ID:   anyToString(mustValue(t, "id", "key", "option_key")),
			Text: firstString(t, "text", "answer", "label", "value"),
		}
		if c.ID == "" {
			c.ID = choiceKey(pos)
		}
		if v, ok := firstValue(t, "isCorrect", "is_correct", "correct"); ok {
			b, ok := anyToBool(v)
			if !ok {
				return quiz.Choice{}, invalid("question %q choice %q has invalid correctness flag", questionID, c.ID)
			}
			c.IsCorrect = b
		}
	default:
		return quiz.Choice{}, invalid("question %q choice %d has unsupported shape", questionID, pos+1)
	}
	if c.Text == "" {
		return quiz.Choice{}, invalid("question %q choice %q has no text", questionID, c.ID)
	}
	if _, ok := correctRefs[c.ID]; ok {
		c.IsCorrect = true
	}
	if _, ok := correctRefs[c.Text]; ok {
		c.IsCorrect = true
	}
	return c, nil
}

func decodeJSONDocument(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if doc == nil {
		return nil, errors.New("decode json: empty document")
	}
	return doc, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %w: %s", quiz.ErrContentLoadFailed, ErrInvalidContent, fmt.Sprintf(format, args...))
}

func choiceKey(pos int) string {
	if pos < 26 {
		return string(rune('A' + pos))
	}
	return "C" + strconv.Itoa(pos+1)
}

func firstValue(obj map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func mustValue(obj map[string]interface{}, keys ...string) interface{} {
	v, _ := firstValue(obj, keys...)
	return v
}

func firstString(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s := anyToString(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func anyToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func anyToInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}

func anyToBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "y":
			return true, true
		case "0", "false", "no", "n", "":
			return false, true
		}
	case json.Number, int, int64, float64:
		n, ok := anyToInt(t)
		return n != 0, ok
	}
	return false, false
}

func toStringSet(v interface{}) map[string]struct{} {
	set := map[string]struct{}{}
	switch t := v.(type) {
	case []interface{}:
		for _, it := range t {
			if s := anyToString(it); s != "" {
				set[s] = struct{}{}
			}
		}
	default:
		if s := anyToString(t); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
