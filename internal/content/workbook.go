package content

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrInvalidWorkbook = errors.New("invalid question workbook")

type ImportRowError struct {
	Row        int    `json:"row"`
	QuestionID string `json:"question_id,omitempty"`
	Error      string `json:"error"`
}

type ImportReport struct {
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Errors      []ImportRowError `json:"errors"`
}

var workbookChoiceColumns = []string{"choice_a", "choice_b", "choice_c", "choice_d", "choice_e", "choice_f", "choice_g", "choice_h"}

// ParseWorkbook reads a question bank from the first sheet of an xlsx file.
// Columns: id, question, choice_a..choice_h, correct ("A" or "A,C"),
// explanation, reference_url, points. Rows that fail validation are reported
// and skipped; the certification is built from the rows that pass.
func ParseWorkbook(slug, name string, passThreshold *int, r io.Reader) (Certification, *ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Certification{}, nil, fmt.Errorf("%w: open excel: %v", ErrInvalidWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Certification{}, nil, fmt.Errorf("%w: excel sheet is empty", ErrInvalidWorkbook)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Certification{}, nil, fmt.Errorf("%w: read rows: %v", ErrInvalidWorkbook, err)
	}
	if len(rows) < 2 {
		return Certification{}, nil, fmt.Errorf("%w: no data rows found", ErrInvalidWorkbook)
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"question", "choice_a", "choice_b", "correct"} {
		if _, ok := header[col]; !ok {
			return Certification{}, nil, fmt.Errorf("%w: missing required column: %s", ErrInvalidWorkbook, col)
		}
	}

	report := &ImportReport{Errors: make([]ImportRowError, 0)}
	accepted := make([]interface{}, 0, len(rows)-1)
	seen := map[string]int{}
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		report.TotalRows++

		id := get("id")
		if id == "" {
			id = fmt.Sprintf("q%d", len(accepted)+1)
		}
		if prev, dup := seen[id]; dup {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, QuestionID: id, Error: fmt.Sprintf("duplicate question id, first seen on row %d", prev)})
			continue
		}

		choices := make([]interface{}, 0, len(workbookChoiceColumns))
		for pos, col := range workbookChoiceColumns {
			if text := get(col); text != "" {
				choices = append(choices, map[string]interface{}{"id": choiceKey(pos), "text": text})
			}
		}
		correct := make([]interface{}, 0, 2)
		for _, ref := range strings.Split(get("correct"), ",") {
			if ref = strings.ToUpper(strings.TrimSpace(ref)); ref != "" {
				correct = append(correct, ref)
			}
		}

		q := map[string]interface{}{
			"id":              id,
			"question":        get("question"),
			"choices":         choices,
			"correct_answers": correct,
			"explanation":     get("explanation"),
			"reference_url":   get("reference_url"),
		}
		if points := get("points"); points != "" {
			q["points"] = points
		}
		if _, err := parseQuestion(len(accepted), q); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, QuestionID: id, Error: err.Error()})
			continue
		}
		seen[id] = rowNo
		accepted = append(accepted, q)
		report.SuccessRows++
	}

	doc := map[string]interface{}{
		"slug":      slug,
		"name":      name,
		"questions": accepted,
	}
	if passThreshold != nil {
		doc["pass_threshold"] = *passThreshold
	}
	cert, err := ParseCertification(slug, doc)
	if err != nil {
		return Certification{}, report, err
	}
	return cert, report, nil
}
