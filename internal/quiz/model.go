package quiz

// Choice is one answer option. IsCorrect never leaves the engine before grading.
type Choice struct {
	ID        string
	Text      string
	IsCorrect bool
}

type Question struct {
	ID           string
	Prompt       string
	Choices      []Choice
	ReferenceURL string
	Explanation  string
	Points       int
}

func (q Question) choice(id string) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// CorrectChoiceIDs lists the ids of every choice flagged correct, in display order.
func (q Question) CorrectChoiceIDs() []string {
	out := make([]string, 0, 1)
	for _, c := range q.Choices {
		if c.IsCorrect {
			out = append(out, c.ID)
		}
	}
	return out
}

type ChoiceView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is the presentation-safe shape of a question. Explanation and the
// correct choice ids are filled only once the explanation gate opens.
type QuestionView struct {
	ID           string       `json:"id"`
	Prompt       string       `json:"prompt"`
	Choices      []ChoiceView `json:"choices"`
	ReferenceURL string       `json:"reference_url,omitempty"`
	Points       int          `json:"points"`
	Explanation  string       `json:"explanation,omitempty"`
	Correct      []string     `json:"correct,omitempty"`
}

func viewQuestion(q Question, revealed bool) QuestionView {
	choices := make([]ChoiceView, 0, len(q.Choices))
	for _, c := range q.Choices {
		choices = append(choices, ChoiceView{ID: c.ID, Text: c.Text})
	}
	v := QuestionView{
		ID:           q.ID,
		Prompt:       q.Prompt,
		Choices:      choices,
		ReferenceURL: q.ReferenceURL,
		Points:       q.Points,
	}
	if revealed {
		v.Explanation = q.Explanation
		v.Correct = q.CorrectChoiceIDs()
	}
	return v
}

func cloneQuestion(q Question) Question {
	out := q
	out.Choices = append([]Choice(nil), q.Choices...)
	return out
}
