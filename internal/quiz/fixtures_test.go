package quiz

func sampleQuestion(id string, points int) Question {
	return Question{
		ID:          id,
		Prompt:      "Prompt for " + id,
		Explanation: "Because " + id,
		Points:      points,
		Choices: []Choice{
			{ID: id + "-a", Text: "A"},
			{ID: id + "-b", Text: "B", IsCorrect: true},
			{ID: id + "-c", Text: "C"},
			{ID: id + "-d", Text: "D"},
		},
	}
}

func correctOf(q Question) string {
	return q.CorrectChoiceIDs()[0]
}

func wrongOf(q Question) string {
	for _, c := range q.Choices {
		if !c.IsCorrect {
			return c.ID
		}
	}
	return ""
}
