package quiz

import "math"

const DefaultPassThreshold = 70

type Result struct {
	CorrectCount   int `json:"correct_count"`
	TotalQuestions int `json:"total_questions"`
	TotalPoints    int `json:"total_points"`
	MaxPoints      int `json:"max_points"`
	Percentage     int `json:"percentage"`
}

// Score derives the running result from attempt state. It keeps no state of its
// own, so calling it after every submission is safe.
func Score(questions []Question, attempts map[string]*AttemptState) Result {
	res := Result{TotalQuestions: len(questions)}
	for _, q := range questions {
		res.MaxPoints += q.Points
		a, ok := attempts[q.ID]
		if !ok || !a.Correct {
			continue
		}
		res.CorrectCount++
		res.TotalPoints += a.PointsAwarded
	}
	if res.TotalQuestions > 0 {
		res.Percentage = int(math.Round(float64(res.CorrectCount) / float64(res.TotalQuestions) * 100))
	}
	return res
}

func (r Result) Passed(threshold int) bool {
	return r.Percentage >= threshold
}

// Classification pairs a result with the threshold it was judged against.
type Classification struct {
	Result
	Threshold int  `json:"pass_threshold"`
	Passed    bool `json:"passed"`
}

func Classify(r Result, threshold int) Classification {
	return Classification{Result: r, Threshold: threshold, Passed: r.Passed(threshold)}
}
