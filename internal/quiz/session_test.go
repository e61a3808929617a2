package quiz

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func newTestController(t *testing.T, questions []Question, policy Policy, explainer Explainer) *Controller {
	t.Helper()
	c, err := NewController(ControllerConfig{
		SessionID:         "s-1",
		CertificationID:   "cert",
		CertificationName: "Cloud Practitioner",
		UserID:            "u-1",
		Seed:              "cert-1",
		Questions:         questions,
		Policy:            policy,
		Explainer:         explainer,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func currentQuestion(t *testing.T, c *Controller) Question {
	t.Helper()
	v := c.Snapshot()
	if v.Current == nil {
		t.Fatalf("no current question")
	}
	q, ok := c.findQuestion(v.Current.ID)
	if !ok {
		t.Fatalf("current question %s not found", v.Current.ID)
	}
	return q
}

func TestNewControllerRejectsEmptyContent(t *testing.T) {
	_, err := NewController(ControllerConfig{SessionID: "s", CertificationID: "c", Seed: "x"})
	if !errors.Is(err, ErrContentLoadFailed) {
		t.Fatalf("expected ErrContentLoadFailed, got %v", err)
	}
	_, err = NewController(ControllerConfig{
		SessionID: "s", CertificationID: "c", Seed: "x",
		Questions: []Question{sampleQuestion("q1", 1), sampleQuestion("q1", 1)},
	})
	if !errors.Is(err, ErrContentLoadFailed) {
		t.Fatalf("expected ErrContentLoadFailed for duplicate ids, got %v", err)
	}
}

func TestControllerOrderIsReproducible(t *testing.T) {
	questions := []Question{sampleQuestion("q1", 1), sampleQuestion("q2", 1), sampleQuestion("q3", 1), sampleQuestion("q4", 1)}
	a := newTestController(t, questions, Policy{}, nil)
	b := newTestController(t, questions, Policy{}, nil)

	ta, tb := a.Transcript(), b.Transcript()
	for i := range ta.Items {
		if ta.Items[i].QuestionID != tb.Items[i].QuestionID {
			t.Fatalf("question order differs at %d", i)
		}
		qa, _ := a.QuestionAt(i)
		qb, _ := b.QuestionAt(i)
		if !reflect.DeepEqual(qa.Choices, qb.Choices) {
			t.Fatalf("choice order differs at %d", i)
		}
	}

	q := a.session.Questions[0]
	want := Order(questionByID(questions, q.ID).Choices, ChoiceSeed("cert-1", q.ID))
	if !reflect.DeepEqual(q.Choices, want) {
		t.Fatalf("choice order not derived from session seed and question id")
	}
	if !reflect.DeepEqual(questions[0].Choices, sampleQuestion("q1", 1).Choices) {
		t.Fatalf("source questions were mutated")
	}
}

func questionByID(qs []Question, id string) Question {
	for _, q := range qs {
		if q.ID == id {
			return q
		}
	}
	return Question{}
}

func TestSnapshotHidesCorrectness(t *testing.T) {
	c := newTestController(t, []Question{sampleQuestion("q1", 1)}, Policy{MaxAttempts: 2}, nil)
	v := c.Snapshot()
	if v.Current.Explanation != "" || len(v.Current.Correct) != 0 {
		t.Fatalf("fresh question leaked answer data: %+v", v.Current)
	}
	if v.Attempt.CanReveal {
		t.Fatalf("fresh question must not be revealable")
	}
	if _, err := c.Explanation("q1"); !errors.Is(err, ErrExplanationLocked) {
		t.Fatalf("expected ErrExplanationLocked, got %v", err)
	}

	if _, err := c.Answer(correctOf(sampleQuestion("q1", 1))); err != nil {
		t.Fatalf("answer: %v", err)
	}
	v = c.Snapshot()
	if v.Current.Explanation == "" || len(v.Current.Correct) != 1 {
		t.Fatalf("expected explanation after correct answer, got %+v", v.Current)
	}
	text, err := c.Explanation("q1")
	if err != nil || text != "Because q1" {
		t.Fatalf("expected explanation, got %q err=%v", text, err)
	}
}

func TestAllCorrectFirstTryScoresHundred(t *testing.T) {
	questions := []Question{sampleQuestion("q1", 1), sampleQuestion("q2", 2), sampleQuestion("q3", 3)}
	c := newTestController(t, questions, Policy{MaxAttempts: 3, PassThreshold: 80}, nil)
	for i := 0; i < len(questions); i++ {
		q := currentQuestion(t, c)
		if _, err := c.Answer(correctOf(q)); err != nil {
			t.Fatalf("answer %s: %v", q.ID, err)
		}
		if err := c.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	s := c.Score()
	if s.Percentage != 100 || s.TotalPoints != 6 || !s.Passed {
		t.Fatalf("expected 100%% pass, got %+v", s)
	}
}

func TestNoneCorrectScoresZero(t *testing.T) {
	questions := []Question{sampleQuestion("q1", 1), sampleQuestion("q2", 2)}
	c := newTestController(t, questions, Policy{MaxAttempts: 1}, nil)
	for i := 0; i < len(questions); i++ {
		q := currentQuestion(t, c)
		if _, err := c.Answer(wrongOf(q)); err != nil {
			t.Fatalf("answer: %v", err)
		}
		if err := c.Next(); err != nil {
			t.Fatalf("next: %v", err)
		}
	}
	if s := c.Score(); s.Percentage != 0 || s.Passed {
		t.Fatalf("expected 0%% fail, got %+v", s)
	}
}

func TestNextCompletesAndFreezes(t *testing.T) {
	questions := []Question{sampleQuestion("q1", 1), sampleQuestion("q2", 1)}
	c := newTestController(t, questions, Policy{}, nil)

	if err := c.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if v := c.Snapshot(); v.Status != StatusActive || v.Index != 1 {
		t.Fatalf("expected active at index 1, got %+v", v)
	}
	if _, err := c.Finished(); !errors.Is(err, ErrSessionNotCompleted) {
		t.Fatalf("expected ErrSessionNotCompleted, got %v", err)
	}
	if err := c.Next(); err != nil {
		t.Fatalf("next on last: %v", err)
	}
	v := c.Snapshot()
	if v.Status != StatusCompleted || v.Index != 2 || v.Current != nil {
		t.Fatalf("expected completed at index 2, got %+v", v)
	}
	if _, err := c.Answer("anything"); !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("expected ErrSessionCompleted on answer, got %v", err)
	}
	if err := c.Next(); !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("expected ErrSessionCompleted on next, got %v", err)
	}
	if err := c.Goto(0); !errors.Is(err, ErrSessionCompleted) {
		t.Fatalf("expected ErrSessionCompleted on goto, got %v", err)
	}
	if _, err := c.Finished(); err != nil {
		t.Fatalf("finished: %v", err)
	}
	_ = c.Score()
}

func TestGotoBounds(t *testing.T) {
	c := newTestController(t, []Question{sampleQuestion("q1", 1), sampleQuestion("q2", 1)}, Policy{}, nil)
	if err := c.Goto(2); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := c.Goto(-1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if err := c.Goto(1); err != nil {
		t.Fatalf("goto 1: %v", err)
	}
	if _, err := c.QuestionAt(5); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange from QuestionAt, got %v", err)
	}
}

func TestRestartBuildsFreshSession(t *testing.T) {
	questions := []Question{sampleQuestion("q1", 1), sampleQuestion("q2", 1), sampleQuestion("q3", 1)}
	c := newTestController(t, questions, Policy{}, nil)

	q := currentQuestion(t, c)
	if _, err := c.Answer(correctOf(q)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	before := c.Transcript()
	old := c.session

	c.Restart("")
	after := c.Transcript()
	if c.session == old {
		t.Fatalf("restart must replace the session value")
	}
	if old.Attempts[q.ID].Count != 1 {
		t.Fatalf("old session was mutated by restart")
	}
	for i := range before.Items {
		if before.Items[i].QuestionID != after.Items[i].QuestionID {
			t.Fatalf("same seed should reproduce the order")
		}
		if after.Items[i].Count != 0 {
			t.Fatalf("attempts not reset: %+v", after.Items[i])
		}
	}
	if v := c.Snapshot(); v.Index != 0 || v.Status != StatusActive || v.Score.CorrectCount != 0 {
		t.Fatalf("expected fresh active session, got %+v", v)
	}

	c.Restart("another-seed")
	if got := c.Snapshot().Seed; got != "another-seed" {
		t.Fatalf("expected new seed, got %q", got)
	}
}

func TestReviewAfterGrading(t *testing.T) {
	c := newTestController(t, []Question{sampleQuestion("q1", 2)}, Policy{}, nil)
	q := currentQuestion(t, c)
	if _, err := c.Answer(correctOf(q)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	out, err := c.Answer(wrongOf(q))
	if !errors.Is(err, ErrAlreadyGraded) {
		t.Fatalf("expected ErrAlreadyGraded, got %v", err)
	}
	if out.Score.TotalPoints != 2 {
		t.Fatalf("score changed after graded resubmission: %+v", out.Score)
	}
	ok, err := c.Review(wrongOf(q))
	if err != nil || ok {
		t.Fatalf("expected wrong review, got ok=%v err=%v", ok, err)
	}
	if s := c.Score(); s.TotalPoints != 2 {
		t.Fatalf("review changed score: %+v", s)
	}
}

func TestWorkedScenario(t *testing.T) {
	q1 := sampleQuestion("Q1", 1)
	q2 := sampleQuestion("Q2", 2)
	c := newTestController(t, []Question{q1, q2}, Policy{MaxAttempts: 2}, nil)

	if v := c.Snapshot(); v.Current.ID != "Q1" {
		t.Fatalf("seed cert-1 should put Q1 first, got %s", v.Current.ID)
	}
	if _, err := c.Answer(wrongOf(q1)); err != nil {
		t.Fatalf("q1 wrong: %v", err)
	}
	out, err := c.Answer(correctOf(q1))
	if err != nil || out.PointsAwarded != 1 {
		t.Fatalf("q1 correct: out=%+v err=%v", out, err)
	}
	if err := c.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := c.Answer(wrongOf(q2)); err != nil {
		t.Fatalf("q2 wrong 1: %v", err)
	}
	out, err = c.Answer(wrongOf(q2))
	if err != nil || !out.Exhausted || out.PointsAwarded != 0 || !out.CanReveal {
		t.Fatalf("q2 wrong 2: out=%+v err=%v", out, err)
	}
	if _, err := c.Answer(correctOf(q2)); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected ErrAttemptsExhausted, got %v", err)
	}

	want := Result{CorrectCount: 1, TotalQuestions: 2, TotalPoints: 1, MaxPoints: 3, Percentage: 50}
	if got := c.Score().Result; got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestNextSupersedesLoadingAIRequest(t *testing.T) {
	g := newGatedExplainer()
	g.replies["Q1"] = "late answer"
	c := newTestController(t, []Question{sampleQuestion("Q1", 1), sampleQuestion("Q2", 1)}, Policy{}, g)

	st, err := c.AskAI(context.Background(), "")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if st.Status != AILoading || st.QuestionID != "Q1" {
		t.Fatalf("expected Q1 loading, got %+v", st)
	}
	waitStarted(t, g, "Q1")
	if err := c.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	g.finish("Q1")
	c.assistant.Wait()

	if got := c.Snapshot().AI; got.Status != AIIdle || got.QuestionID != "Q2" {
		t.Fatalf("expected Q2 idle after stale completion, got %+v", got)
	}
	if got := c.AIState(); got.Text != "" || got.Status != AICancelled {
		t.Fatalf("stale response applied: %+v", got)
	}
}

type instantExplainer struct{}

func (instantExplainer) Explain(ctx context.Context, questionText string, ec ExplainContext) (string, error) {
	return "hint for " + ec.QuestionID, nil
}

func TestAskAIRacingNextNeverLeavesOldQuestionLive(t *testing.T) {
	for i := 0; i < 200; i++ {
		c := newTestController(t, []Question{sampleQuestion("Q1", 1), sampleQuestion("Q2", 1)}, Policy{}, instantExplainer{})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = c.AskAI(context.Background(), "")
		}()
		go func() {
			defer wg.Done()
			_ = c.Next()
		}()
		wg.Wait()
		c.assistant.Wait()

		current := c.Snapshot().Current.ID
		st := c.AIState()
		if (st.Status == AILoading || st.Status == AIResolved) && st.QuestionID != current {
			t.Fatalf("iteration %d: request for %s live while on %s: %+v", i, st.QuestionID, current, st)
		}
	}
}

func TestCancelAIDiscardsLateReply(t *testing.T) {
	g := newGatedExplainer()
	g.replies["Q1"] = "too late"
	c := newTestController(t, []Question{sampleQuestion("Q1", 1)}, Policy{}, g)

	if _, err := c.AskAI(context.Background(), "Q1"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	waitStarted(t, g, "Q1")
	if st := c.CancelAI(); st.Status != AICancelled || st.QuestionID != "Q1" {
		t.Fatalf("expected cancelled Q1, got %+v", st)
	}
	g.finish("Q1")
	c.assistant.Wait()
	if st := c.AIStateFor("Q1"); st.Status != AICancelled || st.Text != "" {
		t.Fatalf("late reply applied after cancel: %+v", st)
	}
}

func TestAskAIAfterCompletion(t *testing.T) {
	g := newGatedExplainer()
	g.replies["Q1"] = "review help"
	c := newTestController(t, []Question{sampleQuestion("Q1", 1)}, Policy{MaxAttempts: 1}, g)

	if _, err := c.Answer(wrongOf(sampleQuestion("Q1", 1))); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := c.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := c.AskAI(context.Background(), ""); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange without explicit question, got %v", err)
	}
	if _, err := c.AskAI(context.Background(), "missing"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	if _, err := c.AskAI(context.Background(), "Q1"); err != nil {
		t.Fatalf("ask after completion: %v", err)
	}
	waitStarted(t, g, "Q1")
	g.finish("Q1")
	c.assistant.Wait()
	if st := c.AIStateFor("Q1"); st.Status != AIResolved || st.Text != "review help" {
		t.Fatalf("expected resolved help, got %+v", st)
	}
}

type recordingExplainer struct {
	got ExplainContext
}

func (r *recordingExplainer) Explain(ctx context.Context, questionText string, ec ExplainContext) (string, error) {
	r.got = ec
	return "ok", nil
}

func TestAskAIContextRespectsGate(t *testing.T) {
	rec := &recordingExplainer{}
	q := sampleQuestion("Q1", 1)
	c := newTestController(t, []Question{q}, Policy{MaxAttempts: 2}, rec)

	if _, err := c.AskAI(context.Background(), "Q1"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	c.assistant.Wait()
	if rec.got.Explanation != "" || rec.got.CertificationName != "Cloud Practitioner" || len(rec.got.Choices) != 4 {
		t.Fatalf("unexpected context before reveal: %+v", rec.got)
	}

	if _, err := c.Answer(correctOf(q)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := c.AskAI(context.Background(), "Q1"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	c.assistant.Wait()
	if rec.got.Explanation != "Because Q1" {
		t.Fatalf("expected explanation in context after reveal, got %+v", rec.got)
	}
}
