package exam

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"certprep/internal/content"
	"certprep/internal/identity"
	"certprep/internal/quiz"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionForbidden = errors.New("session forbidden")
	ErrInvalidInput     = errors.New("invalid input")
)

// ResultSink receives the transcript of a finished session.
type ResultSink interface {
	SaveResult(ctx context.Context, t quiz.Transcript) error
}

type eventCounter interface {
	CountEvent(name string)
}

type ServiceConfig struct {
	Source    content.Source
	Explainer quiz.Explainer
	Sink      ResultSink
	Policy    quiz.Policy
	AITimeout time.Duration
	// IdleTTL evicts sessions nobody touched for this long. Zero keeps them.
	IdleTTL time.Duration
	Events  eventCounter
}

// Service is the in-memory registry of live sessions. Each session has its
// own controller; the registry lock only guards the map.
type Service struct {
	source    content.Source
	explainer quiz.Explainer
	sink      ResultSink
	policy    quiz.Policy
	aiTimeout time.Duration
	idleTTL   time.Duration
	events    eventCounter

	mu       sync.RWMutex
	sessions map[string]*entry

	newID func() string
	now   func() time.Time
}

type entry struct {
	ctrl     *quiz.Controller
	ownerID  string
	certSlug string
	lastSeen atomic.Int64
}

func NewService(cfg ServiceConfig) *Service {
	return &Service{
		source:    cfg.Source,
		explainer: cfg.Explainer,
		sink:      cfg.Sink,
		policy:    cfg.Policy,
		aiTimeout: cfg.AITimeout,
		idleTTL:   cfg.IdleTTL,
		events:    cfg.Events,
		sessions:  make(map[string]*entry),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

type StartInput struct {
	Certification string
	Seed          string
}

func (s *Service) Start(ctx context.Context, user identity.User, in StartInput) (quiz.SessionView, error) {
	slug := strings.TrimSpace(in.Certification)
	if slug == "" {
		return quiz.SessionView{}, fmt.Errorf("%w: certification is required", ErrInvalidInput)
	}
	if user.ID == "" {
		return quiz.SessionView{}, ErrSessionForbidden
	}

	cert, err := s.source.FetchCertification(ctx, slug)
	if err != nil {
		s.count("content_load_failed")
		return quiz.SessionView{}, err
	}

	policy := s.policy
	if cert.PassThreshold != nil {
		policy.PassThreshold = *cert.PassThreshold
	}
	seed := strings.TrimSpace(in.Seed)
	if seed == "" {
		seed = quiz.SessionSeed(cert.Slug, user.ID)
	}

	ctrl, err := quiz.NewController(quiz.ControllerConfig{
		SessionID:         s.newID(),
		CertificationID:   cert.Slug,
		CertificationName: cert.Name,
		UserID:            user.ID,
		Seed:              seed,
		Questions:         cert.Questions,
		Policy:            policy,
		Explainer:         s.explainer,
		AITimeout:         s.aiTimeout,
	})
	if err != nil {
		return quiz.SessionView{}, err
	}

	view := ctrl.Snapshot()
	e := &entry{ctrl: ctrl, ownerID: user.ID, certSlug: cert.Slug}
	e.lastSeen.Store(s.now().UnixNano())

	s.mu.Lock()
	s.sessions[view.ID] = e
	s.mu.Unlock()

	s.count("session_started")
	log.Printf("session started id=%s cert=%s user=%s questions=%d", view.ID, cert.Slug, user.ID, view.Total)
	return view, nil
}

func (s *Service) controller(sessionID string, user identity.User) (*quiz.Controller, error) {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if e.ownerID != user.ID && user.Role != identity.RoleAdmin {
		return nil, ErrSessionForbidden
	}
	e.lastSeen.Store(s.now().UnixNano())
	return e.ctrl, nil
}

func (s *Service) Snapshot(sessionID string, user identity.User) (quiz.SessionView, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.SessionView{}, err
	}
	return ctrl.Snapshot(), nil
}

func (s *Service) Answer(sessionID string, user identity.User, choiceID string) (quiz.AnswerOutcome, error) {
	if strings.TrimSpace(choiceID) == "" {
		return quiz.AnswerOutcome{}, fmt.Errorf("%w: choice_id is required", ErrInvalidInput)
	}
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.AnswerOutcome{}, err
	}
	out, err := ctrl.Answer(choiceID)
	if err != nil {
		return quiz.AnswerOutcome{}, err
	}
	if out.Correct {
		s.count("answer_correct")
	} else {
		s.count("answer_incorrect")
	}
	return out, nil
}

type ReviewOutcome struct {
	ChoiceID string `json:"choice_id"`
	Correct  bool   `json:"correct"`
}

func (s *Service) Review(sessionID string, user identity.User, choiceID string) (ReviewOutcome, error) {
	if strings.TrimSpace(choiceID) == "" {
		return ReviewOutcome{}, fmt.Errorf("%w: choice_id is required", ErrInvalidInput)
	}
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return ReviewOutcome{}, err
	}
	ok, err := ctrl.Review(choiceID)
	if err != nil {
		return ReviewOutcome{}, err
	}
	return ReviewOutcome{ChoiceID: choiceID, Correct: ok}, nil
}

func (s *Service) Next(sessionID string, user identity.User) (quiz.SessionView, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.SessionView{}, err
	}
	if err := ctrl.Next(); err != nil {
		return quiz.SessionView{}, err
	}
	view := ctrl.Snapshot()
	if view.Status == quiz.StatusCompleted {
		s.count("session_completed")
	}
	return view, nil
}

func (s *Service) Goto(sessionID string, user identity.User, index int) (quiz.SessionView, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.SessionView{}, err
	}
	if err := ctrl.Goto(index); err != nil {
		return quiz.SessionView{}, err
	}
	return ctrl.Snapshot(), nil
}

func (s *Service) Restart(sessionID string, user identity.User, seed string) (quiz.SessionView, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.SessionView{}, err
	}
	ctrl.Restart(strings.TrimSpace(seed))
	s.count("session_restarted")
	return ctrl.Snapshot(), nil
}

func (s *Service) Explanation(sessionID string, user identity.User, questionID string) (string, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return "", err
	}
	return ctrl.Explanation(questionID)
}

func (s *Service) AskAI(ctx context.Context, sessionID string, user identity.User, questionID string) (quiz.AIRequest, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.AIRequest{}, err
	}
	req, err := ctrl.AskAI(ctx, questionID)
	if err != nil {
		return quiz.AIRequest{}, err
	}
	s.count("ai_requested")
	return req, nil
}

// AIState reports assistance state as seen from questionID, or the raw state
// when questionID is empty.
func (s *Service) AIState(sessionID string, user identity.User, questionID string) (quiz.AIRequest, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.AIRequest{}, err
	}
	if questionID == "" {
		return ctrl.AIState(), nil
	}
	return ctrl.AIStateFor(questionID), nil
}

func (s *Service) CancelAI(sessionID string, user identity.User) (quiz.AIRequest, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.AIRequest{}, err
	}
	return ctrl.CancelAI(), nil
}

func (s *Service) Result(sessionID string, user identity.User) (quiz.Classification, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.Classification{}, err
	}
	return ctrl.Score(), nil
}

func (s *Service) Transcript(sessionID string, user identity.User) (quiz.Transcript, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.Transcript{}, err
	}
	return ctrl.Transcript(), nil
}

// Finish hands a completed session's transcript to the result sink.
func (s *Service) Finish(ctx context.Context, sessionID string, user identity.User) (quiz.Transcript, error) {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return quiz.Transcript{}, err
	}
	t, err := ctrl.Finished()
	if err != nil {
		return quiz.Transcript{}, err
	}
	if s.sink != nil {
		if err := s.sink.SaveResult(ctx, t); err != nil {
			s.count("result_save_failed")
			return quiz.Transcript{}, fmt.Errorf("save result: %w", err)
		}
	}
	s.count("result_saved")
	return t, nil
}

// Close discards a session and waits for its AI work to settle.
func (s *Service) Close(sessionID string, user identity.User) error {
	ctrl, err := s.controller(sessionID, user)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	ctrl.Close()
	return nil
}

// Sweep evicts sessions idle for longer than IdleTTL and returns how many went.
func (s *Service) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL).UnixNano()

	var stale []*quiz.Controller
	s.mu.Lock()
	for id, e := range s.sessions {
		if e.lastSeen.Load() < cutoff {
			stale = append(stale, e.ctrl)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	if len(stale) > 0 {
		log.Printf("session sweep evicted=%d", len(stale))
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Service) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown closes every live session.
func (s *Service) Shutdown() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()
	for _, e := range all {
		e.ctrl.Close()
	}
}

func (s *Service) count(name string) {
	if s.events != nil {
		s.events.CountEvent(name)
	}
}
