// Package session owns the single active quiz attempt and the history of
// finished attempts, mirroring both to a store.Backend.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/quizrunner/internal/model"
	"github.com/pavelanni/quizrunner/internal/scale"
	"github.com/pavelanni/quizrunner/internal/store"
)

var (
	// ErrSessionActive is returned by Start when an attempt is already running.
	ErrSessionActive = errors.New("session: a quiz is already in progress")
	// ErrNoActiveSession is returned by mutations when nothing is running.
	ErrNoActiveSession = errors.New("session: no quiz in progress")
)

// Store holds at most one active session plus the history list.
type Store struct {
	mu      sync.Mutex
	kv      store.Backend
	table   scale.Table
	now     func() time.Time
	newID   func() (string, error)
	active  *model.ActiveSession
	history []model.HistoryEntry
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the history id generator.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.newID = gen }
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// New loads persisted state from kv. Absent or malformed entries are
// treated as empty.
func New(ctx context.Context, kv store.Backend, table scale.Table, opts ...Option) (*Store, error) {
	s := &Store{
		kv:    kv,
		table: table,
		now:   time.Now,
		newID: newUUIDv7,
	}
	for _, o := range opts {
		o(s)
	}

	active, err := loadActive(ctx, kv)
	if err != nil {
		return nil, err
	}
	s.active = active

	history, err := LoadHistory(ctx, kv)
	if err != nil {
		return nil, err
	}
	s.history = history

	slog.Info("session store loaded", "active", s.active != nil, "history", len(s.history))
	return s, nil
}

func loadActive(ctx context.Context, kv store.Backend) (*model.ActiveSession, error) {
	data, err := kv.Get(ctx, store.KeyActiveSession)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read active session: %w", err)
	}
	var sess model.ActiveSession
	if err := json.Unmarshal(data, &sess); err != nil {
		slog.Warn("discarding malformed active session", "error", err)
		return nil, nil
	}
	if sess.Quiz.Slug == "" || sess.Start.IsZero() || sess.Expires.IsZero() {
		slog.Warn("discarding incomplete active session")
		return nil, nil
	}
	sess = sess.Clone()
	return &sess, nil
}

// LoadHistory reads the persisted history list. Malformed content yields an
// empty list.
func LoadHistory(ctx context.Context, kv store.Backend) ([]model.HistoryEntry, error) {
	data, err := kv.Get(ctx, store.KeyHistory)
	if errors.Is(err, store.ErrNotFound) {
		return []model.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var history []model.HistoryEntry
	if err := json.Unmarshal(data, &history); err != nil {
		slog.Warn("discarding malformed history", "error", err)
		return []model.HistoryEntry{}, nil
	}
	if history == nil {
		history = []model.HistoryEntry{}
	}
	return history, nil
}

// Active returns a copy of the active session.
func (s *Store) Active() (model.ActiveSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return model.ActiveSession{}, false
	}
	return s.active.Clone(), true
}

// History returns the finished attempts, newest first.
func (s *Store) History() []model.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Entry looks up a history entry by id.
func (s *Store) Entry(id string) (model.HistoryEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.history {
		if e.ID == id {
			return e, true
		}
	}
	return model.HistoryEntry{}, false
}

// ScaleTable returns the table used for scoring.
func (s *Store) ScaleTable() scale.Table {
	return s.table
}

// Start begins an attempt at quiz. An already running attempt is left as is.
func (s *Store) Start(ctx context.Context, quiz model.QuizDefinition) (model.ActiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return s.active.Clone(), ErrSessionActive
	}
	sess := model.NewActiveSession(quiz, s.now())
	if err := s.saveActive(ctx, &sess); err != nil {
		return model.ActiveSession{}, err
	}
	s.active = &sess
	slog.Info("quiz started", "quiz", quiz.Slug, "expires", sess.Expires)
	return sess.Clone(), nil
}

// Update merges patch into the active session.
func (s *Store) Update(ctx context.Context, patch model.SessionPatch) (model.ActiveSession, error) {
	return s.mutate(ctx, func(sess model.ActiveSession) model.ActiveSession {
		return sess.Apply(patch)
	})
}

// SelectAnswer records selected for the question at index. Correctness is
// decided here, once.
func (s *Store) SelectAnswer(ctx context.Context, index int, selected, correctOption string) (model.ActiveSession, error) {
	return s.mutate(ctx, func(sess model.ActiveSession) model.ActiveSession {
		return sess.WithAnswer(index, model.AnswerRecord{
			Selected: selected,
			Correct:  selected == correctOption,
		})
	})
}

// ToggleFlag inverts the review flag at index.
func (s *Store) ToggleFlag(ctx context.Context, index int) (model.ActiveSession, error) {
	return s.mutate(ctx, func(sess model.ActiveSession) model.ActiveSession {
		return sess.WithFlagToggled(index)
	})
}

// SetCurrent moves to index, clamped into [0, total-1].
func (s *Store) SetCurrent(ctx context.Context, index, total int) (model.ActiveSession, error) {
	return s.mutate(ctx, func(sess model.ActiveSession) model.ActiveSession {
		return sess.WithCurrent(index, total)
	})
}

func (s *Store) mutate(ctx context.Context, fn func(model.ActiveSession) model.ActiveSession) (model.ActiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return model.ActiveSession{}, ErrNoActiveSession
	}
	next := fn(*s.active)
	if err := s.saveActive(ctx, &next); err != nil {
		return s.active.Clone(), err
	}
	s.active = &next
	return next.Clone(), nil
}

// Finish scores the active session, prepends it to history and clears it.
// It returns nil when nothing is active.
func (s *Store) Finish(ctx context.Context) (*model.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishLocked(ctx)
}

// ExpireIfDue finishes the active session once no whole second of it is left.
func (s *Store) ExpireIfDue(ctx context.Context, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || !s.active.ExpiredAt(now) {
		return false, nil
	}
	entry, err := s.finishLocked(ctx)
	if err != nil {
		return false, err
	}
	slog.Info("quiz time expired", "quiz", entry.Quiz.Slug, "id", entry.ID)
	return true, nil
}

func (s *Store) finishLocked(ctx context.Context) (*model.HistoryEntry, error) {
	if s.active == nil {
		return nil, nil
	}
	end := s.now()
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate history id: %w", err)
	}
	duration := int64(end.Sub(s.active.Start) / time.Second)
	if duration < 0 {
		duration = 0
	}
	raw := s.active.RawScore()
	entry := model.HistoryEntry{
		ID:       id,
		Quiz:     s.active.Quiz,
		Raw:      raw,
		Scaled:   s.table.Lookup(raw),
		Answers:  s.active.Clone().Answers,
		Date:     end,
		Duration: duration,
	}

	history := append([]model.HistoryEntry{entry}, s.history...)
	if err := s.saveHistory(ctx, history); err != nil {
		return nil, err
	}
	s.history = history

	if err := s.saveActive(ctx, nil); err != nil {
		return &entry, err
	}
	s.active = nil
	slog.Info("quiz finished", "quiz", entry.Quiz.Slug, "id", entry.ID, "raw", entry.Raw, "scaled", entry.Scaled, "duration", entry.Duration)
	return &entry, nil
}

func (s *Store) saveActive(ctx context.Context, sess *model.ActiveSession) error {
	if sess == nil {
		if err := s.kv.Delete(ctx, store.KeyActiveSession); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyActiveSession, data); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) saveHistory(ctx context.Context, history []model.HistoryEntry) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.kv.Set(ctx, store.KeyHistory, data); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
