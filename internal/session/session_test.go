package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/pavelanni/quizrunner/internal/model"
	"github.com/pavelanni/quizrunner/internal/scale"
	"github.com/pavelanni/quizrunner/internal/store"
)

var testQuiz = model.QuizDefinition{
	Name:          "Test quiz",
	CSVPath:       "quizzes/test/test.csv",
	ImageBasePath: "/assets/quizzes/test/",
	Slug:          "test",
}

var testTable = scale.New(map[int]int{0: 0, 1: 110, 2: 150, 3: 200})

// fakeClock is a manually advanced clock.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// sequentialIDs returns ids "id-1", "id-2", ...
func sequentialIDs() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("id-%d", n), nil
	}
}

func newTestStore(t *testing.T, kv store.Backend) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)}
	s, err := New(context.Background(), kv, testTable, WithClock(clock.Now), WithIDGenerator(sequentialIDs()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, clock
}

func persistedSession(t *testing.T, kv store.Backend) (model.ActiveSession, bool) {
	t.Helper()
	data, err := kv.Get(context.Background(), store.KeyActiveSession)
	if errors.Is(err, store.ErrNotFound) {
		return model.ActiveSession{}, false
	}
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	var sess model.ActiveSession
	if err := json.Unmarshal(data, &sess); err != nil {
		t.Fatalf("decode persisted session: %v", err)
	}
	return sess, true
}

func persistedHistory(t *testing.T, kv store.Backend) []model.HistoryEntry {
	t.Helper()
	history, err := LoadHistory(context.Background(), kv)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	return history
}

func TestStartCreatesSession(t *testing.T) {
	kv := store.NewMemory()
	s, clock := newTestStore(t, kv)

	sess, err := s.Start(context.Background(), testQuiz)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sess.Start.Equal(clock.Now()) {
		t.Errorf("expected start %v, got %v", clock.Now(), sess.Start)
	}
	if !sess.Expires.Equal(clock.Now().Add(180 * time.Minute)) {
		t.Errorf("expected expiry start+180m, got %v", sess.Expires)
	}
	if sess.Current != 0 || len(sess.Answers) != 0 || len(sess.Flagged) != 0 {
		t.Errorf("expected empty session, got %+v", sess)
	}

	stored, ok := persistedSession(t, kv)
	if !ok {
		t.Fatal("expected session to be persisted")
	}
	if !reflect.DeepEqual(stored, sess) {
		t.Errorf("persisted session differs:\n got %+v\nwant %+v", stored, sess)
	}
}

func TestStartWhileActiveLeavesSessionUntouched(t *testing.T) {
	kv := store.NewMemory()
	s, clock := newTestStore(t, kv)
	ctx := context.Background()

	first, _ := s.Start(ctx, testQuiz)
	if _, err := s.SelectAnswer(ctx, 0, "A", "A"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	before, _ := s.Active()

	clock.Advance(time.Minute)
	other := testQuiz
	other.Slug = "other"
	_, err := s.Start(ctx, other)
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}

	after, _ := s.Active()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("session changed by second Start:\n got %+v\nwant %+v", after, before)
	}
	if !after.Start.Equal(first.Start) || after.Quiz.Slug != "test" {
		t.Error("second Start replaced the running session")
	}
	stored, _ := persistedSession(t, kv)
	if !reflect.DeepEqual(stored, before) {
		t.Error("persisted session changed by second Start")
	}
}

func TestUpdatesArePersisted(t *testing.T) {
	kv := store.NewMemory()
	s, _ := newTestStore(t, kv)
	ctx := context.Background()
	if _, err := s.Start(ctx, testQuiz); err != nil {
		t.Fatalf("Start: %v", err)
	}

	answers := map[int]model.AnswerRecord{0: {Selected: "C", Correct: false}}
	flagged := map[int]bool{3: true}
	current := 4

	steps := []struct {
		name string
		do   func() (model.ActiveSession, error)
	}{
		{"select", func() (model.ActiveSession, error) { return s.SelectAnswer(ctx, 1, "B", "B") }},
		{"flag", func() (model.ActiveSession, error) { return s.ToggleFlag(ctx, 1) }},
		{"goto", func() (model.ActiveSession, error) { return s.SetCurrent(ctx, 7, 10) }},
		{"goto past end", func() (model.ActiveSession, error) { return s.SetCurrent(ctx, 99, 10) }},
		{"patch answers", func() (model.ActiveSession, error) {
			return s.Update(ctx, model.SessionPatch{Answers: &answers})
		}},
		{"patch flags and current", func() (model.ActiveSession, error) {
			return s.Update(ctx, model.SessionPatch{Flagged: &flagged, Current: &current})
		}},
		{"unflag", func() (model.ActiveSession, error) { return s.ToggleFlag(ctx, 3) }},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			got, err := step.do()
			if err != nil {
				t.Fatalf("%s: %v", step.name, err)
			}
			mem, ok := s.Active()
			if !ok {
				t.Fatal("session disappeared")
			}
			if !reflect.DeepEqual(got, mem) {
				t.Errorf("returned value differs from store state")
			}
			stored, ok := persistedSession(t, kv)
			if !ok {
				t.Fatal("session not persisted")
			}
			if !reflect.DeepEqual(stored, mem) {
				t.Errorf("persisted state differs:\n got %+v\nwant %+v", stored, mem)
			}
		})
	}

	final, _ := s.Active()
	if final.Current != 4 {
		t.Errorf("expected current 4, got %d", final.Current)
	}
	if final.IsFlagged(1) || final.IsFlagged(3) {
		t.Errorf("unexpected flags %v", final.Flagged)
	}
	if len(final.Answers) != 1 || final.Answers[0].Selected != "C" {
		t.Errorf("expected answers replaced wholesale, got %v", final.Answers)
	}
}

func TestMutationsWithoutSession(t *testing.T) {
	kv := store.NewMemory()
	s, _ := newTestStore(t, kv)
	ctx := context.Background()
	current := 2

	if _, err := s.Update(ctx, model.SessionPatch{Current: &current}); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("Update: expected ErrNoActiveSession, got %v", err)
	}
	if _, err := s.SelectAnswer(ctx, 0, "A", "A"); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("SelectAnswer: expected ErrNoActiveSession, got %v", err)
	}
	if _, err := s.ToggleFlag(ctx, 0); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("ToggleFlag: expected ErrNoActiveSession, got %v", err)
	}
	entry, err := s.Finish(ctx)
	if err != nil || entry != nil {
		t.Errorf("Finish without session: got %v, %v", entry, err)
	}
	if _, ok := persistedSession(t, kv); ok {
		t.Error("no-op calls must not persist a session")
	}
	if len(s.History()) != 0 {
		t.Error("no-op Finish must not add history")
	}
}

func TestFinishScenario(t *testing.T) {
	kv := store.NewMemory()
	s, clock := newTestStore(t, kv)
	ctx := context.Background()

	correct := []string{"B", "A", "D"}
	selected := []string{"B", "C", "D"}

	if _, err := s.Start(ctx, testQuiz); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := range correct {
		if _, err := s.SelectAnswer(ctx, i, selected[i], correct[i]); err != nil {
			t.Fatalf("SelectAnswer(%d): %v", i, err)
		}
	}
	sess, _ := s.Active()
	wantFlags := []bool{true, false, true}
	for i, want := range wantFlags {
		if got := sess.Answers[i].Correct; got != want {
			t.Errorf("answer %d correct = %v, want %v", i, got, want)
		}
	}

	clock.Advance(12*time.Minute + 30*time.Second + 900*time.Millisecond)
	entry, err := s.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if entry.Raw != 2 {
		t.Errorf("expected raw 2, got %d", entry.Raw)
	}
	if entry.Scaled != testTable.Lookup(2) {
		t.Errorf("expected scaled %d, got %d", testTable.Lookup(2), entry.Scaled)
	}
	if entry.Duration != 750 {
		t.Errorf("expected truncated duration 750s, got %d", entry.Duration)
	}
	if !entry.Date.Equal(clock.Now()) {
		t.Errorf("expected date %v, got %v", clock.Now(), entry.Date)
	}
	if len(entry.Answers) != 3 {
		t.Errorf("expected answers snapshot of 3, got %d", len(entry.Answers))
	}

	if _, ok := s.Active(); ok {
		t.Error("expected no active session after Finish")
	}
	if _, ok := persistedSession(t, kv); ok {
		t.Error("expected persisted session to be cleared")
	}
	history := persistedHistory(t, kv)
	if len(history) != 1 || !reflect.DeepEqual(history[0], *entry) {
		t.Errorf("persisted history mismatch: %+v", history)
	}
	if got, ok := s.Entry(entry.ID); !ok || got.ID != entry.ID {
		t.Error("Entry lookup failed")
	}
	if _, ok := s.Entry("missing"); ok {
		t.Error("expected missing entry lookup to fail")
	}
}

func TestFinishScaledScoreOutOfRange(t *testing.T) {
	s, _ := newTestStore(t, store.NewMemory())
	ctx := context.Background()
	if _, err := s.Start(ctx, testQuiz); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.SelectAnswer(ctx, i, "A", "A"); err != nil {
			t.Fatalf("SelectAnswer: %v", err)
		}
	}
	entry, err := s.Finish(ctx)
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if entry.Raw != 5 || entry.Scaled != 0 {
		t.Errorf("expected raw 5 scaled 0, got raw %d scaled %d", entry.Raw, entry.Scaled)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	kv := store.NewMemory()
	s, clock := newTestStore(t, kv)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		if _, err := s.Start(ctx, testQuiz); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		clock.Advance(time.Minute)
		entry, err := s.Finish(ctx)
		if err != nil {
			t.Fatalf("Finish %d: %v", i, err)
		}
		ids = append(ids, entry.ID)
	}

	history := s.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i, e := range history {
		want := ids[len(ids)-1-i]
		if e.ID != want {
			t.Errorf("history[%d] = %s, want %s", i, e.ID, want)
		}
	}
	if !reflect.DeepEqual(persistedHistory(t, kv), history) {
		t.Error("persisted history differs from in-memory history")
	}
}

func TestExpireIfDue(t *testing.T) {
	kv := store.NewMemory()
	s, clock := newTestStore(t, kv)
	ctx := context.Background()

	sess, _ := s.Start(ctx, testQuiz)

	if done, err := s.ExpireIfDue(ctx, sess.Expires.Add(-time.Second)); err != nil || done {
		t.Fatalf("expected no expiry before deadline, got %v, %v", done, err)
	}

	clock.Advance(180*time.Minute + time.Second)
	done, err := s.ExpireIfDue(ctx, clock.Now())
	if err != nil || !done {
		t.Fatalf("expected expiry at T+180m+1s, got %v, %v", done, err)
	}
	if _, ok := s.Active(); ok {
		t.Error("expected session absent after expiry")
	}
	if len(s.History()) != 1 {
		t.Fatalf("expected one history entry, got %d", len(s.History()))
	}
	if s.History()[0].Duration != 180*60+1 {
		t.Errorf("unexpected duration %d", s.History()[0].Duration)
	}

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		if done, _ := s.ExpireIfDue(ctx, clock.Now()); done {
			t.Error("repeated expiry finished again")
		}
	}
	if len(s.History()) != 1 {
		t.Errorf("expected exactly one finish, got %d entries", len(s.History()))
	}
}

func TestLoadFromBackend(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s, _ := newTestStore(t, kv)
	if _, err := s.Start(ctx, testQuiz); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := s.SelectAnswer(ctx, 2, "D", "D"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	want, _ := s.Active()

	reloaded, _ := newTestStore(t, kv)
	got, ok := reloaded.Active()
	if !ok {
		t.Fatal("expected session to survive reload")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reloaded session differs:\n got %+v\nwant %+v", got, want)
	}
}

func TestMalformedStorageIsIgnored(t *testing.T) {
	tests := []struct {
		name    string
		session string
		history string
	}{
		{"garbage", "{not json", "also not json"},
		{"wrong shape", `[1,2,3]`, `{"id":"x"}`},
		{"incomplete session", `{"current":3}`, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := store.NewMemory()
			_ = kv.Set(ctx, store.KeyActiveSession, []byte(tt.session))
			_ = kv.Set(ctx, store.KeyHistory, []byte(tt.history))

			s, _ := newTestStore(t, kv)
			if _, ok := s.Active(); ok {
				t.Error("expected malformed session to be treated as absent")
			}
			if h := s.History(); h == nil || len(h) != 0 {
				t.Errorf("expected empty history, got %v", h)
			}
		})
	}
}

// failingBackend fails writes after the first n calls.
type failingBackend struct {
	*store.Memory
	allow int
}

func (f *failingBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.allow <= 0 {
		return errors.New("disk full")
	}
	f.allow--
	return f.Memory.Set(ctx, key, value)
}

func TestFailedWriteKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	kv := &failingBackend{Memory: store.NewMemory(), allow: 1}
	s, _ := newTestStore(t, kv)

	if _, err := s.Start(ctx, testQuiz); err != nil {
		t.Fatalf("Start: %v", err)
	}
	before, _ := s.Active()

	if _, err := s.SelectAnswer(ctx, 0, "A", "A"); err == nil {
		t.Fatal("expected write failure")
	}
	after, _ := s.Active()
	if !reflect.DeepEqual(before, after) {
		t.Error("in-memory state advanced past a failed write")
	}

	if _, err := s.Finish(ctx); err == nil {
		t.Fatal("expected history write failure")
	}
	if _, ok := s.Active(); !ok {
		t.Error("session cleared although history was not saved")
	}
	if len(s.History()) != 0 {
		t.Error("history advanced past a failed write")
	}
}

func TestExpireIfDueWithinLastSecond(t *testing.T) {
	kv := store.NewMemory()
	s, _ := newTestStore(t, kv)
	ctx := context.Background()

	sess, _ := s.Start(ctx, testQuiz)

	done, err := s.ExpireIfDue(ctx, sess.Expires.Add(-500*time.Millisecond))
	if err != nil || !done {
		t.Fatalf("expected expiry with less than a second left, got %v, %v", done, err)
	}
	if _, ok := s.Active(); ok {
		t.Error("expected session absent after expiry")
	}
	if len(persistedHistory(t, kv)) != 1 {
		t.Error("expected the expired attempt in persisted history")
	}
}
