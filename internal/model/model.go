package model

import (
	"context"
	"fmt"
	"maps"
	"time"
)

// SessionDuration is the fixed time allowed for one attempt.
const SessionDuration = 180 * time.Minute

// Options lists the option letters in display order.
var Options = []string{"A", "B", "C", "D"}

// QuizDefinition describes one quiz in the catalog.
type QuizDefinition struct {
	Name          string `json:"name" mapstructure:"name" validate:"required"`
	CSVPath       string `json:"path" mapstructure:"path" validate:"required"`
	ImageBasePath string `json:"pathToImages" mapstructure:"images" validate:"required"`
	Slug          string `json:"urlSuffix" mapstructure:"slug" validate:"required,excludesall=/?# "`
}

// QuestionRecord is one parsed row of a quiz CSV.
type QuestionRecord struct {
	Prompt string `json:"question"`
	A      string `json:"A"`
	B      string `json:"B"`
	C      string `json:"C"`
	D      string `json:"D"`
	Answer string `json:"answer"`
}

// Option returns the text of the option with the given letter.
func (q QuestionRecord) Option(letter string) string {
	switch letter {
	case "A":
		return q.A
	case "B":
		return q.B
	case "C":
		return q.C
	case "D":
		return q.D
	}
	return ""
}

// AnswerRecord is the user's choice for one question.
type AnswerRecord struct {
	Selected string `json:"selected"`
	Correct  bool   `json:"correct"`
}

// ActiveSession is an in-progress attempt. Methods never mutate the receiver.
type ActiveSession struct {
	Quiz    QuizDefinition       `json:"quiz"`
	Answers map[int]AnswerRecord `json:"answers"`
	Flagged map[int]bool         `json:"flagged"`
	Start   time.Time            `json:"start"`
	Expires time.Time            `json:"expires"`
	Current int                  `json:"current"`
}

// NewActiveSession returns a fresh session for quiz starting at now.
func NewActiveSession(quiz QuizDefinition, now time.Time) ActiveSession {
	return ActiveSession{
		Quiz:    quiz,
		Answers: map[int]AnswerRecord{},
		Flagged: map[int]bool{},
		Start:   now,
		Expires: now.Add(SessionDuration),
		Current: 0,
	}
}

// Clone returns a deep copy.
func (s ActiveSession) Clone() ActiveSession {
	c := s
	c.Answers = maps.Clone(s.Answers)
	if c.Answers == nil {
		c.Answers = map[int]AnswerRecord{}
	}
	c.Flagged = maps.Clone(s.Flagged)
	if c.Flagged == nil {
		c.Flagged = map[int]bool{}
	}
	return c
}

// WithAnswer returns a copy with the answer at index replaced.
func (s ActiveSession) WithAnswer(index int, rec AnswerRecord) ActiveSession {
	c := s.Clone()
	c.Answers[index] = rec
	return c
}

// WithFlagToggled returns a copy with the flag at index inverted.
func (s ActiveSession) WithFlagToggled(index int) ActiveSession {
	c := s.Clone()
	c.Flagged[index] = !c.Flagged[index]
	return c
}

// WithCurrent returns a copy positioned at index, clamped into [0, total-1].
func (s ActiveSession) WithCurrent(index, total int) ActiveSession {
	c := s.Clone()
	c.Current = ClampIndex(index, total)
	return c
}

// Apply merges the non-nil fields of p, each replacing the whole field.
func (s ActiveSession) Apply(p SessionPatch) ActiveSession {
	c := s.Clone()
	if p.Answers != nil {
		c.Answers = maps.Clone(*p.Answers)
	}
	if p.Flagged != nil {
		c.Flagged = maps.Clone(*p.Flagged)
	}
	if p.Current != nil {
		c.Current = *p.Current
	}
	return c.Clone()
}

// Answer returns the answer for index, or a zero record.
func (s ActiveSession) Answer(index int) AnswerRecord {
	return s.Answers[index]
}

// IsAnswered reports whether an option was selected at index.
func (s ActiveSession) IsAnswered(index int) bool {
	return s.Answers[index].Selected != ""
}

// IsFlagged reports whether index is flagged.
func (s ActiveSession) IsFlagged(index int) bool {
	return s.Flagged[index]
}

// AnsweredCount returns the number of answer records.
func (s ActiveSession) AnsweredCount() int {
	return len(s.Answers)
}

// FlaggedCount returns the number of questions currently flagged.
func (s ActiveSession) FlaggedCount() int {
	n := 0
	for _, f := range s.Flagged {
		if f {
			n++
		}
	}
	return n
}

// RawScore counts the correct answers.
func (s ActiveSession) RawScore() int {
	n := 0
	for _, a := range s.Answers {
		if a.Correct {
			n++
		}
	}
	return n
}

// SessionPatch is a shallow update. Each non-nil field replaces the
// corresponding session field wholesale.
type SessionPatch struct {
	Answers *map[int]AnswerRecord
	Flagged *map[int]bool
	Current *int
}

// HistoryEntry is a finished attempt.
type HistoryEntry struct {
	ID       string               `json:"id"`
	Quiz     QuizDefinition       `json:"quiz"`
	Raw      int                  `json:"raw"`
	Scaled   int                  `json:"scaled"`
	Answers  map[int]AnswerRecord `json:"answers"`
	Date     time.Time            `json:"date"`
	Duration int64                `json:"duration"`
}

// Passed reports whether the attempt received a non-zero scaled score.
func (e HistoryEntry) Passed() bool {
	return e.Scaled != 0
}

// DurationClock formats the duration as M:SS.
func (e HistoryEntry) DurationClock() string {
	return fmt.Sprintf("%d:%02d", e.Duration/60, e.Duration%60)
}

// RemainingSeconds returns the whole seconds left until expires, truncated
// toward zero. It is zero or negative once the attempt is over.
func RemainingSeconds(expires, now time.Time) int {
	return int(expires.Sub(now) / time.Second)
}

// ExpiredAt reports whether no whole second of the attempt is left at now.
func (s ActiveSession) ExpiredAt(now time.Time) bool {
	return RemainingSeconds(s.Expires, now) <= 0
}

// ClampIndex keeps index inside [0, total-1]. A non-positive total yields 0.
func ClampIndex(index, total int) int {
	if index >= total {
		index = total - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	BasePath       string // URL prefix for sub-path deployments (e.g. "/uk")
	DefaultTheme   string // light or dark when no preference is stored
	NavigationSize int    // questions per navigation block
	SecureCookies  bool   // Secure flag on the CSRF cookie
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
