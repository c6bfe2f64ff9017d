// Package views holds the templ components of the quiz runner pages and the
// data they render.
package views

//go:generate templ generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	appI18n "github.com/pavelanni/quizrunner/internal/i18n"
	"github.com/pavelanni/quizrunner/internal/model"
)

// Chrome is the data shared by every page: the sidebar and the theme.
type Chrome struct {
	Theme  string
	Active *model.ActiveSession
	// Return is the request URI the theme toggle sends the user back to.
	Return string
}

// CatalogView lists the quizzes matching the search query.
type CatalogView struct {
	Chrome
	Query   string
	Quizzes []model.QuizDefinition
}

// StartView asks for confirmation before a quiz starts.
type StartView struct {
	Chrome
	Quiz model.QuizDefinition
}

// NavItem is one cell of the question navigation grid.
type NavItem struct {
	Index    int
	Number   int
	Answered bool
	Flagged  bool
	Current  bool
}

// QuizView is the in-progress quiz page.
type QuizView struct {
	Chrome
	Quiz     model.QuizDefinition
	Index    int
	Total    int
	Question model.QuestionRecord
	ImageURL string
	Selected string
	Flagged  bool
	Options  []string
	Block    []NavItem
	All      []NavItem
	Clock    string
	Progress float64
}

// Number is the 1-based question number.
func (v QuizView) Number() int { return v.Index + 1 }

// HasPrev reports whether a previous question exists.
func (v QuizView) HasPrev() bool { return v.Index > 0 }

// HasNext reports whether a next question exists.
func (v QuizView) HasNext() bool { return v.Index < v.Total-1 }

// FinishView asks for confirmation before the quiz is scored.
type FinishView struct {
	Chrome
	Quiz     model.QuizDefinition
	Answered int
	Total    int
	Flagged  int
	Clock    string
}

// UnavailableView is shown when the questions of a quiz cannot be loaded.
type UnavailableView struct {
	Chrome
	Quiz model.QuizDefinition
}

// HistoryView lists finished attempts, newest first.
type HistoryView struct {
	Chrome
	Entries   []model.HistoryEntry
	MaxRaw    int
	MaxScaled int
}

// ReviewOption is one option of a reviewed question.
type ReviewOption struct {
	Letter   string
	Text     string
	Selected bool
	Correct  bool
}

// ReviewItem is one answered question in the attempt review. Options is
// empty when the questions could not be reloaded.
type ReviewItem struct {
	Number    int
	Prompt    string
	ImageURL  string
	Selected  string
	Correct   string
	IsCorrect bool
	Options   []ReviewOption
}

// EntryView reviews a single finished attempt.
type EntryView struct {
	Chrome
	Entry     model.HistoryEntry
	MaxRaw    int
	MaxScaled int
	Items     []ReviewItem
}

// NotFoundView is the 404 page.
type NotFoundView struct {
	Chrome
}

// AssetURL prefixes site-absolute asset URLs with the base path.
func AssetURL(basePath, u string) string {
	if strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") {
		return basePath + u
	}
	return u
}

func assetURL(ctx context.Context, u string) string {
	return AssetURL(model.BasePathFromContext(ctx), u)
}

func pathURL(ctx context.Context, p string) templ.SafeURL {
	return templ.URL(model.BasePathFromContext(ctx) + p)
}

func quizURL(ctx context.Context, slug, suffix string) templ.SafeURL {
	return pathURL(ctx, "/quiz/"+slug+suffix)
}

func entryURL(ctx context.Context, id string) templ.SafeURL {
	return pathURL(ctx, "/history/"+id)
}

// td translates id with key/value template data.
func td(ctx context.Context, id string, pairs ...any) string {
	data := make(map[string]any, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		data[fmt.Sprint(pairs[i])] = pairs[i+1]
	}
	return appI18n.Td(ctx, id, data)
}

func date(t time.Time) string { return t.Local().Format("02.01.2006 15:04") }

func ago(t time.Time) string { return humanize.Time(t) }

func pct(f float64) string { return fmt.Sprintf("%.1f", f) }

func pressed(on bool) templ.Attributes {
	if on {
		return templ.Attributes{"aria-pressed": "true"}
	}
	return templ.Attributes{}
}

func navAttrs(it NavItem) templ.Attributes {
	var class []string
	if it.Answered {
		class = append(class, "answered")
	}
	if it.Flagged {
		class = append(class, "flagged")
	}
	if it.Current {
		class = append(class, "current")
	}
	attrs := templ.Attributes{"value": fmt.Sprint(it.Index)}
	if len(class) > 0 {
		attrs["class"] = strings.Join(class, " ")
	}
	return attrs
}

func reviewAttrs(o ReviewOption) templ.Attributes {
	switch {
	case o.Correct:
		return templ.Attributes{"class": "opt correct"}
	case o.Selected:
		return templ.Attributes{"class": "opt wrong"}
	}
	return templ.Attributes{"class": "opt"}
}
