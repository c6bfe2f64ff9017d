package views

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/quizrunner/internal/i18n"
	"github.com/pavelanni/quizrunner/internal/model"
)

func renderString(t *testing.T, ctx context.Context, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	return buf.String()
}

func testContext(t *testing.T, lang, basePath string) context.Context {
	t.Helper()
	if err := appI18n.Init("uk"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(lang), lang)
	ctx = model.ContextWithBasePath(ctx, basePath)
	return model.ContextWithCSRFToken(ctx, "tok<en>")
}

func TestAssetURL(t *testing.T) {
	tests := []struct {
		base, in, want string
	}{
		{"", "/assets/q/1.png", "/assets/q/1.png"},
		{"/uk", "/assets/q/1.png", "/uk/assets/q/1.png"},
		{"/uk", "https://cdn.example.com/1.png", "https://cdn.example.com/1.png"},
		{"/uk", "//cdn.example.com/1.png", "//cdn.example.com/1.png"},
	}
	for _, tt := range tests {
		if got := AssetURL(tt.base, tt.in); got != tt.want {
			t.Errorf("AssetURL(%q, %q) = %q, want %q", tt.base, tt.in, got, tt.want)
		}
	}
}

func TestEveryPageRenders(t *testing.T) {
	ctx := testContext(t, "uk", "")
	quiz := model.QuizDefinition{Name: "ІТ 2024", Slug: "it", ImageBasePath: "/assets/it/"}
	active := model.NewActiveSession(quiz, time.Now())
	entry := model.HistoryEntry{ID: "e1", Quiz: quiz, Raw: 40, Scaled: 126, Date: time.Now(), Duration: 95}

	pages := map[string]templ.Component{
		"catalog":     CatalogPage(CatalogView{Quizzes: []model.QuizDefinition{quiz}}),
		"start":       StartPage(StartView{Quiz: quiz}),
		"quiz":        QuizPage(QuizView{Chrome: Chrome{Active: &active}, Quiz: quiz, Total: 1, Options: model.Options, Clock: "180:00"}),
		"finish":      FinishPage(FinishView{Quiz: quiz, Answered: 1, Total: 2, Flagged: 1}),
		"unavailable": UnavailablePage(UnavailableView{Quiz: quiz}),
		"history":     HistoryPage(HistoryView{Entries: []model.HistoryEntry{entry}, MaxRaw: 140, MaxScaled: 200}),
		"entry":       EntryPage(EntryView{Entry: entry, MaxRaw: 140, MaxScaled: 200}),
		"notfound":    NotFoundPage(NotFoundView{}),
	}
	for name, c := range pages {
		t.Run(name, func(t *testing.T) {
			out := renderString(t, ctx, c)
			if !strings.HasPrefix(out, "<!doctype html>") {
				t.Errorf("missing doctype: %.60q", out)
			}
			if !strings.Contains(out, `<html lang="uk"`) {
				t.Error("missing language attribute")
			}
		})
	}
}

func TestQuizPageContent(t *testing.T) {
	ctx := testContext(t, "uk", "/uk")
	quiz := model.QuizDefinition{Name: "ІТ", Slug: "it", ImageBasePath: "/assets/it/"}
	v := QuizView{
		Chrome:   Chrome{Theme: "dark", Return: "/uk/quiz/it?x=<1>"},
		Quiz:     quiz,
		Index:    1,
		Total:    3,
		Question: model.QuestionRecord{Prompt: "Що таке <TCP>?", A: "a", B: "b", C: "c", D: "d"},
		ImageURL: "/assets/it/2.png",
		Selected: "C",
		Flagged:  true,
		Options:  model.Options,
		Block:    []NavItem{{Index: 0, Number: 1, Answered: true}, {Index: 1, Number: 2, Current: true, Flagged: true}},
		Clock:    "42:00",
		Progress: 76.6,
	}
	out := renderString(t, ctx, QuizPage(v))

	for _, want := range []string{
		"Питання 2/3",
		"Що таке &lt;TCP&gt;?",
		`src="/uk/assets/it/2.png"`,
		`value="C" aria-pressed="true"`,
		"ЗНЯТИ ПОЗНАЧКУ",
		`action="/uk/quiz/it/goto"`,
		`name="csrf_token" value="tok&lt;en&gt;"`,
		"42:00",
		`<progress id="progress" max="100" value="76.6">`,
		`data-url="/uk/quiz/it/timer"`,
		`data-theme="dark"`,
		`name="return" value="/uk/quiz/it?x=&lt;1&gt;"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("quiz page missing %q", want)
		}
	}
}

func TestEnglishLocale(t *testing.T) {
	ctx := testContext(t, "en", "")
	out := renderString(t, ctx, FinishPage(FinishView{Quiz: model.QuizDefinition{Name: "IT", Slug: "it"}, Answered: 5, Total: 60}))
	if !strings.Contains(out, "You answered 5 of 60 questions.") {
		t.Errorf("english finish page:\n%s", out)
	}
	if strings.Contains(out, "Flagged questions left") {
		t.Error("flag notice should be hidden when nothing is flagged")
	}
}

func TestEntryPageReview(t *testing.T) {
	ctx := testContext(t, "uk", "")
	quiz := model.QuizDefinition{Name: "ІТ", Slug: "it", ImageBasePath: "/assets/it/"}
	v := EntryView{
		Entry:     model.HistoryEntry{ID: "e1", Quiz: quiz, Raw: 1, Date: time.Now(), Duration: 60},
		MaxRaw:    140,
		MaxScaled: 200,
		Items: []ReviewItem{
			{
				Number: 1, Prompt: "Перше", Selected: "A", Correct: "C",
				Options: []ReviewOption{
					{Letter: "A", Text: "a1", Selected: true},
					{Letter: "B", Text: "b1"},
					{Letter: "C", Text: "c1", Correct: true},
					{Letter: "D", Text: "d1"},
				},
			},
			{Number: 2, Selected: "B", IsCorrect: true},
		},
	}
	out := renderString(t, ctx, EntryPage(v))

	for _, want := range []string{
		`<li class="opt wrong">A. a1</li>`,
		`<li class="opt">B. b1</li>`,
		`<li class="opt correct">C. c1</li>`,
		"Правильна – C",
		"Не складено",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("entry page missing %q", want)
		}
	}
	if n := strings.Count(out, `class="review"`); n != 1 {
		t.Errorf("expected one option list, got %d", n)
	}
}
