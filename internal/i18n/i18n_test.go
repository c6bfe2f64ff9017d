package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc, lang)
}

func TestTranslateUkrainian(t *testing.T) {
	ctx := initLang(t, "uk")

	if got := T(ctx, "AppTitle"); got != "Тестування" {
		t.Errorf("T(AppTitle) = %q, want 'Тестування'", got)
	}
	if got := T(ctx, "StartConfirmTitle"); got != "Ви впевнені, що хочете почати це тестування?" {
		t.Errorf("T(StartConfirmTitle) = %q", got)
	}
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "AppTitle"); got != "Quiz Runner" {
		t.Errorf("T(AppTitle) = %q, want 'Quiz Runner'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"uk", 1, "1 спроба"},
		{"uk", 3, "3 спроби"},
		{"uk", 5, "5 спроб"},
		{"uk", 21, "21 спроба"},
		{"en", 1, "1 attempt"},
		{"en", 5, "5 attempts"},
	}
	for _, tt := range tests {
		ctx := initLang(t, tt.lang)
		if got := Tp(ctx, "AttemptsCount", tt.count); got != tt.want {
			t.Errorf("%s: Tp(AttemptsCount, %d) = %q, want %q", tt.lang, tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "uk")

	got := Td(ctx, "QuestionN", map[string]any{"N": 3, "Total": 60})
	if got != "Питання 3/60" {
		t.Errorf("Td(QuestionN) = %q, want 'Питання 3/60'", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareSetsLanguage(t *testing.T) {
	if err := Init("uk"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var lang, title string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang = Lang(r.Context())
		title = T(r.Context(), "AppTitle")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if lang != "en" || title != "Quiz Runner" {
		t.Errorf("got lang %q title %q", lang, title)
	}
	if got := Lang(context.Background()); got != "uk" {
		t.Errorf("default Lang = %q, want uk", got)
	}
}
