package questions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/pavelanni/quizrunner/internal/model"
)

const ukrainianCSV = "\ufeffПитання,A,B,C,D,Правильна\n" +
	"Що таке TCP?,Протокол,Мова,Редактор,Браузер,A\n" +
	",порожнє,питання,без,тексту,B\n" +
	"Без відповіді,1,2,3,4,\n" +
	"\"Питання, з комою\",так,ні,можливо,ніколи, d \n"

func TestParseTranslatesHeadersAndFilters(t *testing.T) {
	qs, err := Parse(strings.NewReader(ukrainianCSV))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d: %+v", len(qs), qs)
	}

	want := model.QuestionRecord{Prompt: "Що таке TCP?", A: "Протокол", B: "Мова", C: "Редактор", D: "Браузер", Answer: "A"}
	if qs[0] != want {
		t.Errorf("first question = %+v, want %+v", qs[0], want)
	}
	if qs[1].Prompt != "Питання, з комою" {
		t.Errorf("unexpected second prompt %q", qs[1].Prompt)
	}
	if qs[1].Answer != "D" {
		t.Errorf("expected normalized answer D, got %q", qs[1].Answer)
	}
}

func TestParseHeaderVariants(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want int
	}{
		{"english headers", "question,A,B,C,D,answer\nq1,a,b,c,d,B\n", 1},
		{"padded headers", " Питання , A ,B,C,D, Правильна \nq1,a,b,c,d,C\n", 1},
		{"reordered columns", "Правильна,D,C,B,A,Питання\nA,d,c,b,a,q1\n", 1},
		{"extra columns", "№,Питання,A,B,C,D,Правильна,Тема\n1,q1,a,b,c,d,A,мережі\n", 1},
		{"ragged row", "Питання,A,B,C,D,Правильна\nq1,a,b\n", 0},
		{"header only", "Питання,A,B,C,D,Правильна\n", 0},
		{"no prompt column", "A,B,C,D,Правильна\na,b,c,d,A\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := Parse(strings.NewReader(tt.csv))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(qs) != tt.want {
				t.Errorf("expected %d questions, got %d", tt.want, len(qs))
			}
		})
	}
}

func TestParseReorderedColumnsMapsFields(t *testing.T) {
	qs, err := Parse(strings.NewReader("Правильна,D,C,B,A,Питання\nA,d,c,b,a,q1\n"))
	if err != nil || len(qs) != 1 {
		t.Fatalf("Parse: %v, %d", err, len(qs))
	}
	if qs[0].A != "a" || qs[0].D != "d" || qs[0].Prompt != "q1" {
		t.Errorf("columns mapped incorrectly: %+v", qs[0])
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse(strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Errorf("expected ErrNoHeader, got %v", err)
	}
}

func TestLoadFromFS(t *testing.T) {
	files := fstest.MapFS{
		"quizzes/it/it.csv": {Data: []byte(ukrainianCSV)},
	}
	l := NewLoader(files, nil)

	qs, err := l.Load(context.Background(), "/quizzes/it/it.csv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(qs) != 2 {
		t.Errorf("expected 2 questions, got %d", len(qs))
	}

	if _, err := l.Load(context.Background(), "quizzes/missing.csv"); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := NewLoader(nil, nil).Load(context.Background(), "quizzes/it/it.csv"); err == nil {
		t.Error("expected error without a local file tree")
	}
}

func TestLoadOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quiz.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = w.Write([]byte(ukrainianCSV))
	}))
	defer srv.Close()

	l := NewLoader(nil, srv.Client())

	qs, err := l.Load(context.Background(), srv.URL+"/quiz.csv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(qs) != 2 {
		t.Errorf("expected 2 questions, got %d", len(qs))
	}

	if _, err := l.Load(context.Background(), srv.URL+"/missing.csv"); err == nil {
		t.Error("expected error for 404")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, srv.URL+"/quiz.csv"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestImageURL(t *testing.T) {
	q := model.QuizDefinition{ImageBasePath: "/assets/quizzes/it/"}
	if got := ImageURL(q, 0); got != "/assets/quizzes/it/1.png" {
		t.Errorf("ImageURL(0) = %q", got)
	}
	if got := ImageURL(q, 41); got != "/assets/quizzes/it/42.png" {
		t.Errorf("ImageURL(41) = %q", got)
	}
}
