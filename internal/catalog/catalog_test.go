package catalog

import (
	"testing"

	"github.com/pavelanni/quizrunner/internal/model"
)

func quiz(name, slug string) model.QuizDefinition {
	return model.QuizDefinition{
		Name:          name,
		CSVPath:       "quizzes/" + slug + "/" + slug + ".csv",
		ImageBasePath: "/assets/quizzes/" + slug + "/",
		Slug:          slug,
	}
}

func TestDefaultsAreValid(t *testing.T) {
	c, err := New(Defaults)
	if err != nil {
		t.Fatalf("New(Defaults): %v", err)
	}
	if _, ok := c.BySlug("it-2024"); !ok {
		t.Error("expected it-2024 in default catalog")
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		defs    []model.QuizDefinition
		wantErr bool
	}{
		{"ok", []model.QuizDefinition{quiz("Maths", "maths"), quiz("Physics", "physics")}, false},
		{"empty", nil, true},
		{"missing name", []model.QuizDefinition{quiz("", "maths")}, true},
		{"missing path", []model.QuizDefinition{{Name: "X", ImageBasePath: "/x/", Slug: "x"}}, true},
		{"slash in slug", []model.QuizDefinition{quiz("X", "a/b")}, true},
		{"space in slug", []model.QuizDefinition{quiz("X", "a b")}, true},
		{"duplicate slug", []model.QuizDefinition{quiz("A", "same"), quiz("B", "same")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	c, err := New([]model.QuizDefinition{
		quiz("ЄФВВ Інформаційні Технології 2024", "it-2024"),
		quiz("ЄФВВ Математика 2023", "math-2023"),
		quiz("English B2", "english"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tests := []struct {
		term string
		want int
	}{
		{"", 3},
		{"   ", 3},
		{"єфвв", 2},
		{"ТЕХНОЛОГІЇ", 1},
		{"english", 1},
		{"chemistry", 0},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			if got := c.Search(tt.term); len(got) != tt.want {
				t.Errorf("Search(%q) returned %d quizzes, want %d", tt.term, len(got), tt.want)
			}
		})
	}
}

func TestAllReturnsCopy(t *testing.T) {
	c, _ := New([]model.QuizDefinition{quiz("A", "a")})
	all := c.All()
	all[0].Name = "changed"
	if q, _ := c.BySlug("a"); q.Name != "A" {
		t.Error("All() exposed internal slice")
	}
	if _, ok := c.BySlug("missing"); ok {
		t.Error("expected missing slug lookup to fail")
	}
}
