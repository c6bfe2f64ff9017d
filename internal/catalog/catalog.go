// Package catalog holds the list of quizzes offered on the home page.
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/quizrunner/internal/model"
)

// Defaults is the built-in catalog used when the config file lists none.
var Defaults = []model.QuizDefinition{
	{
		Name:          "ЄФВВ Інформаційні Технології 2024",
		CSVPath:       "quizzes/quiz-it-2024/quiz-it-2024.csv",
		ImageBasePath: "/assets/quizzes/quiz-it-2024/",
		Slug:          "it-2024",
	},
}

// Catalog is an immutable, validated list of quizzes.
type Catalog struct {
	quizzes []model.QuizDefinition
}

var validate = validator.New()

// New validates defs and rejects duplicate slugs.
func New(defs []model.QuizDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, errors.New("catalog is empty")
	}
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if err := validate.Struct(d); err != nil {
			return nil, fmt.Errorf("quiz %d (%q): %w", i, d.Name, err)
		}
		if seen[d.Slug] {
			return nil, fmt.Errorf("quiz %d: duplicate slug %q", i, d.Slug)
		}
		seen[d.Slug] = true
	}
	return &Catalog{quizzes: slices.Clone(defs)}, nil
}

// All returns every quiz in configured order.
func (c *Catalog) All() []model.QuizDefinition {
	return slices.Clone(c.quizzes)
}

// BySlug finds a quiz by its URL slug.
func (c *Catalog) BySlug(slug string) (model.QuizDefinition, bool) {
	for _, q := range c.quizzes {
		if q.Slug == slug {
			return q, true
		}
	}
	return model.QuizDefinition{}, false
}

// Search returns quizzes whose name contains term, ignoring case. A blank
// term returns everything.
func (c *Catalog) Search(term string) []model.QuizDefinition {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return c.All()
	}
	var out []model.QuizDefinition
	for _, q := range c.quizzes {
		if strings.Contains(strings.ToLower(q.Name), term) {
			out = append(out, q)
		}
	}
	return out
}
