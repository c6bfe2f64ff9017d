// Package questions fetches quiz CSV files and parses them into question
// records.
package questions

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/pavelanni/quizrunner/internal/model"
)

// Loader reads quiz CSVs from a local file tree or over HTTP.
type Loader struct {
	files  fs.FS
	client *http.Client
}

// NewLoader returns a Loader. A nil client means http.DefaultClient; a nil
// files tree rejects local locators.
func NewLoader(files fs.FS, client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{files: files, client: client}
}

// Load fetches and parses the CSV at locator. Results are never cached.
func (l *Loader) Load(ctx context.Context, locator string) ([]model.QuestionRecord, error) {
	rc, err := l.open(ctx, locator)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	qs, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", locator, err)
	}
	return qs, nil
}

func (l *Loader) open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
		if err != nil {
			return nil, fmt.Errorf("build request for %s: %w", locator, err)
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", locator, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: unexpected status %s", locator, resp.Status)
		}
		return resp.Body, nil
	}

	if l.files == nil {
		return nil, fmt.Errorf("open %s: no local quiz directory configured", locator)
	}
	f, err := l.files.Open(strings.TrimPrefix(locator, "/"))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", locator, err)
	}
	return f, nil
}

const (
	colPrompt = "question"
	colAnswer = "answer"
)

// canonicalHeader maps localized header names onto record fields.
func canonicalHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	switch strings.ToLower(h) {
	case "питання", "question", "prompt":
		return colPrompt
	case "правильна", "answer", "correct":
		return colAnswer
	case "a", "b", "c", "d":
		return strings.ToUpper(h)
	}
	return h
}

// ErrNoHeader is returned for an empty CSV.
var ErrNoHeader = errors.New("missing header row")

// Parse reads a CSV with a header row. Rows without a prompt or a correct
// option are dropped; order is preserved.
func Parse(r io.Reader) ([]model.QuestionRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := canonicalHeader(h)
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []model.QuestionRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		q := model.QuestionRecord{
			Prompt: strings.TrimSpace(field(row, colPrompt)),
			A:      field(row, "A"),
			B:      field(row, "B"),
			C:      field(row, "C"),
			D:      field(row, "D"),
			Answer: strings.ToUpper(strings.TrimSpace(field(row, colAnswer))),
		}
		if q.Prompt == "" || q.Answer == "" {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// ImageURL returns the image address for the question at index.
func ImageURL(quiz model.QuizDefinition, index int) string {
	return quiz.ImageBasePath + strconv.Itoa(index+1) + ".png"
}
