package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/pavelanni/quizrunner/internal/catalog"
	"github.com/pavelanni/quizrunner/internal/model"
	"github.com/pavelanni/quizrunner/internal/store"
)

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"uk", "/uk"},
		{"/uk/", "/uk"},
		{" /quiz/it ", "/quiz/it"},
	}
	for _, tt := range tests {
		if got := normalizeBasePath(tt.in); got != tt.want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadCatalogDefaults(t *testing.T) {
	cat, err := loadCatalog(viper.New())
	if err != nil {
		t.Fatalf("loadCatalog: %v", err)
	}
	if len(cat.All()) != len(catalog.Defaults) {
		t.Errorf("expected built-in catalog, got %d quizzes", len(cat.All()))
	}
}

func TestLoadCatalogFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := `quizzes:
  - name: Мережі
    path: quizzes/net/net.csv
    images: /assets/quizzes/net/
    slug: net
  - name: Бази даних
    path: https://example.com/db.csv
    images: https://example.com/db/
    slug: db
`
	path := filepath.Join(dir, "quizrunner.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}

	cat, err := loadCatalog(v)
	if err != nil {
		t.Fatalf("loadCatalog: %v", err)
	}
	q, ok := cat.BySlug("db")
	if !ok {
		t.Fatal("quiz db missing")
	}
	if q.Name != "Бази даних" || q.CSVPath != "https://example.com/db.csv" || q.ImageBasePath != "https://example.com/db/" {
		t.Errorf("unexpected quiz %+v", q)
	}
}

func TestLoadCatalogRejectsInvalid(t *testing.T) {
	v := viper.New()
	v.Set("quizzes", []map[string]any{{"name": "No slug", "path": "a.csv", "images": "/a/"}})
	if _, err := loadCatalog(v); err == nil {
		t.Error("expected validation error for missing slug")
	}
}

func TestStorageOptions(t *testing.T) {
	v := viper.New()
	v.Set("storage", "Redis")
	v.Set("redis-addr", "cache:6379")
	v.Set("redis-db", 2)
	v.Set("redis-prefix", "qr:")

	got := storageOptions(v)
	want := store.Options{Kind: "redis", RedisAddr: "cache:6379", RedisDB: 2, RedisPrefix: "qr:"}
	if got != want {
		t.Errorf("storageOptions = %+v, want %+v", got, want)
	}
}

func TestBuildExport(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	history := []model.HistoryEntry{
		{ID: "b", Quiz: model.QuizDefinition{Name: "IT", Slug: "it"}, Raw: 80, Scaled: 155, Date: now, Duration: 3600,
			Answers: map[int]model.AnswerRecord{0: {Selected: "A", Correct: true}}},
		{ID: "a", Quiz: model.QuizDefinition{Name: "IT", Slug: "it"}, Raw: 3, Scaled: 0, Date: now.Add(-time.Hour)},
	}

	exp := buildExport(history, "", now)
	if exp.Storage != "sqlite" || exp.Attempts != 2 || len(exp.Results) != 2 {
		t.Fatalf("unexpected export header %+v", exp)
	}
	if r := exp.Results[0]; r.ID != "b" || !r.Passed || r.Answered != 1 || r.DurationSeconds != 3600 {
		t.Errorf("first result = %+v", r)
	}
	if exp.Results[1].Passed {
		t.Error("scaled 0 should not be passed")
	}

	data, err := json.Marshal(buildExport(nil, "file", now))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"results":[]`) {
		t.Errorf("empty history should export an empty list: %s", data)
	}
}

func TestHistoryCommandWritesFile(t *testing.T) {
	dir := t.TempDir()
	kv, err := store.NewFile(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	entries := []model.HistoryEntry{{ID: "x", Quiz: model.QuizDefinition{Name: "IT", Slug: "it"}, Raw: 30, Scaled: 109}}
	data, _ := json.Marshal(entries)
	if err := kv.Set(context.Background(), store.KeyHistory, data); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "history.json")
	root := rootCmd()
	root.SetArgs([]string{"history", "--storage", "file", "--data-dir", filepath.Join(dir, "data"), "-o", out})
	if err := root.Execute(); err != nil {
		t.Fatalf("history: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var exp model.HistoryExport
	if err := json.Unmarshal(raw, &exp); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if exp.Storage != "file" || exp.Attempts != 1 || exp.Results[0].Scaled != 109 {
		t.Errorf("unexpected export %+v", exp)
	}
}

func TestWriteCatalog(t *testing.T) {
	cat, err := catalog.New(catalog.Defaults)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := writeCatalog(&buf, cat); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "SLUG") || !strings.Contains(out, "it-2024") {
		t.Errorf("unexpected catalog listing:\n%s", out)
	}
}
