package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizrunner/internal/catalog"
	"github.com/pavelanni/quizrunner/internal/handler/views"
	"github.com/pavelanni/quizrunner/internal/model"
	"github.com/pavelanni/quizrunner/internal/questions"
	"github.com/pavelanni/quizrunner/internal/session"
	"github.com/pavelanni/quizrunner/internal/store"
	"github.com/pavelanni/quizrunner/internal/timer"
)

const (
	themeLight = "light"
	themeDark  = "dark"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Store
	catalog  *catalog.Catalog
	loader   *questions.Loader
	assets   fs.FS
	kv       store.Backend
	config   model.Config
	now      func() time.Time
}

// New creates a new Handler. assets may be nil when no static files are served.
func New(sessions *session.Store, cat *catalog.Catalog, loader *questions.Loader, assets fs.FS, kv store.Backend, cfg model.Config) (*Handler, error) {
	if sessions == nil || cat == nil || loader == nil || kv == nil {
		return nil, errors.New("handler: missing dependency")
	}
	if cfg.NavigationSize <= 0 {
		cfg.NavigationSize = 25
	}
	if cfg.DefaultTheme != themeDark {
		cfg.DefaultTheme = themeLight
	}
	return &Handler{
		sessions: sessions,
		catalog:  cat,
		loader:   loader,
		assets:   assets,
		kv:       kv,
		config:   cfg,
		now:      time.Now,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	if h.assets != nil {
		r.Handle("/assets/*", http.StripPrefix(h.path("/assets/"), http.FileServerFS(h.assets)))
	}
	r.Group(func(r chi.Router) {
		r.Use(h.expireMiddleware)
		r.Get("/quiz/{slug}/timer", h.handleTimer)

		r.Group(func(r chi.Router) {
			r.Use(h.csrfMiddleware)
			h.pageRoutes(r)
		})
	})
}

func (h *Handler) pageRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/quiz/{slug}/start", h.handleStartPage)
	r.Post("/quiz/{slug}/start", h.handleStart)
	r.Get("/quiz/{slug}", h.handleQuizPage)
	r.Post("/quiz/{slug}/answer", h.handleAnswer)
	r.Post("/quiz/{slug}/flag", h.handleFlag)
	r.Post("/quiz/{slug}/goto", h.handleGoto)
	r.Get("/quiz/{slug}/finish", h.handleFinishPage)
	r.Post("/quiz/{slug}/finish", h.handleFinish)
	r.Get("/history", h.handleHistoryList)
	r.Get("/history/{id}", h.handleHistoryEntry)
	r.Post("/theme", h.handleTheme)
}

// BasePathMiddleware makes the configured base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) quizPath(slug, suffix string) string {
	return h.path("/quiz/" + slug + suffix)
}

// expireMiddleware finishes an overdue session before the request sees it,
// so a page never shows a quiz whose time is up.
func (h *Handler) expireMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.sessions.ExpireIfDue(r.Context(), h.now()); err != nil {
			slog.Error("expire session", "error", err)
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) chrome(r *http.Request) views.Chrome {
	c := views.Chrome{Theme: h.theme(r.Context()), Return: r.URL.RequestURI()}
	if sess, ok := h.sessions.Active(); ok {
		c.Active = &sess
	}
	return c
}

func (h *Handler) theme(ctx context.Context) string {
	data, err := h.kv.Get(ctx, store.KeyTheme)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Warn("read theme", "error", err)
		}
		return h.config.DefaultTheme
	}
	var mode string
	if err := json.Unmarshal(data, &mode); err != nil || (mode != themeLight && mode != themeDark) {
		return h.config.DefaultTheme
	}
	return mode
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusNotFound, views.NotFoundPage(views.NotFoundView{Chrome: h.chrome(r)}))
}

// questionsFor loads the question set of a quiz on every request.
func (h *Handler) questionsFor(ctx context.Context, quiz model.QuizDefinition) ([]model.QuestionRecord, error) {
	qs, err := h.loader.Load(ctx, quiz.CSVPath)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("quiz %s has no questions", quiz.Slug)
	}
	return qs, nil
}

// activeFor returns the running session when it belongs to the quiz in the
// URL. Otherwise it redirects to the catalog and reports false.
func (h *Handler) activeFor(w http.ResponseWriter, r *http.Request) (model.ActiveSession, bool) {
	sess, ok := h.sessions.Active()
	if !ok || sess.Quiz.Slug != chi.URLParam(r, "slug") {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return model.ActiveSession{}, false
	}
	return sess, true
}

// loadForSession resolves the questions of the active quiz, rendering the
// unavailable page on failure.
func (h *Handler) loadForSession(w http.ResponseWriter, r *http.Request, sess model.ActiveSession) ([]model.QuestionRecord, bool) {
	qs, err := h.questionsFor(r.Context(), sess.Quiz)
	if err != nil {
		slog.Error("load questions", "quiz", sess.Quiz.Slug, "path", sess.Quiz.CSVPath, "error", err)
		render(w, r, http.StatusBadGateway, views.UnavailablePage(views.UnavailableView{
			Chrome: h.chrome(r),
			Quiz:   sess.Quiz,
		}))
		return nil, false
	}
	return qs, true
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	render(w, r, http.StatusOK, views.CatalogPage(views.CatalogView{
		Chrome:  h.chrome(r),
		Query:   q,
		Quizzes: h.catalog.Search(q),
	}))
}

func (h *Handler) handleStartPage(w http.ResponseWriter, r *http.Request) {
	quiz, ok := h.catalog.BySlug(chi.URLParam(r, "slug"))
	if !ok {
		h.notFound(w, r)
		return
	}
	if sess, active := h.sessions.Active(); active {
		http.Redirect(w, r, h.quizPath(sess.Quiz.Slug, ""), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.StartPage(views.StartView{
		Chrome: h.chrome(r),
		Quiz:   quiz,
	}))
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	quiz, ok := h.catalog.BySlug(chi.URLParam(r, "slug"))
	if !ok {
		h.notFound(w, r)
		return
	}
	sess, err := h.sessions.Start(r.Context(), quiz)
	if errors.Is(err, session.ErrSessionActive) {
		http.Redirect(w, r, h.quizPath(sess.Quiz.Slug, ""), http.StatusSeeOther)
		return
	}
	if err != nil {
		slog.Error("start quiz", "quiz", quiz.Slug, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.quizPath(quiz.Slug, ""), http.StatusSeeOther)
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeFor(w, r)
	if !ok {
		return
	}
	qs, ok := h.loadForSession(w, r, sess)
	if !ok {
		return
	}

	now := h.now()
	total := len(qs)
	idx := model.ClampIndex(sess.Current, total)
	cd := timer.Countdown{Start: sess.Start, Expires: sess.Expires}

	all := make([]views.NavItem, total)
	for i := range all {
		all[i] = views.NavItem{
			Index:    i,
			Number:   i + 1,
			Answered: sess.IsAnswered(i),
			Flagged:  sess.IsFlagged(i),
			Current:  i == idx,
		}
	}
	from := idx / h.config.NavigationSize * h.config.NavigationSize
	to := min(from+h.config.NavigationSize, total)

	render(w, r, http.StatusOK, views.QuizPage(views.QuizView{
		Chrome:   h.chrome(r),
		Quiz:     sess.Quiz,
		Index:    idx,
		Total:    total,
		Question: qs[idx],
		ImageURL: questions.ImageURL(sess.Quiz, idx),
		Selected: sess.Answer(idx).Selected,
		Flagged:  sess.IsFlagged(idx),
		Options:  model.Options,
		Block:    all[from:to],
		All:      all,
		Clock:    cd.Clock(now),
		Progress: cd.Progress(now),
	}))
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeFor(w, r)
	if !ok {
		return
	}
	option := r.FormValue("option")
	if !validOption(option) {
		http.Error(w, "invalid option", http.StatusBadRequest)
		return
	}
	qs, ok := h.loadForSession(w, r, sess)
	if !ok {
		return
	}
	idx := model.ClampIndex(sess.Current, len(qs))
	if _, err := h.sessions.SelectAnswer(r.Context(), idx, option, qs[idx].Answer); err != nil {
		h.updateFailed(w, r, err)
		return
	}
	http.Redirect(w, r, h.quizPath(sess.Quiz.Slug, ""), http.StatusSeeOther)
}

func (h *Handler) handleFlag(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeFor(w, r)
	if !ok {
		return
	}
	qs, ok := h.loadForSession(w, r, sess)
	if !ok {
		return
	}
	idx := model.ClampIndex(sess.Current, len(qs))
	if _, err := h.sessions.ToggleFlag(r.Context(), idx); err != nil {
		h.updateFailed(w, r, err)
		return
	}
	http.Redirect(w, r, h.quizPath(sess.Quiz.Slug, ""), http.StatusSeeOther)
}

func (h *Handler) handleGoto(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeFor(w, r)
	if !ok {
		return
	}
	qs, ok := h.loadForSession(w, r, sess)
	if !ok {
		return
	}

	var target int
	switch dir := r.FormValue("dir"); {
	case dir == "prev":
		target = sess.Current - 1
	case dir == "next":
		target = sess.Current + 1
	case r.FormValue("index") != "":
		n, err := strconv.Atoi(r.FormValue("index"))
		if err != nil {
			http.Error(w, "invalid index", http.StatusBadRequest)
			return
		}
		target = n
	default:
		http.Error(w, "index or dir required", http.StatusBadRequest)
		return
	}

	if _, err := h.sessions.SetCurrent(r.Context(), target, len(qs)); err != nil {
		h.updateFailed(w, r, err)
		return
	}
	http.Redirect(w, r, h.quizPath(sess.Quiz.Slug, ""), http.StatusSeeOther)
}

func (h *Handler) handleFinishPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.activeFor(w, r)
	if !ok {
		return
	}
	qs, ok := h.loadForSession(w, r, sess)
	if !ok {
		return
	}
	cd := timer.Countdown{Start: sess.Start, Expires: sess.Expires}
	render(w, r, http.StatusOK, views.FinishPage(views.FinishView{
		Chrome:   h.chrome(r),
		Quiz:     sess.Quiz,
		Answered: sess.AnsweredCount(),
		Total:    len(qs),
		Flagged:  sess.FlaggedCount(),
		Clock:    cd.Clock(h.now()),
	}))
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.activeFor(w, r); !ok {
		return
	}
	entry, err := h.sessions.Finish(r.Context())
	if err != nil && entry == nil {
		slog.Error("finish quiz", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err != nil {
		// History is saved; only clearing the session failed.
		slog.Error("finish quiz", "id", entry.ID, "error", err)
	}
	if entry == nil {
		http.Redirect(w, r, h.path("/history"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.path("/history/"+entry.ID), http.StatusSeeOther)
}

type timerResponse struct {
	Remaining int     `json:"remaining"`
	Clock     string  `json:"clock"`
	Progress  float64 `json:"progress"`
	Expired   bool    `json:"expired"`
}

func (h *Handler) handleTimer(w http.ResponseWriter, r *http.Request) {
	resp := timerResponse{Clock: "00:00", Progress: 100, Expired: true}
	if sess, ok := h.sessions.Active(); ok && sess.Quiz.Slug == chi.URLParam(r, "slug") {
		now := h.now()
		cd := timer.Countdown{Start: sess.Start, Expires: sess.Expires}
		resp = timerResponse{
			Remaining: max(cd.Remaining(now), 0),
			Clock:     cd.Clock(now),
			Progress:  cd.Progress(now),
			Expired:   cd.Expired(now),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encode timer", "error", err)
	}
}

func (h *Handler) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	table := h.sessions.ScaleTable()
	render(w, r, http.StatusOK, views.HistoryPage(views.HistoryView{
		Chrome:    h.chrome(r),
		Entries:   h.sessions.History(),
		MaxRaw:    table.MaxRaw(),
		MaxScaled: table.MaxScaled(),
	}))
}

func (h *Handler) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.sessions.Entry(chi.URLParam(r, "id"))
	if !ok {
		h.notFound(w, r)
		return
	}

	// The review degrades to letters only when the questions cannot be loaded.
	qs, err := h.questionsFor(r.Context(), entry.Quiz)
	if err != nil {
		slog.Warn("load questions for review", "quiz", entry.Quiz.Slug, "error", err)
	}

	indexes := make([]int, 0, len(entry.Answers))
	for i := range entry.Answers {
		indexes = append(indexes, i)
	}
	slices.Sort(indexes)

	items := make([]views.ReviewItem, 0, len(indexes))
	for _, i := range indexes {
		a := entry.Answers[i]
		item := views.ReviewItem{
			Number:    i + 1,
			ImageURL:  questions.ImageURL(entry.Quiz, i),
			Selected:  a.Selected,
			IsCorrect: a.Correct,
		}
		if i < len(qs) {
			item.Prompt = qs[i].Prompt
			item.Correct = qs[i].Answer
			for _, letter := range model.Options {
				item.Options = append(item.Options, views.ReviewOption{
					Letter:   letter,
					Text:     qs[i].Option(letter),
					Selected: letter == a.Selected,
					Correct:  letter == qs[i].Answer,
				})
			}
		}
		items = append(items, item)
	}

	table := h.sessions.ScaleTable()
	render(w, r, http.StatusOK, views.EntryPage(views.EntryView{
		Chrome:    h.chrome(r),
		Entry:     entry,
		MaxRaw:    table.MaxRaw(),
		MaxScaled: table.MaxScaled(),
		Items:     items,
	}))
}

func (h *Handler) handleTheme(w http.ResponseWriter, r *http.Request) {
	next := themeDark
	if h.theme(r.Context()) == themeDark {
		next = themeLight
	}
	data, _ := json.Marshal(next)
	if err := h.kv.Set(r.Context(), store.KeyTheme, data); err != nil {
		slog.Error("save theme", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.returnPath(r.FormValue("return")), http.StatusSeeOther)
}

// returnPath accepts only a local path under the base path and falls back
// to the catalog otherwise.
func (h *Handler) returnPath(raw string) string {
	home := h.path("/")
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return home
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return home
	}
	if base := h.config.BasePath; base != "" && u.Path != base && !strings.HasPrefix(u.Path, base+"/") {
		return home
	}
	return u.RequestURI()
}

func (h *Handler) updateFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrNoActiveSession) {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	slog.Error("update session", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func validOption(o string) bool {
	return slices.Contains(model.Options, o)
}
