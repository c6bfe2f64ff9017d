package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizrunner/internal/catalog"
	"github.com/pavelanni/quizrunner/internal/handler"
	appI18n "github.com/pavelanni/quizrunner/internal/i18n"
	"github.com/pavelanni/quizrunner/internal/model"
	"github.com/pavelanni/quizrunner/internal/questions"
	"github.com/pavelanni/quizrunner/internal/scale"
	"github.com/pavelanni/quizrunner/internal/session"
	"github.com/pavelanni/quizrunner/internal/store"
	"github.com/pavelanni/quizrunner/internal/timer"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizrunner",
		Short: "Timed multiple-choice quiz runner",
	}

	serve := serveCmd()
	root.AddCommand(serve, quizzesCmd(), historyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quizrunner --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStorageFlags(f *pflag.FlagSet) {
	f.String("storage", "sqlite", "Storage backend (sqlite, file, memory, redis)")
	f.String("db", "quizrunner.db", "SQLite database path")
	f.String("data-dir", "data", "Directory for the file backend")
	f.String("redis-addr", "localhost:6379", "Redis address")
	f.Int("redis-db", 0, "Redis database number")
	f.String("redis-prefix", "quizrunner:", "Prefix for Redis keys")
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP quiz server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addStorageFlags(f)
	f.String("assets", "assets", "Directory with quiz CSV files and images, served under /assets/")
	f.String("scale-file", "", "JSON file mapping raw to scaled scores (default: built-in table)")
	f.StringP("lang", "l", "uk", "UI language (uk, en)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /uk)")
	f.String("theme", "light", "Theme used until one is chosen (light, dark)")
	f.Int("nav-size", 25, "Questions per navigation block")
	f.Bool("secure-cookies", false, "Set Secure flag on the CSRF cookie")
	f.Bool("watch", true, "Finish expired quizzes in the background")
	addLogFlags(f)
	return cmd
}

func quizzesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quizzes",
		Short: "List the configured quiz catalog",
		RunE:  runQuizzes,
	}
	addLogFlags(cmd.Flags())
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export finished attempts as JSON",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	addStorageFlags(f)
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizrunner")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizrunner")
	v.AddConfigPath("/etc/quizrunner")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func storageOptions(v *viper.Viper) store.Options {
	return store.Options{
		Kind:        strings.ToLower(v.GetString("storage")),
		DBPath:      v.GetString("db"),
		DataDir:     v.GetString("data-dir"),
		RedisAddr:   v.GetString("redis-addr"),
		RedisDB:     v.GetInt("redis-db"),
		RedisPrefix: v.GetString("redis-prefix"),
	}
}

// loadCatalog reads the quizzes key of the config file, falling back to the
// built-in catalog.
func loadCatalog(v *viper.Viper) (*catalog.Catalog, error) {
	defs := catalog.Defaults
	if v.IsSet("quizzes") {
		var configured []model.QuizDefinition
		if err := v.UnmarshalKey("quizzes", &configured); err != nil {
			return nil, fmt.Errorf("parse quizzes: %w", err)
		}
		defs = configured
	}
	return catalog.New(defs)
}

func loadScale(path string) (scale.Table, error) {
	if path == "" {
		return scale.Default(), nil
	}
	return scale.LoadFile(path)
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := store.Open(ctx, storageOptions(v))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()

	table, err := loadScale(v.GetString("scale-file"))
	if err != nil {
		return fmt.Errorf("load scale: %w", err)
	}

	sessions, err := session.New(ctx, kv, table)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	cat, err := loadCatalog(v)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	basePath := normalizeBasePath(v.GetString("base-path"))
	cfg := model.Config{
		BasePath:       basePath,
		DefaultTheme:   v.GetString("theme"),
		NavigationSize: v.GetInt("nav-size"),
		SecureCookies:  v.GetBool("secure-cookies"),
	}

	assets := os.DirFS(v.GetString("assets"))
	loader := questions.NewLoader(assets, &http.Client{Timeout: 30 * time.Second})

	h, err := handler.New(sessions, cat, loader, assets, kv, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	if v.GetBool("watch") {
		go timer.NewWatcher(sessions).Run(ctx)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"storage", storageOptions(v).Kind,
		"lang", lang,
		"quizzes", len(cat.All()),
		"scale_entries", table.Len(),
		"base_path", basePath,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server stopped")
	return nil
}

func runQuizzes(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	cat, err := loadCatalog(v)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	return writeCatalog(cmd.OutOrStdout(), cat)
}

func writeCatalog(w io.Writer, cat *catalog.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tQUESTIONS\tIMAGES")
	for _, q := range cat.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", q.Slug, q.Name, q.CSVPath, q.ImageBasePath)
	}
	return tw.Flush()
}

func runHistory(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts := storageOptions(v)
	kv, err := store.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()

	history, err := session.LoadHistory(ctx, kv)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	export := buildExport(history, opts.Kind, time.Now())
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func buildExport(history []model.HistoryEntry, storage string, now time.Time) model.HistoryExport {
	if storage == "" {
		storage = "sqlite"
	}
	results := make([]model.AttemptExport, 0, len(history))
	for _, e := range history {
		results = append(results, model.NewAttemptExport(e))
	}
	return model.HistoryExport{
		ExportedAt: now.UTC(),
		Storage:    storage,
		Attempts:   len(results),
		Results:    results,
	}
}
