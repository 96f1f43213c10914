package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/digitwin/survey/internal/api"
	"github.com/digitwin/survey/internal/catalog"
	"github.com/digitwin/survey/internal/config"
	"github.com/digitwin/survey/internal/db"
	"github.com/digitwin/survey/internal/mailer"
	"github.com/digitwin/survey/internal/middleware"
	"github.com/digitwin/survey/internal/services"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	memoryStore := flag.Bool("memory", false, "use the in-memory store instead of SQLite")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := catalog.Load(); err != nil {
		logger.Error("load question catalog", "error", err)
		os.Exit(1)
	}

	var store api.Store
	if *memoryStore {
		store = api.NewMemoryStore()
		logger.Info("using in-memory store")
	} else {
		sqlStore, err := db.Open(cfg.DatabasePath)
		if err != nil {
			logger.Error("open database", "path", cfg.DatabasePath, "error", err)
			os.Exit(1)
		}
		defer sqlStore.Close()
		store = sqlStore
		logger.Info("using sqlite store", "path", cfg.DatabasePath)
	}

	var m services.Mailer
	if cfg.SMTP.Host != "" {
		smtp, err := mailer.New(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			logger.Error("configure mailer", "error", err)
			os.Exit(1)
		}
		m = smtp
	} else {
		logger.Warn("smtp not configured, result emails are disabled")
	}

	commit := os.Getenv("DIGITWIN_COMMIT")
	buildTime := os.Getenv("DIGITWIN_BUILD_TIME")

	mux := http.NewServeMux()
	api.NewRouter(store, m, cfg.AdminEmail, logger).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":        true,
			"name":      "DigiTwin Survey API",
			"questions": catalog.Total(),
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"commit":     commit,
			"build_time": buildTime,
		})
	})

	// Serve the built frontend when a static dir is configured.
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	handler := middleware.RequestLog(logger)(
		middleware.Recover(logger)(
			middleware.SecureHeaders(
				middleware.CORS(
					middleware.NoStore(mux)))))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
}
