package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mcules/predict-server/internal/activity"
	"github.com/mcules/predict-server/internal/api"
	"github.com/mcules/predict-server/internal/auth"
	"github.com/mcules/predict-server/internal/httpx"
	"github.com/mcules/predict-server/internal/metrics"
	"github.com/mcules/predict-server/internal/model"
	"github.com/mcules/predict-server/internal/pipeline"
	"github.com/mcules/predict-server/internal/results"
	"github.com/mcules/predict-server/internal/schema"
	"github.com/mcules/predict-server/internal/store"
	"github.com/mcules/predict-server/internal/web"
)

// Comments in this file are intentionally in English.

func main() {
	// Record store (accounts, sessions, API keys, result pointers).
	dataStore, err := store.Open(envOr("DATA_DB_PATH", "predict.db"))
	if err != nil {
		log.Fatalf("failed to open data store: %v", err)
	}
	defer dataStore.Close()

	// Model artifacts. A load failure degrades the service to
	// "predictions unavailable" instead of killing the process: the
	// account pages and health endpoint keep working.
	var (
		predictor model.Predictor
		registry  *schema.Registry
	)
	m, err := model.Load(envOr("MODEL_PATH", "model.json"))
	if err != nil {
		log.Printf("model not loaded: %v", err)
	} else {
		registry, err = schema.Load(
			envOr("TARGET_COLS_PATH", "target_cols.json"),
			envOr("FEATURE_COLS_PATH", "feature_cols.json"),
			m.FeatureCount(),
		)
		if err != nil {
			log.Printf("model not loaded: %v", err)
		} else {
			predictor = m
			if names, ok := registry.Features(); ok {
				log.Printf("model loaded: %d features (named), %d targets", len(names), len(registry.Targets()))
			} else if n, ok := registry.FeatureCount(); ok {
				log.Printf("model loaded: %d features (count only), %d targets", n, len(registry.Targets()))
			} else {
				log.Printf("model loaded: unknown feature schema, %d targets", len(registry.Targets()))
			}
		}
	}

	// Result and upload directories.
	fileStore, err := results.NewFileStore(envOr("RESULTS_DIR", "results"))
	if err != nil {
		log.Fatalf("results dir: %v", err)
	}
	uploadDir := envOr("UPLOAD_DIR", "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		log.Fatalf("upload dir: %v", err)
	}

	authenticator := auth.NewAuthenticator(dataStore)
	activityLog := activity.New(envOrInt("ACTIVITY_LOG_SIZE", 300))
	latency := metrics.NewLatencyTracker(0.2)
	runner := pipeline.NewRunner(registry, predictor, fileStore, dataStore)

	mux := http.NewServeMux()

	// HTML surface.
	webHandler, err := web.NewHandler(
		authenticator, runner, fileStore, dataStore, activityLog, latency,
		registry, uploadDir, envOr("TEMPLATE_DIR", "internal/web/templates"),
	)
	if err != nil {
		log.Fatalf("web init: %v", err)
	}
	webHandler.Register(mux)

	// API endpoints, wrapped with Bearer auth.
	apiHandler := &api.Handler{
		Runner:   runner,
		Files:    fileStore,
		Pointers: dataStore,
		Activity: activityLog,
		Latency:  latency,
	}
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/predict", apiHandler.HandlePredict)
	apiMux.HandleFunc("/api/result", apiHandler.HandleResult)
	mux.Handle("/api/", authenticator.Middleware(apiMux))

	handler := httpx.AccessLog{}.Wrap(httpx.CORS{AllowOrigin: "*"}.Wrap(mux))

	srv := &http.Server{
		Addr:              envOr("LISTEN_ADDR", ":8080"),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("HTTP listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("http serve: %v", err)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envOrInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
