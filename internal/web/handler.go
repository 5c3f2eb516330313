// Package web serves the HTML surface: account pages, the upload form and
// the result download.
package web

import (
	"html/template"
	"net/http"
	"path/filepath"

	"github.com/mcules/predict-server/internal/activity"
	"github.com/mcules/predict-server/internal/auth"
	"github.com/mcules/predict-server/internal/metrics"
	"github.com/mcules/predict-server/internal/pipeline"
	"github.com/mcules/predict-server/internal/results"
	"github.com/mcules/predict-server/internal/schema"
)

// Comments in this file are intentionally in English.

type Handler struct {
	Auth     *auth.Authenticator
	Runner   *pipeline.Runner
	Files    *results.FileStore
	Pointers results.Pointers
	Activity *activity.Log
	Latency  *metrics.LatencyTracker
	Registry *schema.Registry

	// UploadDir receives a copy of each raw upload for traceability.
	UploadDir string

	templates map[string]*template.Template
}

var pages = []string{"index.html", "signup.html", "login.html", "dashboard.html", "predict.html"}

func NewHandler(a *auth.Authenticator, runner *pipeline.Runner, files *results.FileStore, pointers results.Pointers, act *activity.Log, lat *metrics.LatencyTracker, reg *schema.Registry, uploadDir, templateDir string) (*Handler, error) {
	// Each page is parsed together with the layout so pages can override
	// the layout's content block independently.
	templates := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		tpl, err := template.ParseFiles(
			filepath.Join(templateDir, "layout.html"),
			filepath.Join(templateDir, page),
		)
		if err != nil {
			return nil, err
		}
		templates[page] = tpl
	}

	return &Handler{
		Auth:      a,
		Runner:    runner,
		Files:     files,
		Pointers:  pointers,
		Activity:  act,
		Latency:   lat,
		Registry:  reg,
		UploadDir: uploadDir,
		templates: templates,
	}, nil
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.index)
	mux.HandleFunc("/signup", h.signup)
	mux.HandleFunc("/login", h.login)
	mux.HandleFunc("/logout", h.logout)
	mux.HandleFunc("/dashboard", h.requireSession(h.dashboard))
	mux.HandleFunc("/apikeys", h.requireSession(h.createAPIKey))
	mux.HandleFunc("/predict", h.withSession(h.predict))
	mux.HandleFunc("/download", h.requireSession(h.download))

	// Simple health endpoint for the server itself
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}

type modelInfo struct {
	ExpectedFeatures int
	HasFeatureNames  bool
	Targets          int
}

type viewModel struct {
	Title    string
	Username string

	ModelInfo *modelInfo

	// Predict page.
	Result *pipeline.Summary
	Error  string

	// Dashboard page.
	Activity []activity.Event
	Latency  map[string]metrics.EndpointLatency
	APIKey   string
}

func (h *Handler) newViewModel(r *http.Request, title string) viewModel {
	vm := viewModel{Title: title}
	if u, ok := auth.UserFromContext(r.Context()); ok {
		vm.Username = u.Username
	}
	return vm
}

func (h *Handler) render(w http.ResponseWriter, page string, vm viewModel) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = h.templates[page].ExecuteTemplate(w, "layout.html", vm)
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.render(w, "index.html", h.newViewModel(r, "Home"))
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	vm := h.newViewModel(r, "Dashboard")
	if h.Registry != nil {
		info := modelInfo{Targets: len(h.Registry.Targets())}
		if n, ok := h.Registry.FeatureCount(); ok {
			info.ExpectedFeatures = n
		}
		_, info.HasFeatureNames = h.Registry.Features()
		vm.ModelInfo = &info
	}
	vm.Activity = h.Activity.List()
	vm.Latency = h.Latency.Snapshot()
	h.render(w, "dashboard.html", vm)
}

func (h *Handler) createAPIKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	u, _ := auth.UserFromContext(r.Context())

	key, _, err := h.Auth.GenerateKey(r.Context(), u.Username)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	vm := h.newViewModel(r, "Dashboard")
	vm.APIKey = key
	vm.Activity = h.Activity.List()
	vm.Latency = h.Latency.Snapshot()
	h.render(w, "dashboard.html", vm)
}
