package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/reelforge/internal/logging"
	"github.com/example/reelforge/internal/models"
	"github.com/example/reelforge/internal/orchestrator"
	"github.com/example/reelforge/internal/projects"
	"github.com/example/reelforge/internal/tools"
)

const maxBodyBytes = 32 << 20

// Server exposes the scheduler, the project store and the event stream
// over HTTP.
type Server struct {
	sched    *orchestrator.Scheduler
	store    *projects.Store
	defaults orchestrator.Defaults
	limits   tools.ExtractLimits
	gatherer prometheus.Gatherer
	log      logging.Logger
	now      func() time.Time

	// PingInterval is how often idle stream connections get a heartbeat.
	PingInterval time.Duration
	upgrader     websocket.Upgrader
}

type Options struct {
	Defaults orchestrator.Defaults
	Limits   tools.ExtractLimits
	Gatherer prometheus.Gatherer
	Log      logging.Logger
}

func New(sched *orchestrator.Scheduler, store *projects.Store, opts Options) *Server {
	g := opts.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Server{
		sched:        sched,
		store:        store,
		defaults:     opts.Defaults,
		limits:       opts.Limits,
		gatherer:     g,
		log:          logging.OrNop(opts.Log).With("component", "api"),
		now:          time.Now,
		PingInterval: 25 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routes wrapped in the CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return cors(mux)
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("POST /api/tasks", s.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	mux.HandleFunc("POST /api/tasks/{id}/{action}", s.controlTask)
	mux.HandleFunc("GET /api/tasks/{id}/messages", s.listMessages)
	mux.HandleFunc("POST /api/tasks/{id}/messages", s.postMessage)

	mux.HandleFunc("GET /api/projects", s.listProjects)
	mux.HandleFunc("POST /api/projects/{name}/continue", s.continueProject)

	mux.HandleFunc("GET /api/events", s.serveSSE)
	mux.HandleFunc("GET /api/ws", s.serveWS)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.sched.List())
}

type createRequest struct {
	orchestrator.Submission
	Document *tools.Document `json:"document,omitempty"`
	// DocumentBase64 is shorthand for document.data_base64.
	DocumentBase64 string `json:"document_base64,omitempty"`
	Filename       string `json:"filename,omitempty"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	doc := req.Document
	if doc == nil && req.DocumentBase64 != "" {
		doc = &tools.Document{DataBase64: req.DocumentBase64, Filename: req.Filename}
	}
	if doc != nil && strings.TrimSpace(req.NovelText) == "" {
		text, err := tools.ExtractText(r.Context(), *doc, s.limits)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, tools.ErrUnsupportedDocument) {
				status = http.StatusUnsupportedMediaType
			}
			respondError(w, status, err)
			return
		}
		req.NovelText = text
	}
	s.submit(w, req.Submission)
}

func (s *Server) submit(w http.ResponseWriter, sub orchestrator.Submission) {
	task, err := orchestrator.NewTask(sub, s.defaults, s.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.sched.Submit(task); err != nil {
		respondError(w, http.StatusServiceUnavailable, err)
		return
	}
	respondJSON(w, http.StatusAccepted, task.Snapshot())
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.sched.Get(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (s *Server) controlTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var ok bool
	switch action := r.PathValue("action"); action {
	case "promote":
		ok = s.sched.Promote(id)
	case "remove":
		ok = s.sched.Remove(id)
	case "pause":
		ok = s.sched.Pause(id)
	case "resume":
		ok = s.sched.Resume(id)
	default:
		http.NotFound(w, r)
		return
	}
	if !ok {
		respondJSON(w, http.StatusConflict, map[string]any{"ok": false, "task_id": id})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "task_id": id})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.sched.Get(id); err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	msgs := s.sched.Messages().All(id)
	if msgs == nil {
		msgs = []models.UserMessage{}
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, errors.New("message is empty"))
		return
	}
	m, err := s.sched.Post(r.PathValue("id"), req.Message)
	if err != nil {
		respondError(w, http.StatusNotFound, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

type projectSummary struct {
	Name   string           `json:"name"`
	Report *projects.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.Names()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]projectSummary, 0, len(names))
	for _, name := range names {
		ps := projectSummary{Name: name}
		if rep, err := s.store.Inspect(name); err != nil {
			ps.Error = err.Error()
		} else {
			ps.Report = rep
		}
		out = append(out, ps)
	}
	respondJSON(w, http.StatusOK, out)
}

// continueProject queues an agent task that starts by inspecting what the
// project already holds.
func (s *Server) continueProject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := s.store.Inspect(name); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, projects.ErrNotFound) {
			status = http.StatusNotFound
		}
		respondError(w, status, err)
		return
	}
	var body struct {
		Timbre        string   `json:"timbre"`
		QualityTarget *float64 `json:"quality_target"`
		MaxAttempts   int      `json:"max_attempts"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &body); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
	}
	s.submit(w, orchestrator.Submission{
		Mode:          string(models.ModeAgent),
		ProjectName:   name,
		Timbre:        body.Timbre,
		QualityTarget: body.QualityTarget,
		MaxAttempts:   body.MaxAttempts,
		Resume:        true,
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
