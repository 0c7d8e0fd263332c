// Package server exposes the graph over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/graph"
	"pipelined.dev/audiograph/kind"
	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/param"
)

// DefaultSpectrumInterval is the period of spectrum frames.
const DefaultSpectrumInterval = 16 * time.Millisecond

// Readback provides data rendered by analysing and recording nodes.
type Readback interface {
	FrequencyBinCount(id string) uint
	SampleSpectrum(id string, buf []byte)
	Recording(id string) ([]byte, error)
}

// Server handles graph requests.
type Server struct {
	graph    *graph.Graph
	readback Readback
	registry *kind.Registry
	logger   logrus.FieldLogger
	interval time.Duration
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithSpectrumInterval sets the period of spectrum frames.
func WithSpectrumInterval(d time.Duration) Option {
	return func(s *Server) {
		s.interval = d
	}
}

// WithMetrics exposes metrics of the gatherer at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

type (
	kindResponse struct {
		Kind     kind.Kind       `json:"kind"`
		Role     string          `json:"role"`
		Async    bool            `json:"async"`
		Fields   []fieldResponse `json:"fields"`
		Defaults param.Bag       `json:"defaults"`
	}

	fieldResponse struct {
		Name      string `json:"name"`
		Semantics string `json:"semantics"`
	}

	graphResponse struct {
		Nodes   []graph.Node `json:"nodes"`
		Edges   []graph.Edge `json:"edges"`
		Running bool         `json:"running"`
	}

	nodeRequest struct {
		Kind     kind.Kind      `json:"kind"`
		Position graph.Position `json:"position"`
	}

	edgeRequest struct {
		Source string `json:"source"`
		Target string `json:"target"`
	}

	toggleResponse struct {
		Running bool `json:"running"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

// NewHandler returns the router of the server.
func NewHandler(g *graph.Graph, rb Readback, registry *kind.Registry, options ...Option) http.Handler {
	s := &Server{
		graph:    g,
		readback: rb,
		registry: registry,
		logger:   log.Discard(),
		interval: DefaultSpectrumInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
	for _, option := range options {
		option(s)
	}

	r := chi.NewRouter()
	r.Get("/kinds", s.kinds)
	r.Get("/graph", s.snapshot)
	r.Post("/toggle", s.toggle)
	r.Route("/nodes", func(r chi.Router) {
		r.Post("/", s.addNode)
		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", s.updateNode)
			r.Delete("/", s.removeNode)
			r.Put("/position", s.moveNode)
			r.Get("/spectrum", s.spectrum)
			r.Get("/recording", s.recording)
		})
	})
	r.Route("/edges", func(r chi.Router) {
		r.Post("/", s.addEdge)
		r.Delete("/{id}", s.removeEdge)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) kinds(w http.ResponseWriter, r *http.Request) {
	var resp []kindResponse
	for _, k := range s.registry.Kinds() {
		d := s.registry.MustLookup(k)
		kr := kindResponse{
			Kind:     d.Kind,
			Role:     d.Role.String(),
			Async:    d.Async,
			Fields:   []fieldResponse{},
			Defaults: d.Defaults(),
		}
		for _, f := range d.Fields() {
			kr.Fields = append(kr.Fields, fieldResponse{
				Name:      f.Name,
				Semantics: f.Semantics.String(),
			})
		}
		resp = append(resp, kr)
	}
	s.respond(w, http.StatusOK, resp)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, graphResponse{
		Nodes:   s.graph.Nodes(),
		Edges:   s.graph.Edges(),
		Running: s.graph.IsRunning(),
	})
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	running, err := s.graph.Toggle(r.Context())
	if err != nil {
		s.fail(w, http.StatusServiceUnavailable, err)
		return
	}
	s.respond(w, http.StatusOK, toggleResponse{Running: running})
}

func (s *Server) addNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	n, err := s.graph.AddNode(req.Kind, req.Position)
	if err != nil {
		s.fail(w, status(err), err)
		return
	}
	s.respond(w, http.StatusCreated, n)
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	var partial param.Bag
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if err := s.graph.UpdateNode(chi.URLParam(r, "id"), partial); err != nil {
		s.fail(w, status(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveNode(w http.ResponseWriter, r *http.Request) {
	var pos graph.Position
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	if err := s.graph.MoveNode(chi.URLParam(r, "id"), pos); err != nil {
		s.fail(w, status(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeNode(w http.ResponseWriter, r *http.Request) {
	if err := s.graph.RemoveNode(chi.URLParam(r, "id")); err != nil {
		s.fail(w, status(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addEdge(w http.ResponseWriter, r *http.Request) {
	var req edgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	e, err := s.graph.AddEdge(req.Source, req.Target)
	if err != nil {
		s.fail(w, status(err), err)
		return
	}
	s.respond(w, http.StatusCreated, e)
}

func (s *Server) removeEdge(w http.ResponseWriter, r *http.Request) {
	if err := s.graph.RemoveEdge(chi.URLParam(r, "id")); err != nil {
		s.fail(w, status(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) recording(w http.ResponseWriter, r *http.Request) {
	wav, err := s.readback.Recording(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, status(err), err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	if _, err := w.Write(wav); err != nil {
		s.logger.WithError(err).Warn("write recording")
	}
}

// status maps errors to response codes.
func status(err error) int {
	switch {
	case errors.Is(err, graph.ErrNodeNotFound),
		errors.Is(err, graph.ErrEdgeNotFound),
		errors.Is(err, audiograph.ErrNotRecorder):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrUndeletable),
		errors.Is(err, graph.ErrSingleOutput):
		return http.StatusConflict
	case errors.Is(err, graph.ErrInvalidEdge),
		errors.Is(err, kind.ErrUnknownKind):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("encode response")
	}
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	s.logger.WithError(err).WithField("status", code).Debug("request failed")
	s.respond(w, code, errorResponse{Error: err.Error()})
}
