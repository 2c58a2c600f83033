// Package httpdev publishes sensormux devices over HTTP.
//
// Every registered device is served at /{name}:
//
//	POST /{name}       body is written to the device (selects a source)
//	GET  /{name}?n=64  reads up to n bytes; 204 No Content is end-of-stream
//	GET  /             lists the registered device names
//
// Errors map to 409 (no source selected), 503 (source unavailable) and
// 400 (bad buffer). Read sizes above MaxReadSize are shortened and larger
// bodies get 413.
package httpdev

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	sensormux "github.com/luhtfiimanal/go-linux-sensormux"
)

const (
	// DefaultReadSize is used when a GET carries no n parameter.
	DefaultReadSize = sensormux.DefaultCapacity

	// DefaultMaxReadSize bounds the n parameter of a GET and the body of a POST.
	DefaultMaxReadSize = 4096
)

type node struct {
	name  string
	read  sensormux.Op
	write sensormux.Op
}

func (n *node) Name() string { return n.name }

// Registrar is a sensormux.Registrar serving devices over HTTP.
type Registrar struct {
	// MaxReadSize caps read sizes and write bodies. Larger reads are
	// shortened, larger bodies are rejected with 413.
	MaxReadSize int

	mu     sync.RWMutex
	nodes  map[string]*node
	router chi.Router
	logger *zap.SugaredLogger
}

var _ sensormux.Registrar = (*Registrar)(nil)

// New returns an empty Registrar. A nil logger discards diagnostics.
func New(logger *zap.SugaredLogger) *Registrar {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Registrar{
		MaxReadSize: DefaultMaxReadSize,
		nodes:       make(map[string]*node),
		logger:      logger,
	}
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/", r.list)
	router.Get("/{name}", r.read)
	router.Post("/{name}", r.write)
	r.router = router
	return r
}

// Handler returns the HTTP handler serving the registered devices.
func (r *Registrar) Handler() http.Handler {
	return r.router
}

// Register publishes a device under name.
func (r *Registrar) Register(name string, read, write sensormux.Op) (sensormux.Handle, error) {
	if name == "" || read == nil || write == nil {
		return nil, errors.New("httpdev: incomplete registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[name]; ok {
		return nil, fmt.Errorf("httpdev: %s already registered", name)
	}
	n := &node{name: name, read: read, write: write}
	r.nodes[name] = n
	r.logger.Infow("device registered", "name", name)
	return n, nil
}

// Unregister removes a device; later requests for it get 404.
func (r *Registrar) Unregister(h sensormux.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[h.Name()]
	if !ok || n != h {
		return fmt.Errorf("httpdev: %s not registered", h.Name())
	}
	delete(r.nodes, h.Name())
	r.logger.Infow("device unregistered", "name", h.Name())
	return nil
}

func (r *Registrar) lookup(req *http.Request) (*node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[chi.URLParam(req, "name")]
	return n, ok
}

func (r *Registrar) list(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(names); err != nil {
		r.logger.Warnw("encoding device list", "error", err)
	}
}

func (r *Registrar) read(w http.ResponseWriter, req *http.Request) {
	n, ok := r.lookup(req)
	if !ok {
		http.NotFound(w, req)
		return
	}
	size := DefaultReadSize
	if s := req.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			http.Error(w, fmt.Sprintf("invalid read size %q", s), http.StatusBadRequest)
			return
		}
		size = min(v, r.MaxReadSize)
	}

	buf := make([]byte, size)
	cnt, err := n.read(buf)
	if err != nil {
		r.fail(w, n.name, err)
		return
	}
	if cnt == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf[:cnt]); err != nil {
		r.logger.Warnw("writing device value", "name", n.name, "error", err)
	}
}

type writeReply struct {
	Written int `json:"written"`
}

func (r *Registrar) write(w http.ResponseWriter, req *http.Request) {
	n, ok := r.lookup(req)
	if !ok {
		http.NotFound(w, req)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, int64(r.MaxReadSize)))
	if err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), code)
		return
	}
	cnt, err := n.write(body)
	if err != nil {
		r.fail(w, n.name, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(writeReply{Written: cnt}); err != nil {
		r.logger.Warnw("encoding write reply", "error", err)
	}
}

func (r *Registrar) fail(w http.ResponseWriter, name string, err error) {
	code := StatusCode(err)
	r.logger.Debugw("device request failed", "name", name, "status", code, "error", err)
	http.Error(w, err.Error(), code)
}

// StatusCode maps a device error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, sensormux.ErrNotConfigured):
		return http.StatusConflict
	case errors.Is(err, sensormux.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, sensormux.ErrBoundaryFault):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
