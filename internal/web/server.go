// Package web serves the reader's status page over HTTP.
//
// Routes:
//
//	/, /index.html  status page
//	/index.json     status snapshot as JSON
//	/healthz        decoder readiness, 503 until the decoder has started
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/sweeney/wiegand-reader/internal/status"
	"github.com/sweeney/wiegand-reader/internal/wiegand"
)

// Server exposes a status.Tracker over HTTP. Only GET and HEAD are served.
type Server struct {
	srv     *http.Server
	tracker *status.Tracker
}

// New creates a Server for tracker that will listen on addr.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	routes := map[string]http.HandlerFunc{
		"/":           s.page,
		"/index.html": s.page,
		"/index.json": s.snapshot,
		"/healthz":    s.health,
	}
	for path, h := range routes {
		mux.Handle(path, readOnly(h))
	}

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler returns the request router, for mounting under httptest.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

// Shutdown stops accepting connections and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

func readOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}

func (s *Server) page(w http.ResponseWriter, r *http.Request) {
	// "/" also matches every unrouted path.
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	st := s.tracker.Snapshot().Decoder
	code := http.StatusOK
	if st == wiegand.Uninitialized || st == wiegand.Error {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	w.Write([]byte(status.DecoderLabel(st) + "\n"))
}
