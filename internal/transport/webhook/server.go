// Package webhook serves the inbound SMS webhook and health endpoints.
package webhook

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"jokeline/internal/observability/pprof"
	"jokeline/internal/subscription"
	logx "jokeline/pkg/logx"
)

// maxFormBytes bounds the webhook form; provider payloads are a few KB.
const maxFormBytes = 64 << 10

type Handler interface {
	Handle(ctx context.Context, from, text string) (subscription.Reply, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	WebhookPath  string
	PprofEnabled bool
	PprofPrefix  string
	PprofToken   string
}

// NewRouter builds the HTTP surface.
func NewRouter(h Handler, ready Pinger, opts Options, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	path := strings.TrimSpace(opts.WebhookPath)
	if path == "" {
		path = "/sms"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if ready != nil {
			if err := ready.Ping(ctx); err != nil {
				log.Warn("readiness check failed", logx.Err(err))
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Post(path, inbound(h, log))

	if opts.PprofEnabled {
		pprof.Mount(r, opts.PprofPrefix, opts.PprofToken)
	}
	return r
}

func inbound(h Handler, log logx.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form", http.StatusBadRequest)
			return
		}
		from := strings.TrimSpace(r.PostForm.Get("From"))
		body := r.PostForm.Get("Body")

		reply, err := h.Handle(r.Context(), from, body)
		if err != nil {
			log.Error("inbound message failed", logx.String("req_id", middleware.GetReqID(r.Context())), logx.Err(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		out, err := renderTwiML(reply.Text, reply.OK)
		if err != nil {
			log.Error("render reply failed", logx.Err(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
	}
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server owns the listener. Serve blocks until ctx is done or the listener fails.
type Server struct {
	srv *http.Server
	log logx.Logger
	ln  net.Listener
}

func NewServer(cfg ServerConfig, handler http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}
}

// Listen binds the address so bind errors surface before the process reports ready.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(s.ln) }()
	s.log.Info("http server listening", logx.String("addr", s.Addr()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown drains in-flight requests until ctx is done, then closes.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	if err != nil {
		_ = s.srv.Close()
	}
	return err
}
