package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goldfish-inc/discoeval"
	"github.com/goldfish-inc/discoeval/sink"
)

const defaultExampleLimit = 100

// Server exposes task descriptors and split examples over HTTP.
type Server struct {
	src     discoeval.Source
	opts    []discoeval.Option
	logger  *zap.Logger
	metrics *Metrics
	reg     prometheus.Gatherer
}

// NewMux exposes the service handlers for testing.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.instrument("/health", s.handleHealth))
	mux.HandleFunc("/tasks", s.instrument("/tasks", s.handleTasks))
	mux.HandleFunc("/tasks/", s.instrument("/tasks/", s.handleTask))
	mux.HandleFunc("/examples", s.instrument("/examples", s.handleExamples))
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(path string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.observeRequest(path, rec.status)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"version": discoeval.Version,
		"tasks":   len(discoeval.Names()),
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, describeTasks(discoeval.Tasks()))
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	task, err := discoeval.Lookup(strings.TrimPrefix(r.URL.Path, "/tasks/"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describeTask(task))
}

// handleExamples streams one split as JSON lines:
//
//	GET /examples?task=DCwiki&split=validation&limit=10
//
// limit=0 streams the whole split.
func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	task, err := discoeval.Lookup(q.Get("task"))
	if err != nil {
		s.fail(w, err)
		return
	}
	split := discoeval.Train
	if v := q.Get("split"); v != "" {
		if split, err = discoeval.ParseSplit(v); err != nil {
			s.fail(w, err)
			return
		}
	}
	limit := defaultExampleLimit
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}

	rd, err := discoeval.Open(r.Context(), s.src, task, split, s.opts...)
	if err != nil {
		s.metrics.observeOpenError(task.Name, split, err)
		s.fail(w, err)
		return
	}
	defer rd.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	loader := instrumented{next: sink.NewJSONL(w, limit), metrics: s.metrics}
	n, err := loader.Load(r.Context(), rd, split)
	if err != nil {
		if n == 0 {
			// Nothing has been written yet, so the status can still change.
			w.Header().Del("Content-Type")
			s.fail(w, err)
			return
		}
		s.logger.Warn("example stream truncated",
			zap.String("task", task.Name),
			zap.String("split", string(split)),
			zap.Int("written", n),
			zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch {
	case errorKind(err) == "canceled":
		s.logger.Debug("request canceled", zap.Error(err))
	case status >= http.StatusInternalServerError:
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  errorKind(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newServeCmd(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve task descriptors and examples over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = a.cfg.Port
			}
			src, err := a.source(cmd.Context())
			if err != nil {
				return err
			}
			srv := &Server{
				src:     src,
				opts:    a.readerOptions(),
				logger:  a.logger,
				metrics: a.metrics,
				reg:     a.reg,
			}
			return runServer(a.logger, ":"+port, srv.NewMux())
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or 8080)")
	return cmd
}

func runServer(logger *zap.Logger, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Whole splits can take a while to stream.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("discoeval server starting", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
