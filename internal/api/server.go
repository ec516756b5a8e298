package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/smolchat/internal/inference"
	"github.com/samcharles93/smolchat/internal/logger"
	"github.com/samcharles93/smolchat/internal/metrics"
)

var errStopped = errors.New("stopped by request")

// Server exposes one session over HTTP. Session calls are serialized by mu;
// a request that finds the session busy fails with 409 instead of queueing.
type Server struct {
	mu      sync.Mutex
	session *inference.Session
	info    inference.Info
	log     logger.Logger
	clock   func() time.Time

	cancelMu sync.Mutex
	cancel   context.CancelCauseFunc

	snapMu sync.RWMutex
	snap   snapshot
}

// snapshot lets read-only endpoints answer while a completion holds mu.
type snapshot struct {
	metrics   inference.Metrics
	state     inference.State
	ctxUsed   int
	history   []inference.Message
	stopWords []string
}

func NewServer(session *inference.Session, log logger.Logger) *Server {
	s := &Server{
		session: session,
		info:    session.Info(),
		log:     logger.OrDiscard(log),
		clock:   time.Now,
	}
	s.refresh()
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/messages", s.handleAddMessage)
	e.PUT("/v1/stop-words", s.handleSetStopWords)
	e.POST("/v1/completions", s.handleCompletion)
	e.POST("/v1/completions/stop", s.handleStop)
	e.GET("/v1/metrics/session", s.handleSessionMetrics)
	e.GET("/v1/history", s.handleHistory)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handlePrometheus)
}

func (s *Server) tryLock() error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	return nil
}

// refresh copies session state into the snapshot. Callers hold mu.
func (s *Server) refresh() {
	snap := snapshot{
		metrics:   s.session.Metrics(),
		state:     s.session.State(),
		ctxUsed:   s.session.ContextSizeUsed(),
		history:   s.session.Messages(),
		stopWords: s.session.StopWords(),
	}
	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
	metrics.ObserveContext(snap.ctxUsed, s.session.ContextSize())
}

func (s *Server) snapshot() snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

func (s *Server) handleAddMessage(c *echo.Context) error {
	req, err := decodeJSON[AddMessageRequest](c.Request().Body)
	if err != nil {
		return writeError(c, err)
	}
	role, err := inference.ParseRole(req.Role)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.tryLock(); err != nil {
		return writeError(c, err)
	}
	defer s.mu.Unlock()

	if err := s.session.AddChatMessage(req.Content, role); err != nil {
		return writeError(c, err)
	}
	s.refresh()
	return c.JSON(http.StatusOK, AddMessageResponse{Messages: len(s.snapshot().history)})
}

func (s *Server) handleSetStopWords(c *echo.Context) error {
	req, err := decodeJSON[StopWordsRequest](c.Request().Body)
	if err != nil {
		return writeError(c, err)
	}
	if err := s.tryLock(); err != nil {
		return writeError(c, err)
	}
	defer s.mu.Unlock()

	s.session.SetStopWords(req.StopWords)
	s.refresh()
	return c.JSON(http.StatusOK, StopWordsResponse{StopWords: s.snapshot().stopWords})
}

func (s *Server) handleCompletion(c *echo.Context) error {
	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeError(c, err)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return writeBadRequest(c, "prompt is required")
	}
	if err := s.tryLock(); err != nil {
		return writeError(c, err)
	}
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancelCause(c.Request().Context())
	defer cancel(nil)
	s.setCancel(cancel)
	defer s.setCancel(nil)

	id, created := newCompletionID(), s.clock().Unix()
	log := s.log.With("completion_id", id)
	log.Debug("completion started", "prompt_bytes", len(req.Prompt), "stream", req.Stream || streamParam(c))

	if req.Stream || streamParam(c) {
		w, err := NewSSEStreamWriter(c, id, created)
		if err != nil {
			return writeError(c, err)
		}
		var partial strings.Builder
		res, genErr := s.session.Generate(ctx, req.Prompt, func(text string) {
			partial.WriteString(text)
			if err := w.EmitToken(text); err != nil {
				log.Debug("stream write failed", "error", err)
			}
		})
		res, reason, err := s.finishCompletion(ctx, res, partial.String(), genErr)
		if err != nil {
			return w.Failed(err)
		}
		return w.Complete(res, reason)
	}

	var partial strings.Builder
	res, genErr := s.session.Generate(ctx, req.Prompt, func(text string) { partial.WriteString(text) })
	res, reason, err := s.finishCompletion(ctx, res, partial.String(), genErr)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, CompletionResponse{
		ID:           id,
		Object:       "completion",
		Created:      created,
		Text:         res.Text,
		FinishReason: reason,
		Metrics:      res.Stats,
	})
}

// finishCompletion turns a stop request into a regular result carrying the
// partial text and records metrics.
func (s *Server) finishCompletion(ctx context.Context, res *inference.Result, partial string, err error) (*inference.Result, string, error) {
	s.refresh()
	if err != nil {
		if errors.Is(context.Cause(ctx), errStopped) {
			m := s.session.Metrics()
			metrics.ObserveTurn(m)
			return &inference.Result{Text: partial, Stats: m}, "stopped", nil
		}
		metrics.ObserveError(err)
		s.log.Warn("completion failed", "error", err)
		return nil, "", err
	}
	metrics.ObserveTurn(res.Stats)
	return res, "stop", nil
}

func (s *Server) setCancel(cancel context.CancelCauseFunc) {
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
}

func (s *Server) handleStop(c *echo.Context) error {
	s.cancelMu.Lock()
	cancel := s.cancel
	s.cancelMu.Unlock()
	if cancel == nil {
		return writeError(c, &inference.Error{Op: "stop completion", Kind: inference.ErrMisuse, Err: errors.New("no completion in progress")})
	}
	cancel(errStopped)
	return c.JSON(http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) handleSessionMetrics(c *echo.Context) error {
	busy := true
	if s.mu.TryLock() {
		busy = false
		s.refresh()
		s.mu.Unlock()
	}
	snap := s.snapshot()
	return c.JSON(http.StatusOK, SessionMetricsResponse{
		Metrics:        snap.metrics,
		State:          snap.state.String(),
		Busy:           busy,
		ContextUsedNow: snap.ctxUsed,
		GenerationSecs: snap.metrics.GenerationTime.Seconds(),
	})
}

func (s *Server) handleHistory(c *echo.Context) error {
	return c.JSON(http.StatusOK, HistoryResponse{Messages: s.snapshot().history})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Model: s.info})
}

func (s *Server) handlePrometheus(c *echo.Context) error {
	metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
