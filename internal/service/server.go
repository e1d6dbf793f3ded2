package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/tyuo/internal/banned"
	"github.com/roach88/tyuo/internal/engine"
	"github.com/roach88/tyuo/internal/ir"
	"github.com/roach88/tyuo/internal/metrics"
	"github.com/roach88/tyuo/internal/model"
	"github.com/roach88/tyuo/internal/tokenize"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Tokenizer      tokenize.Options
	RateLimitRPS   float64
	RateLimitBurst int
	MaxBodyBytes   int64
	Logger         *zap.Logger
	// Metrics, when set, instruments requests and serves GET /metrics.
	Metrics *metrics.Collector
}

// Server serves the HTTP API over an engine.
type Server struct {
	engine *engine.Engine
	opts   Options
	logger *zap.Logger
}

// New returns a Server over eng.
func New(eng *engine.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Server{
		engine: eng,
		opts:   opts,
		logger: opts.Logger.With(zap.String("component", "service")),
	}
}

// Handler returns the routed and wrapped handler. Background work started
// by the middleware stops when ctx is done.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /speak", s.handleSpeak)
	mux.HandleFunc("POST /learn", s.handleLearn)
	mux.HandleFunc("POST /ban", s.handleBan)
	mux.HandleFunc("POST /unban", s.handleUnban)
	mux.HandleFunc("POST /drop", s.handleDrop)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		Metrics(s.opts.Metrics),
		RequestLogger(s.logger),
		CORS(),
		RateLimiter(ctx, s.opts.RateLimitRPS, s.opts.RateLimitBurst),
	)
}

type speakRequest struct {
	ContextID string `json:"context_id"`
	Input     string `json:"input"`
}

// SpeakResponse carries the generated line; Output is null when nothing
// could be generated.
type SpeakResponse struct {
	Output *string `json:"output"`
}

type learnRequest struct {
	ContextID string   `json:"context_id"`
	Input     []string `json:"input"`
}

// LearnResponse reports how much input was learned.
type LearnResponse struct {
	LinesLearned  int `json:"lines_learned"`
	TokensLearned int `json:"tokens_learned"`
}

type banRequest struct {
	ContextID  string   `json:"context_id"`
	Substrings []string `json:"substrings"`
}

// BanResponse lists the entries a ban added.
type BanResponse struct {
	Banned []banned.Entry `json:"banned"`
}

// UnbanResponse lists the texts an unban removed.
type UnbanResponse struct {
	Unbanned []string `json:"unbanned"`
}

type dropRequest struct {
	ContextID string `json:"context_id"`
}

// DropResponse confirms a drop.
type DropResponse struct {
	Dropped string `json:"dropped"`
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	c, ok := s.open(w, r, &req, func() string { return req.ContextID })
	if !ok {
		return
	}

	start := time.Now()
	seed, _ := s.opts.Tokenizer.Tokenize(req.Input)
	text, err := c.Generate(r.Context(), seed)
	switch {
	case errors.Is(err, model.ErrNoOutput):
		writeJSON(w, http.StatusOK, SpeakResponse{})
	case err != nil:
		s.fail(w, r, err)
	default:
		s.logger.Debug("prepared response", zap.String("context", c.ID()), zap.Duration("took", time.Since(start)))
		writeJSON(w, http.StatusOK, SpeakResponse{Output: &text})
	}
}

func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	c, ok := s.open(w, r, &req, func() string { return req.ContextID })
	if !ok {
		return
	}

	start := time.Now()
	var resp LearnResponse
	for _, line := range req.Input {
		tokens, learnable := s.opts.Tokenizer.Tokenize(line)
		n, err := c.Learn(r.Context(), tokens, learnable)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if n > 0 {
			resp.LinesLearned++
			resp.TokensLearned += n
		}
	}
	s.logger.Info("learned input",
		zap.String("context", c.ID()),
		zap.Int("lines", resp.LinesLearned),
		zap.Duration("took", time.Since(start)))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	c, ok := s.open(w, r, &req, func() string { return req.ContextID })
	if !ok {
		return
	}
	added, err := c.Ban(r.Context(), req.Substrings)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BanResponse{Banned: added})
}

func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	var req banRequest
	c, ok := s.open(w, r, &req, func() string { return req.ContextID })
	if !ok {
		return
	}
	removed, err := c.Unban(r.Context(), req.Substrings)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UnbanResponse{Unbanned: removed})
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.engine.DropContext(r.Context(), req.ContextID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DropResponse{Dropped: req.ContextID})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": ir.EngineVersion})
}

// open decodes the request body into req and resolves its context.
func (s *Server) open(w http.ResponseWriter, r *http.Request, req any, id func() string) (*engine.Context, bool) {
	if !s.decode(w, r, req) {
		return nil, false
	}
	c, err := s.engine.GetContext(r.Context(), id())
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return c, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, fmt.Sprintf("decode request: %v", err))
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("code", code),
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Warn("request rejected", fields...)
	}
	writeError(w, status, code, err.Error())
}
