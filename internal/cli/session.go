package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/tyuo/internal/banned"
	"github.com/roach88/tyuo/internal/codec"
	"github.com/roach88/tyuo/internal/config"
	"github.com/roach88/tyuo/internal/engine"
	"github.com/roach88/tyuo/internal/graph"
	"github.com/roach88/tyuo/internal/metrics"
	"github.com/roach88/tyuo/internal/model"
	"github.com/roach88/tyuo/internal/normalize"
	"github.com/roach88/tyuo/internal/store"
	"github.com/roach88/tyuo/internal/tokenize"
)

// session is everything one command invocation needs.
type session struct {
	cfg       *config.Config
	logger    *zap.Logger
	engine    *engine.Engine
	metrics   *metrics.Collector
	tokenizer tokenize.Options
	out       *OutputFormatter
}

// openSession loads configuration and builds the engine. overrides run after
// the file and the environment, before validation.
func openSession(opts *RootOptions, cmd *cobra.Command, overrides ...func(*config.Config)) (*session, error) {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loader := config.NewLoader().WithConfigPath(opts.ConfigPath).WithOverride(func(c *config.Config) {
		if opts.DataDir != "" {
			c.DataDir = opts.DataDir
		}
		if opts.Verbose {
			c.Log.Level = "debug"
		}
	})
	for _, fn := range overrides {
		loader = loader.WithOverride(fn)
	}
	cfg, err := loader.Load()
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "init logger", err)
	}

	s := &session{
		cfg:    cfg,
		logger: logger,
		tokenizer: tokenize.Options{
			MaxTokenLength: cfg.Learning.MaxTokenLength,
			MinTokenCount:  cfg.Learning.MinTokenCount,
		},
		out: out,
	}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	eng, err := s.buildEngine()
	if err != nil {
		_ = logger.Sync()
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "build engine", err)
	}
	s.engine = eng
	logger.Debug("session ready", zap.String("data_dir", cfg.DataDir))
	return s, nil
}

func (s *session) buildEngine() (*engine.Engine, error) {
	format, err := codec.ParseFormat(s.cfg.Store.Codec)
	if err != nil {
		return nil, err
	}
	generic, err := banned.LoadGenericFile(s.cfg.GenericBansFile)
	if err != nil {
		return nil, err
	}
	stop, err := loadStopWords(s.cfg.StopWordsFile)
	if err != nil {
		return nil, err
	}

	mc := model.DefaultConfig()
	mc.Format = format
	mc.Policy = graph.Policy{
		MaxAge:              s.cfg.Learning.MaxTransitionAge,
		DecimationThreshold: s.cfg.Learning.DecimationThreshold,
		DecimationFactor:    uint32(s.cfg.Learning.DecimationFactor),
	}
	mc.MinKeywords = s.cfg.Generation.MinKeywords
	mc.MaxWalkSteps = s.cfg.Generation.MaxWalkSteps
	mc.KeywordPool = s.cfg.Generation.KeywordPool
	mc.StopWords = stop

	s.logger.Debug("engine configured",
		zap.Stringer("codec", format),
		zap.Int("generic_bans", generic.Len()),
		zap.Int("stop_words", len(stop)))

	return engine.New(store.NewFileManager(s.cfg.DataDir), generic,
		engine.WithModelConfig(mc),
		engine.WithLogger(s.logger),
		engine.WithMetrics(s.metrics),
	), nil
}

func (s *session) Close() {
	if err := s.engine.Close(); err != nil {
		s.logger.Error("close engine", zap.Error(err))
	}
	_ = s.logger.Sync()
}

func loadStopWords(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stop words: %w", err)
	}
	defer f.Close()
	words, err := normalize.Lines(f, normalize.Canonical)
	if err != nil {
		return nil, fmt.Errorf("read stop words: %w", err)
	}
	return words, nil
}

// initLogger builds the process logger. Logs always go to stderr so they
// never mix with command output.
func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
