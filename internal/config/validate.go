package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaMu   sync.Mutex // cue.Context is not safe for concurrent use
	schemaCtx  *cue.Context
	schemaVal  cue.Value
	schemaErr  error
)

func schema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaVal = v.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schemaVal, schemaErr
}

// Validate checks c against the embedded schema. Violations are reported
// one per line with their path.
func (c *Config) Validate() error {
	ctx, def, err := schema()
	if err != nil {
		return err
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := def.Unify(ctx.Encode(c.view()))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config:\n%s", cueerrors.Details(err, nil))
	}
	return nil
}

// view is the schema-facing shape of c. Durations are rendered in seconds.
func (c *Config) view() map[string]any {
	return map[string]any{
		"data_dir":          c.DataDir,
		"generic_bans_file": c.GenericBansFile,
		"stop_words_file":   c.StopWordsFile,
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"store": map[string]any{
			"codec": c.Store.Codec,
		},
		"learning": map[string]any{
			"max_token_length":           c.Learning.MaxTokenLength,
			"min_token_count":            c.Learning.MinTokenCount,
			"max_transition_age_seconds": c.Learning.MaxTransitionAge.Seconds(),
			"decimation_threshold":       c.Learning.DecimationThreshold,
			"decimation_factor":          c.Learning.DecimationFactor,
		},
		"generation": map[string]any{
			"min_keywords":   c.Generation.MinKeywords,
			"max_walk_steps": c.Generation.MaxWalkSteps,
			"keyword_pool":   c.Generation.KeywordPool,
		},
		"service": map[string]any{
			"listen":                   c.Service.Listen,
			"read_timeout_seconds":     c.Service.ReadTimeout.Seconds(),
			"write_timeout_seconds":    c.Service.WriteTimeout.Seconds(),
			"shutdown_timeout_seconds": c.Service.ShutdownTimeout.Seconds(),
			"rate_limit_rps":           c.Service.RateLimitRPS,
			"rate_limit_burst":         c.Service.RateLimitBurst,
		},
		"metrics": map[string]any{
			"enabled":   c.Metrics.Enabled,
			"namespace": c.Metrics.Namespace,
		},
	}
}
