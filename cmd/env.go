package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docverify/internal/classify"
	"github.com/sells-group/docverify/internal/doctext"
	"github.com/sells-group/docverify/internal/extract"
	"github.com/sells-group/docverify/internal/fetcher"
	"github.com/sells-group/docverify/internal/llm"
	"github.com/sells-group/docverify/internal/model"
	"github.com/sells-group/docverify/internal/pipeline"
	"github.com/sells-group/docverify/internal/registry"
	"github.com/sells-group/docverify/internal/resilience"
	"github.com/sells-group/docverify/internal/store"
	"github.com/sells-group/docverify/internal/validate"
	"github.com/sells-group/docverify/internal/verify"
	anthropicpkg "github.com/sells-group/docverify/pkg/anthropic"
)

// appEnv holds the store, registries and processor shared by the commands.
type appEnv struct {
	Store     store.Store
	Registry  *registry.Registry
	Engine    *verify.Engine
	Processor *pipeline.Processor
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode, opens and migrates the store, loads
// the schema registry and check lists, and builds the processor. The model
// gateway is only built when withModel is set. Callers should defer
// env.Close().
func initEnv(ctx context.Context, mode string, withModel bool) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	engine, err := loadEngine()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	deps := pipeline.Deps{
		Validator:   validate.New(),
		Registry:    reg,
		Engine:      engine,
		Store:       st,
		DefaultType: model.ParseDocType(cfg.Extraction.DefaultType),
	}
	if withModel {
		m := newModel()
		deps.Extractor = extract.NewExtractor(extract.NewClient(m, extractConfig()))
		deps.Classifier = classify.New(m, classifyConfig())
	}

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.Int("schemas", len(reg.Types())),
		zap.Int("check_lists", len(engine.CheckLists())),
		zap.Bool("model", withModel),
	)

	return &appEnv{
		Store:     st,
		Registry:  reg,
		Engine:    engine,
		Processor: pipeline.NewProcessor(deps),
	}, nil
}

func loadRegistry() (*registry.Registry, error) {
	if cfg.Registry.SchemaFile == "" {
		return registry.Default()
	}
	reg, err := registry.LoadFile(cfg.Registry.SchemaFile)
	if err != nil {
		return nil, eris.Wrap(err, "load schema registry")
	}
	zap.L().Info("schema registry loaded from file", zap.String("path", cfg.Registry.SchemaFile))
	return reg, nil
}

func loadEngine() (*verify.Engine, error) {
	if cfg.Verify.ChecklistFile == "" {
		return verify.Default()
	}
	lists, err := verify.LoadCheckLists(cfg.Verify.ChecklistFile)
	if err != nil {
		return nil, eris.Wrap(err, "load check lists")
	}
	return verify.NewEngine(lists), nil
}

// newModel builds the rate-limited, retried, circuit-broken Anthropic gateway.
func newModel() llm.Model {
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	retry := resilience.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Extraction.Retry.MaxAttempts
	retry.InitialBackoff = time.Duration(cfg.Extraction.Retry.InitialBackoffMs) * time.Millisecond
	return llm.NewAnthropic(client, llm.Options{
		RequestsPerSecond: cfg.Extraction.RequestsPerSecond,
		Retry:             retry,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: cfg.Extraction.Circuit.FailureThreshold,
			Cooldown:         time.Duration(cfg.Extraction.Circuit.ResetTimeoutSecs) * time.Second,
		},
	})
}

func extractConfig() extract.Config {
	return extract.Config{
		Model:        cfg.Anthropic.ExtractModel,
		Temperature:  cfg.Extraction.Temperature,
		MaxTokens:    cfg.Extraction.MaxTokens,
		Timeout:      time.Duration(cfg.Extraction.TimeoutSecs) * time.Second,
		MaxTextChars: cfg.Extraction.MaxTextChars,
	}
}

func classifyConfig() classify.Config {
	return classify.Config{
		Model:        cfg.Anthropic.ClassifyModel,
		Timeout:      time.Duration(cfg.Classify.TimeoutSecs) * time.Second,
		MaxTextChars: cfg.Classify.MaxTextChars,
	}
}

// textExtractor returns the text extractor for a staged file. The Mistral
// OCR backend joins the PDF chain when a key is configured.
func textExtractor(path string) (doctext.Extractor, error) {
	var extra []doctext.Backend
	if cfg.DocText.MistralKey != "" {
		extra = append(extra, doctext.NewMistralOCR(cfg.DocText.MistralKey, cfg.DocText.MistralModel))
	}
	return doctext.ForPath(path, cfg.DocText.PdfToTextPath, cfg.DocText.MinChars, extra...)
}

func newStager(dir string) *fetcher.Stager {
	retry := resilience.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Fetch.Retry.MaxAttempts
	retry.InitialBackoff = time.Duration(cfg.Fetch.Retry.InitialBackoffMs) * time.Millisecond
	return fetcher.NewStager(dir, fetcher.Options{
		Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Retry:   retry,
	})
}
