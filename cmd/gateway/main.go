// Command gateway runs the ingestion gateway HTTP server: it wires together
// identity resolution, the cleaner, the async-fork orchestrator, the upload
// job subsystem, and the live session endpoint behind a single mux.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/clean"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/config"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/health"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/httpapi"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/identity"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/intel"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/livesession"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/objectstore"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/observe"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/orchestrate"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/publish"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/resilience"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/storage"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/internal/upload"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/llm"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/llm/anyllm"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/stt"
	sttdeepgram "github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/stt/deepgram"
	sttwhisper "github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/stt/whisper"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/transcription"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/transcription/deepgramrest"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/provider/transcription/whispercpp"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/sessionbuffer"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/sessionbuffer/memstore"
	"github.com/oneilstokeseqrm/live-transcription-fastapi/pkg/sessionbuffer/redisstore"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway: fatal startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := os.Getenv("GATEWAY_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "ingestion-gateway"})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	metrics := observe.DefaultMetrics()

	pool, err := storage.Open(ctx, storage.DefaultPoolConfig(cfg.Database.URL))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer pool.Close()

	registry := buildRegistry()

	var llmProvider llm.Provider
	rawLLMProvider, err := registry.CreateLLM(cfg.LLM)
	if err != nil {
		slog.Warn("gateway: llm provider unavailable, cleaner and extractor will degrade to pass-through", "error", err)
	} else {
		llmProvider = resilience.NewLLMFallback(rawLLMProvider, cfg.LLM.Name, resilience.FallbackConfig{})
	}

	transcriptionProvider, err := registry.CreateTranscription(cfg.Transcription)
	if err != nil {
		return fmt.Errorf("create transcription provider: %w", err)
	}

	rawSTTProvider, err := registry.CreateSTT(cfg.STT)
	if err != nil {
		return fmt.Errorf("create stt provider: %w", err)
	}
	sttProvider := resilience.NewSTTFallback(rawSTTProvider, cfg.STT.Name, resilience.FallbackConfig{})

	uploadAWSCfg, err := loadAWSConfig(ctx, cfg.Upload.Region, cfg.Upload.AccessKeyID, cfg.Upload.SecretAccessKey)
	if err != nil {
		return fmt.Errorf("load upload aws config: %w", err)
	}
	objects := objectstore.New(s3.NewPresignClient(s3.NewFromConfig(uploadAWSCfg)), cfg.Upload.BucketName)

	streamAWSCfg, err := loadAWSConfig(ctx, cfg.Stream.Region, cfg.Upload.AccessKeyID, cfg.Upload.SecretAccessKey)
	if err != nil {
		return fmt.Errorf("load stream aws config: %w", err)
	}
	busAWSCfg, err := loadAWSConfig(ctx, cfg.Bus.Region, cfg.Upload.AccessKeyID, cfg.Upload.SecretAccessKey)
	if err != nil {
		return fmt.Errorf("load bus aws config: %w", err)
	}
	publisher := publish.New(
		kinesis.NewFromConfig(streamAWSCfg),
		eventbridge.NewFromConfig(busAWSCfg),
		cfg.Stream.Name, cfg.Bus.Name, cfg.Bus.Source,
	)

	resolver := identity.NewResolver(cfg.Auth, cfg.Mock)
	cleaner := clean.New(llmProvider)

	var extractor *intel.Extractor
	var persister *intel.Persister
	if llmProvider != nil {
		extractor, err = intel.NewExtractor(llmProvider, cfg.LLM.Model)
		if err != nil {
			return fmt.Errorf("create extractor: %w", err)
		}
		persister = intel.NewPersister(pool)
	}
	orchestrator := orchestrate.New(publisher, extractor, persister, cfg.LLM.Name)

	buffer := buildSessionBuffer(ctx, cfg.SessionBuffer)

	uploadStore := upload.NewStore(pool)
	uploadWorker := upload.NewWorker(uploadStore, objects, transcriptionProvider, cleaner, orchestrator)
	uploadHandler := upload.NewHandler(uploadStore, objects, resolver, uploadWorker)

	syncHandler := httpapi.NewHandler(resolver, cleaner, orchestrator, transcriptionProvider)

	liveHandler := livesession.NewHandler(resolver, sttProvider, buffer, cleaner, orchestrator,
		func() { metrics.ActiveLiveSessions.Add(ctx, 1) },
		func() { metrics.ActiveLiveSessions.Add(ctx, -1) },
	)

	healthHandler := health.New(
		health.Checker{Name: "database", Check: func(ctx context.Context) error { return pool.Ping(ctx) }},
		health.Checker{Name: "session_buffer", Check: func(ctx context.Context) error {
			_, err := buffer.Range(ctx, sessionbuffer.Key("healthcheck"))
			return err
		}},
	)

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	uploadHandler.Register(mux)
	syncHandler.Register(mux)
	liveHandler.Register(mux)

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: observe.Middleware(metrics)(mux),
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("gateway: listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("gateway: shutting down")
	case err := <-serverErr:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogging(level config.LogLevel) {
	var slogLevel slog.Level
	switch level {
	case config.LogLevelDebug:
		slogLevel = slog.LevelDebug
	case config.LogLevelWarn:
		slogLevel = slog.LevelWarn
	case config.LogLevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel})))
}

// buildRegistry wires every LLM, transcription, and STT provider this
// gateway knows how to construct onto the config registry.
func buildRegistry() *config.Registry {
	r := config.NewRegistry()

	anyllmFactory := func(newFn func(string, ...anyllmlib.Option) (*anyllm.Provider, error)) func(config.ProviderEntry) (llm.Provider, error) {
		return func(entry config.ProviderEntry) (llm.Provider, error) {
			return newFn(entry.Model, anyllmOptsFromEntry(entry)...)
		}
	}

	r.RegisterLLM("openai", anyllmFactory(anyllm.NewOpenAI))
	r.RegisterLLM("anthropic", anyllmFactory(anyllm.NewAnthropic))
	r.RegisterLLM("gemini", anyllmFactory(anyllm.NewGemini))
	r.RegisterLLM("ollama", anyllmFactory(anyllm.NewOllama))
	r.RegisterLLM("deepseek", anyllmFactory(anyllm.NewDeepSeek))
	r.RegisterLLM("mistral", anyllmFactory(anyllm.NewMistral))
	r.RegisterLLM("groq", anyllmFactory(anyllm.NewGroq))
	r.RegisterLLM("llamacpp", anyllmFactory(anyllm.NewLlamaCpp))
	r.RegisterLLM("llamafile", anyllmFactory(anyllm.NewLlamaFile))

	r.RegisterTranscription("deepgram", func(entry config.ProviderEntry) (transcription.Provider, error) {
		return deepgramrest.New(entry.APIKey)
	})
	r.RegisterTranscription("whispercpp", func(entry config.ProviderEntry) (transcription.Provider, error) {
		return whispercpp.New(entry.Model)
	})

	r.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		return sttdeepgram.New(entry.APIKey)
	})
	r.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		return sttwhisper.New(entry.BaseURL)
	})

	return r
}

func anyllmOptsFromEntry(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

func buildSessionBuffer(ctx context.Context, cfg config.SessionBufferConfig) sessionbuffer.Store {
	if cfg.URL == "" {
		slog.Warn("gateway: session_buffer.url not configured, using in-memory buffer")
		return memstore.New()
	}
	store, err := redisstore.Open(ctx, cfg.URL)
	if err != nil {
		slog.Warn("gateway: failed to connect to redis session buffer, falling back to in-memory", "error", err)
		return memstore.New()
	}
	return store
}

// loadAWSConfig resolves AWS credentials: explicit static keys when both are
// supplied, otherwise the SDK's default chain (env vars, shared config,
// instance role).
func loadAWSConfig(ctx context.Context, region, accessKeyID, secretAccessKey string) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}
