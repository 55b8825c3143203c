// Command gateway runs the multi-tenant inference gateway's HTTP server:
// completion runner, event-driven side effects, and every store the spec
// names, wired from environment configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	"goa.design/pulse/rmap"

	"github.com/anotherai/gateway/internal/httpapi"
	"github.com/anotherai/gateway/runtime/blob"
	gwconfig "github.com/anotherai/gateway/runtime/config"
	"github.com/anotherai/gateway/runtime/eventbus"
	"github.com/anotherai/gateway/runtime/experiment"
	"github.com/anotherai/gateway/runtime/gateway"
	"github.com/anotherai/gateway/runtime/middleware"
	"github.com/anotherai/gateway/runtime/provider"
	"github.com/anotherai/gateway/runtime/provider/anthropic"
	"github.com/anotherai/gateway/runtime/provider/bedrock"
	"github.com/anotherai/gateway/runtime/provider/google"
	"github.com/anotherai/gateway/runtime/provider/openai"
	"github.com/anotherai/gateway/runtime/provider/openaicompat"
	"github.com/anotherai/gateway/runtime/render"
	"github.com/anotherai/gateway/runtime/runner"
	"github.com/anotherai/gateway/runtime/security"
	"github.com/anotherai/gateway/runtime/store/analytical"
	"github.com/anotherai/gateway/runtime/store/relational"
	"github.com/anotherai/gateway/runtime/tasks"
	"github.com/anotherai/gateway/runtime/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := gwconfig.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()

	relStore, err := relational.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error(ctx, "open relational store", "error", err)
		os.Exit(1)
	}
	defer relStore.Close()

	anaStore, err := analytical.Open(ctx, analytical.ResolveDSN(cfg.PostgresDSN), analytical.WithLogger(logger))
	if err != nil {
		logger.Error(ctx, "open analytical store", "error", err)
		os.Exit(1)
	}
	defer anaStore.Close()

	blobs, err := blob.Open(ctx, cfg.FileStorageDSN, cfg.FileStorageContainerName)
	if err != nil {
		logger.Error(ctx, "open blob store", "error", err)
		os.Exit(1)
	}

	broker, redisClient, closeBroker := buildBroker(ctx, cfg, logger, metrics)
	defer closeBroker()

	limiters, err := buildLimiters(ctx, redisClient)
	if err != nil {
		logger.Warn(ctx, "join rate limit cluster, falling back to process-local limits", "error", err)
		limiters = middleware.NewLimiters(nil, 60000, 600000)
	}

	registry, servers := buildProviders(ctx, cfg, logger, tracer, limiters)

	run := runner.NewRunner(registry, servers, runner.NewDefaultCatalog(), broker,
		runner.WithFileRefResolver(render.NewFileRefResolver(blobs)),
		runner.WithLogger(logger),
		runner.WithTracer(tracer),
	)

	experiments := experiment.New(relStore, anaStore)

	handlers := &tasks.Handlers{
		Store:       relStore,
		Completions: anaStore,
		Experiments: experiments,
		Runner:      run,
		Logger:      logger,
		IsDuplicate: analytical.IsDuplicate,
	}
	handlers.Register(broker)

	verifier, err := buildVerifier(ctx, cfg, relStore)
	if err != nil {
		logger.Error(ctx, "build verifier", "error", err)
		os.Exit(1)
	}

	creditGate := security.NewCreditGate(relStore)

	var billing *security.BillingWebhook
	if cfg.StripeAPIKey != "" && cfg.StripeWebhookSecret != "" {
		billing = security.NewBillingWebhook(relStore, broker, cfg.StripeWebhookSecret, logger)
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Runner:        run,
		Relational:    relStore,
		Analytical:    anaStore,
		Experiments:   experiments,
		Verifier:      verifier,
		CreditGate:    creditGate,
		Billing:       billing,
		Logger:        logger,
		AuthServerURL: authServerURL(cfg),
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info(ctx, "gateway listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	logger.Info(ctx, "exiting", "reason", <-errc)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http server shutdown", "error", err)
	}
	if err := broker.Close(shutdownCtx); err != nil {
		logger.Error(ctx, "broker shutdown", "error", err)
	}
	cancel()
	wg.Wait()
	logger.Info(ctx, "exited")
}

// authServerURL derives the upstream OAuth authorization server's origin
// from JWKS_URL (stripping the well-known JWKS path), for the gateway's
// .well-known discovery redirect. Falls back to empty when only a static
// JWK is configured, since there is no issuer endpoint to redirect to.
func authServerURL(cfg *gwconfig.Config) string {
	if cfg.JWKSURL == "" {
		return ""
	}
	if u, err := neturlParse(cfg.JWKSURL); err == nil {
		return u
	}
	return ""
}

func buildVerifier(ctx context.Context, cfg *gwconfig.Config, relStore *relational.Store) (security.Verifier, error) {
	apiKeys := security.NewAPIKeyVerifier(relStore)

	var jwts security.Verifier
	var err error
	switch {
	case cfg.JWKSURL != "":
		jwts, err = security.NewJWKSVerifier(ctx, cfg.JWKSURL, relStore)
	case cfg.JWK != "":
		jwts, err = security.NewStaticJWKVerifier([]byte(cfg.JWK), relStore)
	default:
		return nil, errors.New("one of JWKS_URL or JWK is required")
	}
	if err != nil {
		return nil, err
	}
	return security.NewCompositeVerifier(apiKeys, jwts), nil
}

// buildBroker returns the event bus broker, and the Redis client backing it
// when JOBS_BROKER_URL points at Redis (nil for the in-memory broker). The
// same client is reused to join the Pulse rate-limit cluster in
// buildLimiters, so a single Redis deployment backs both the job queue and
// cross-node rate limiting rather than requiring two separate connections.
func buildBroker(ctx context.Context, cfg *gwconfig.Config, logger telemetry.Logger, metrics telemetry.Metrics) (eventbus.Broker, *redis.Client, func()) {
	if cfg.JobsBrokerURL == "" || cfg.JobsBrokerURL == "memory://" {
		b := eventbus.NewMemoryBroker(eventbus.MemoryBrokerOptions{Logger: logger, Metrics: metrics})
		return b, nil, func() { _ = b.Close(context.Background()) }
	}

	opts, err := redis.ParseURL(cfg.JobsBrokerURL)
	if err != nil {
		logger.Error(ctx, "parse JOBS_BROKER_URL, falling back to in-process broker", "error", err)
		b := eventbus.NewMemoryBroker(eventbus.MemoryBrokerOptions{Logger: logger, Metrics: metrics})
		return b, nil, func() { _ = b.Close(context.Background()) }
	}
	client := redis.NewClient(opts)
	b, err := eventbus.NewRedisBroker(ctx, eventbus.RedisBrokerOptions{Redis: client, Logger: logger, Metrics: metrics})
	if err != nil {
		logger.Error(ctx, "open redis broker, falling back to in-process broker", "error", err)
		mb := eventbus.NewMemoryBroker(eventbus.MemoryBrokerOptions{Logger: logger, Metrics: metrics})
		return mb, nil, func() { _ = mb.Close(context.Background()); _ = client.Close() }
	}
	return b, client, func() { _ = b.Close(context.Background()); _ = client.Close() }
}

// buildLimiters joins the Pulse-replicated rate-limit cluster when a Redis
// client is available, so adaptive tokens-per-minute budgets are shared
// across every gateway node rather than tracked per-process. redisClient is
// nil when running with the in-memory broker, in which case the caller
// falls back to a process-local Limiters.
func buildLimiters(ctx context.Context, redisClient *redis.Client) (*middleware.Limiters, error) {
	if redisClient == nil {
		return middleware.NewLimiters(nil, 60000, 600000), nil
	}
	cluster, err := rmap.Join(ctx, "gateway-ratelimit", redisClient)
	if err != nil {
		return nil, err
	}
	return middleware.NewLimiters(cluster, 60000, 600000), nil
}

// buildProviders registers every provider adapter whose required
// environment variables are present in cfg.ProviderEnv, wrapping each in a
// gateway.Server with rate limiting, logging, and tracing middleware in
// spec §4.1's onion order (rate limit outermost, so a throttled call never
// reaches the provider or gets logged as a provider round trip). A provider
// missing its credentials is skipped rather than failing startup, since a
// deployment only needs the subset of providers its catalog uses.
func buildProviders(ctx context.Context, cfg *gwconfig.Config, logger telemetry.Logger, tracer telemetry.Tracer, limiters *middleware.Limiters) (*provider.Registry, map[provider.Name]*gateway.Server) {
	registry := provider.NewRegistry()
	servers := make(map[provider.Name]*gateway.Server)

	register := func(name provider.Name, adapter provider.Adapter, models []string, err error) {
		if err != nil {
			logger.Warn(ctx, "skipping provider, adapter not configured", "provider", name, "error", err)
			return
		}
		registry.Register(name, adapter, models)
		srv, err := buildGatewayServer(adapter, logger, tracer, limiters)
		if err != nil {
			logger.Warn(ctx, "skipping provider, server build failed", "provider", name, "error", err)
			return
		}
		servers[name] = srv
	}

	if key := cfg.ProviderEnv["OPENAI_API_KEY"]; key != "" {
		adapter, err := openai.NewFromAPIKey(key, "", "gpt-4o-mini")
		register(provider.NameOpenAI, adapter, modelsFor(provider.NameOpenAI), err)
	}
	if key := cfg.ProviderEnv["ANTHROPIC_API_KEY"]; key != "" {
		adapter, err := anthropic.NewFromAPIKey(key, "claude-3-5-haiku-latest")
		register(provider.NameAnthropic, adapter, modelsFor(provider.NameAnthropic), err)
	}
	if key := cfg.ProviderEnv["GOOGLE_API_KEY"]; key != "" {
		adapter, err := google.NewFromAPIKey(ctx, key, "gemini-1.5-flash")
		register(provider.NameGoogle, adapter, modelsFor(provider.NameGoogle), err)
	}
	if key := cfg.ProviderEnv["GROQ_API_KEY"]; key != "" {
		adapter, err := openaicompat.New(openaicompat.Options{Provider: openaicompat.ProviderGroq, APIKey: key, DefaultModel: "llama-3.1-70b-versatile"})
		register(provider.NameGroq, adapter, modelsFor(provider.NameGroq), err)
	}
	if key := cfg.ProviderEnv["FIREWORKS_API_KEY"]; key != "" {
		adapter, err := openaicompat.New(openaicompat.Options{Provider: openaicompat.ProviderFireworks, APIKey: key, DefaultModel: "accounts/fireworks/models/llama-v3p1-70b-instruct"})
		register(provider.NameFireworks, adapter, modelsFor(provider.NameFireworks), err)
	}
	if key := cfg.ProviderEnv["XAI_API_KEY"]; key != "" {
		adapter, err := openaicompat.New(openaicompat.Options{Provider: openaicompat.ProviderXAI, APIKey: key, DefaultModel: "grok-2-latest"})
		register(provider.NameXAI, adapter, modelsFor(provider.NameXAI), err)
	}
	if key := cfg.ProviderEnv["MISTRAL_API_KEY"]; key != "" {
		adapter, err := openaicompat.New(openaicompat.Options{Provider: openaicompat.ProviderMistral, APIKey: key, DefaultModel: "mistral-large-latest"})
		register(provider.NameMistralAI, adapter, modelsFor(provider.NameMistralAI), err)
	}
	if key, base := cfg.ProviderEnv["AZURE_OPENAI_API_KEY"], cfg.ProviderEnv["AZURE_OPENAI_BASE_URL"]; key != "" && base != "" {
		adapter, err := openaicompat.New(openaicompat.Options{Provider: openaicompat.ProviderAzure, APIKey: key, BaseURL: base, DefaultModel: "gpt-4o"})
		register(provider.NameAzureOpenAI, adapter, modelsFor(provider.NameAzureOpenAI), err)
	}
	if region := cfg.ProviderEnv["AWS_REGION"]; region != "" {
		adapter, err := buildBedrockAdapter(ctx, region)
		register(provider.NameAmazonBedrock, adapter, modelsFor(provider.NameAmazonBedrock), err)
	}

	return registry, servers
}

func buildBedrockAdapter(ctx context.Context, region string) (provider.Adapter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	rt := bedrockruntime.NewFromConfig(awsCfg)
	return bedrock.New(rt, bedrock.Options{
		DefaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0",
		SmallModel:   "anthropic.claude-3-5-haiku-20241022-v1:0",
	})
}

func buildGatewayServer(adapter provider.Adapter, logger telemetry.Logger, tracer telemetry.Tracer, limiters *middleware.Limiters) (*gateway.Server, error) {
	limitUnary, limitStream := gateway.RateLimit(limiters)
	logUnary, logStream := gateway.Logging(logger)
	traceUnary, traceStream := gateway.Tracing(tracer)
	return gateway.NewServer(
		gateway.WithProvider(adapter),
		gateway.WithUnary(limitUnary, logUnary, traceUnary),
		gateway.WithStream(limitStream, logStream, traceStream),
	)
}

// modelsFor returns the catalog's default model ids that list name among
// their supporting providers, so registry.Register's model list always
// matches what runner.NewDefaultCatalog actually routes.
func modelsFor(name provider.Name) []string {
	catalog := runner.NewDefaultCatalog()
	var ids []string
	for _, id := range catalog.IDs() {
		info, ok := catalog.Lookup(id)
		if !ok {
			continue
		}
		for _, p := range info.Providers {
			if p == name {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

func neturlParse(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Path = ""
	u.RawQuery = ""
	return u.Scheme + "://" + u.Host, nil
}
