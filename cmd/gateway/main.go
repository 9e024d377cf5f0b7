// Command gateway runs the Gateway (C6): the request router that
// orchestrates prompt moderation/routing, matchup sampling, concurrent
// dispatch to System Servers, and battle/vote persistence.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/musicarena/fabric/appconfig"
	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/blobstore"
	"github.com/musicarena/fabric/blobstore/s3store"
	"github.com/musicarena/fabric/chatmodel"
	_ "github.com/musicarena/fabric/chatmodel/providers/anthropic"
	_ "github.com/musicarena/fabric/chatmodel/providers/bedrock"
	_ "github.com/musicarena/fabric/chatmodel/providers/ollama"
	_ "github.com/musicarena/fabric/chatmodel/providers/openai"
	"github.com/musicarena/fabric/core"
	"github.com/musicarena/fabric/docstore"
	"github.com/musicarena/fabric/docstore/postgres"
	"github.com/musicarena/fabric/gateway"
	"github.com/musicarena/fabric/genclient"
	"github.com/musicarena/fabric/matchup"
	"github.com/musicarena/fabric/o11y"
	"github.com/musicarena/fabric/promptpipeline"
	"github.com/musicarena/fabric/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch {
	case os.IsNotExist(err):
		return 3
	default:
		return 2
	}
}

func run() error {
	if err := appconfig.LoadConfig(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	cfg := appconfig.Cfg

	logger := o11y.NewLogger(o11y.WithJSON())
	ctx := o11y.WithLogger(context.Background(), logger)

	reg, err := registry.Load(cfg.RegistryPath, func(name string) bool {
		_, ok := os.LookupEnv(name)
		return ok
	})
	if err != nil {
		return fmt.Errorf("gateway: loading registry: %w", err)
	}

	model, err := chatmodel.New(cfg.Chat.Provider, providerConfig(cfg))
	if err != nil {
		return fmt.Errorf("gateway: building chat model: %w", err)
	}
	pipeline := promptpipeline.New(model, cfg.Chat.Provider+":"+cfg.Chat.Anthropic.Model, logger)

	clients := make(map[registry.SystemKey]*genclient.Client, len(reg.All()))
	for _, key := range reg.All() {
		variant, _ := reg.Variant(key)
		clients[key] = genclient.New(systemBaseURL(cfg, key, variant), genclient.WithTotalDeadline(time.Duration(cfg.Gateway.GenerateTimeoutS*float64(time.Second))))
	}

	blobs, err := buildBlobStore(ctx, cfg.BlobStore)
	if err != nil {
		return fmt.Errorf("gateway: building blob store: %w", err)
	}
	docs, err := buildDocStore(ctx, cfg.DocStore)
	if err != nil {
		return fmt.Errorf("gateway: building doc store: %w", err)
	}

	gw := gateway.New(reg, pipeline, matchup.Weights{}, clients, blobs, docs, logger,
		gateway.WithMinimumListenTime(time.Duration(cfg.MinimumListenTime*float64(time.Second))),
		gateway.WithFlakiness(cfg.Flakiness),
	)

	router := mux.NewRouter()
	gateway.NewHandler(gw, logger).Register(router)

	listener, err := net.Listen("tcp", cfg.Gateway.ListenAddr)
	if err != nil {
		return fmt.Errorf("gateway: binding %s: %w", cfg.Gateway.ListenAddr, err)
	}
	httpServer := &http.Server{Handler: router}

	app := core.NewApp()
	app.Register(&serverLifecycle{srv: httpServer, listener: listener, logger: logger, name: "gateway"})

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("gateway: starting: %w", err)
	}
	logger.Info(ctx, "gateway listening", "addr", cfg.Gateway.ListenAddr)

	waitForSignal()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

func providerConfig(cfg appconfig.Config) appconfig.ProviderConfig {
	switch cfg.Chat.Provider {
	case "openai":
		return appconfig.ProviderConfig{Provider: "openai", APIKey: cfg.Chat.OpenAI.APIKey, Model: cfg.Chat.OpenAI.Model, BaseURL: cfg.Chat.OpenAI.BaseURL}
	case "ollama":
		return appconfig.ProviderConfig{Provider: "ollama", Model: cfg.Chat.Ollama.Model, BaseURL: cfg.Chat.Ollama.BaseURL}
	case "bedrock":
		return appconfig.ProviderConfig{Provider: "bedrock", Model: cfg.Chat.Bedrock.ModelID, Options: map[string]any{"region": cfg.Chat.Bedrock.Region}}
	default:
		return appconfig.ProviderConfig{Provider: "anthropic", APIKey: cfg.Chat.Anthropic.APIKey, Model: cfg.Chat.Anthropic.Model, BaseURL: cfg.Chat.Anthropic.BaseURL}
	}
}

// systemBaseURL resolves the address a System Server for key is reachable
// at: the variant's declared base URL if set, otherwise the configured
// systems base host with the registry's deterministic port.
func systemBaseURL(cfg appconfig.Config, key registry.SystemKey, variant registry.VariantSpec) string {
	if variant.BaseURL != "" {
		return variant.BaseURL
	}
	return fmt.Sprintf("%s:%d", cfg.SystemsBaseURL, registry.PortFor(key))
}

func buildBlobStore(ctx context.Context, cfg appconfig.BlobStoreConfig) (blobstore.BlobStore, error) {
	switch cfg.Backend {
	case "s3":
		return s3store.New(ctx, cfg.Bucket, cfg.Region)
	case "memory", "":
		return blobstore.NewInMemory(), nil
	default:
		return nil, apperrors.Validation("gateway.buildBlobStore", "unknown blob_store.backend "+cfg.Backend)
	}
}

func buildDocStore(ctx context.Context, cfg appconfig.DocStoreConfig) (docstore.DocStore, error) {
	switch cfg.Backend {
	case "postgres":
		return postgres.New(ctx, cfg.ConnectionString, "battles")
	case "memory", "":
		return docstore.NewInMemory(), nil
	default:
		return nil, apperrors.Validation("gateway.buildDocStore", "unknown doc_store.backend "+cfg.Backend)
	}
}

// serverLifecycle adapts an *http.Server, pre-bound to a listener, to
// core.Lifecycle: Start returns once the listener is bound (not once the
// first request is served), and Stop drains in-flight requests.
type serverLifecycle struct {
	srv      *http.Server
	listener net.Listener
	logger   *o11y.Logger
	name     string
}

func (s *serverLifecycle) Start(ctx context.Context) error {
	go func() {
		if err := s.srv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error(ctx, "http server exited", "component", s.name, "error", err)
		}
	}()
	return nil
}

func (s *serverLifecycle) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *serverLifecycle) Health() core.HealthStatus {
	return core.HealthStatus{Status: core.HealthHealthy, Timestamp: time.Now()}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
