// Command systemserver runs a single System Server (C5): the batching core
// that fronts one text-to-music model variant behind /health and /generate.
//
// Real generation models are supplied by the deployment layer; this binary
// only decides which system/variant it is serving and wires the registry's
// declared configuration into a systemserver.Server. The reference model
// built in below produces a deterministic sine-wave tone so the batching
// core is independently exercisable without a real model attached.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/musicarena/fabric/appconfig"
	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/core"
	"github.com/musicarena/fabric/o11y"
	"github.com/musicarena/fabric/registry"
	"github.com/musicarena/fabric/systemserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run() error {
	systemKeyFlag := flag.String("system-key", "", "system_tag:variant_tag this process serves (required)")
	flag.Parse()
	if *systemKeyFlag == "" {
		if env := os.Getenv("SYSTEM_KEY"); env != "" {
			*systemKeyFlag = env
		}
	}
	if *systemKeyFlag == "" {
		return fmt.Errorf("systemserver: -system-key (or SYSTEM_KEY) is required")
	}
	key, err := registry.ParseSystemKey(*systemKeyFlag)
	if err != nil {
		return fmt.Errorf("systemserver: %w", err)
	}

	if err := appconfig.LoadConfig(); err != nil {
		return fmt.Errorf("systemserver: %w", err)
	}
	cfg := appconfig.Cfg

	logger := o11y.NewLogger(o11y.WithJSON())
	ctx := o11y.WithLogger(context.Background(), logger)

	reg, err := registry.Load(cfg.RegistryPath, func(name string) bool {
		_, ok := os.LookupEnv(name)
		return ok
	})
	if err != nil {
		return fmt.Errorf("systemserver: loading registry: %w", err)
	}
	metadata, ok := reg.Lookup(key)
	if !ok {
		return fmt.Errorf("systemserver: %s is not declared in the registry", key)
	}
	variant, _ := reg.Variant(key)

	model := newReferenceModel(key, variant)

	serverCfg := systemserver.Config{
		MaxBatchSize:    cfg.SystemServer.MaxBatchSize,
		MaxDelay:        time.Duration(cfg.SystemServer.MaxDelaySeconds * float64(time.Second)),
		GPUMemGBPerItem: cfg.SystemServer.GPUMemGBPerItem,
		GPUTotalGB:      cfg.SystemServer.GPUTotalGB,
		QueueCap:        cfg.SystemServer.QueueCap,
	}
	srv := systemserver.New(serverCfg, model)

	router := mux.NewRouter()
	systemserver.NewHandler(srv, logger).Register(router)

	listener, err := net.Listen("tcp", cfg.SystemServer.ListenAddr)
	if err != nil {
		return fmt.Errorf("systemserver: binding %s: %w", cfg.SystemServer.ListenAddr, err)
	}
	httpServer := &http.Server{Handler: router}

	app := core.NewApp()
	app.Register(&batcherLifecycle{srv: srv})
	app.Register(&httpLifecycle{srv: httpServer, listener: listener, logger: logger})

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("systemserver: starting: %w", err)
	}
	logger.Info(ctx, "system server listening",
		"system_key", key.String(), "display_name", metadata.DisplayName, "addr", cfg.SystemServer.ListenAddr)

	waitForSignal()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

// referenceModel is a standin for the real model a deployment supplies for
// variant.ClassName. It synthesizes a sine-wave tone so the batching core,
// lifecycle, and HTTP surface can be exercised end to end without a real
// generation backend attached.
type referenceModel struct {
	key     registry.SystemKey
	variant registry.VariantSpec
}

func newReferenceModel(key registry.SystemKey, variant registry.VariantSpec) *referenceModel {
	return &referenceModel{key: key, variant: variant}
}

const referenceSampleRate = 22050

func (m *referenceModel) Prepare(ctx context.Context) error {
	return nil
}

func (m *referenceModel) Release(ctx context.Context) error {
	return nil
}

func (m *referenceModel) GenerateBatch(ctx context.Context, prompts []systemserver.Prompt, seed int32) ([]systemserver.ItemResult, error) {
	out := make([]systemserver.ItemResult, len(prompts))
	for i, p := range prompts {
		if p.Duration <= 0 {
			out[i] = systemserver.ItemResult{Err: apperrors.Validation("referencemodel.GenerateBatch", "duration must be positive")}
			continue
		}
		out[i] = systemserver.ItemResult{
			AudioBytes: synthesizeTone(p.Duration, seed+int32(i)),
			SampleRate: referenceSampleRate,
			Lyrics:     p.Lyrics,
		}
	}
	return out, nil
}

// synthesizeTone renders durationSeconds of a 16-bit PCM sine wave whose
// frequency is derived from seed, giving deterministic, distinguishable
// output per seed without any real model attached.
func synthesizeTone(durationSeconds float64, seed int32) []byte {
	freq := 220.0 + float64(uint32(seed)%440)
	numSamples := int(durationSeconds * referenceSampleRate)
	out := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / referenceSampleRate
		sample := int16(math.Sin(2*math.Pi*freq*t) * 0.2 * math.MaxInt16)
		out[2*i] = byte(sample)
		out[2*i+1] = byte(sample >> 8)
	}
	return out
}

var _ systemserver.Model = (*referenceModel)(nil)

// batcherLifecycle adapts *systemserver.Server to core.Lifecycle: Server's
// own Health returns (ready bool, state State), so it is translated into
// core.HealthStatus here rather than changing Server's public shape.
type batcherLifecycle struct {
	srv *systemserver.Server
}

func (b *batcherLifecycle) Start(ctx context.Context) error {
	return b.srv.Start(ctx)
}

func (b *batcherLifecycle) Stop(ctx context.Context) error {
	return b.srv.Stop(ctx)
}

func (b *batcherLifecycle) Health() core.HealthStatus {
	ready, state := b.srv.Health()
	status := core.HealthUnhealthy
	if ready {
		status = core.HealthHealthy
	}
	return core.HealthStatus{Status: status, Message: string(state), Timestamp: time.Now()}
}

type httpLifecycle struct {
	srv      *http.Server
	listener net.Listener
	logger   *o11y.Logger
}

func (h *httpLifecycle) Start(ctx context.Context) error {
	go func() {
		if err := h.srv.Serve(h.listener); err != nil && err != http.ErrServerClosed {
			h.logger.Error(ctx, "http server exited", "component", "systemserver-http", "error", err)
		}
	}()
	return nil
}

func (h *httpLifecycle) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

func (h *httpLifecycle) Health() core.HealthStatus {
	return core.HealthStatus{Status: core.HealthHealthy, Timestamp: time.Now()}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
