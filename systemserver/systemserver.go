// Package systemserver implements the single-model micro-service's batching
// core: a FIFO request queue, a dedicated batcher loop that coalesces
// concurrent requests into GPU-sized batches, and the COLD/WARMING/READY/
// DRAINING/STOPPED lifecycle.
package systemserver

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/musicarena/fabric/apperrors"
	"github.com/musicarena/fabric/o11y"
)

// State is a System Server process's lifecycle state.
type State string

const (
	StateCold     State = "COLD"
	StateWarming  State = "WARMING"
	StateReady    State = "READY"
	StateDraining State = "DRAINING"
	StateStopped  State = "STOPPED"
)

// Prompt is the structured generation request accepted by the server.
type Prompt struct {
	OverallPrompt string
	Duration      float64
	Instrumental  bool
	Lyrics        *string
	Seed          int32
}

// GenerateMetadata is attached to every completed request.
type GenerateMetadata struct {
	BatchSize   int
	QueueWaitMs float64
	GenerateMs  float64
	ModelWarm   bool
}

// Result is the outcome of one request's generation.
type Result struct {
	AudioBytes []byte
	SampleRate int
	Lyrics     *string
	Metadata   GenerateMetadata
	Err        error
}

// Model is the injected model implementation. GenerateBatch receives
// prompts that all share seed, per the per-seed sub-batching requirement.
type Model interface {
	// Prepare loads the model. Called once, on the batcher loop, when the
	// loop starts.
	Prepare(ctx context.Context) error

	// Release frees model resources on graceful shutdown.
	Release(ctx context.Context) error

	// GenerateBatch invokes the model on a batch sharing one seed. Returning
	// a non-nil error fails every item in the batch with the same error.
	GenerateBatch(ctx context.Context, prompts []Prompt, seed int32) ([]ItemResult, error)
}

// ItemResult is one prompt's output within a GenerateBatch call. A non-nil
// Err isolates a per-item post-processing failure without failing the
// whole batch.
type ItemResult struct {
	AudioBytes []byte
	SampleRate int
	Lyrics     *string
	Err        error
}

// Config bounds the batcher's behavior.
type Config struct {
	MaxBatchSize    int
	MaxDelay        time.Duration
	GPUMemGBPerItem float64
	GPUTotalGB      float64
	QueueCap        int
}

// effectiveMaxBatchSize applies the GPU memory accounting rule: the
// effective batch limit is min(max_batch_size, floor(gpu_total_gb /
// gpu_mem_gb_per_item)).
func (c Config) effectiveMaxBatchSize() int {
	if c.GPUMemGBPerItem <= 0 {
		return c.MaxBatchSize
	}
	byMemory := int(math.Floor(c.GPUTotalGB / c.GPUMemGBPerItem))
	if byMemory < c.MaxBatchSize {
		return byMemory
	}
	return c.MaxBatchSize
}

// pendingRequest is internal to the batcher: a queued request awaiting
// assembly into a batch.
type pendingRequest struct {
	prompt      Prompt
	enqueueTime time.Time
	resultCh    chan Result
	ctx         context.Context
}

// Server owns the queue and batcher loop for one model process.
type Server struct {
	cfg   Config
	model Model

	mu    sync.Mutex
	state State

	queueCh chan *pendingRequest
	stopCh  chan struct{}
	doneCh  chan struct{}

	warmOnce sync.Once
	warmErr  error
}

// New creates a Server in the COLD state. Callers must call Start to launch
// the batcher loop before submitting requests.
func New(cfg Config, model Model) *Server {
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 64
	}
	return &Server{
		cfg:     cfg,
		model:   model,
		state:   StateCold,
		queueCh: make(chan *pendingRequest, cfg.QueueCap),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start moves the server to WARMING and launches the batcher loop goroutine,
// which loads the model as soon as it starts, before any request arrives,
// and moves to READY once Prepare succeeds.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateWarming
	s.mu.Unlock()
	go s.batcherLoop(ctx)
	return nil
}

// Stop transitions to DRAINING, stops accepting new batches, releases the
// model, and transitions to STOPPED. Intended to be called on SIGTERM.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateDraining
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	err := s.model.Release(ctx)

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
	return err
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Health reports whether the server is ready to accept traffic, per the
// state machine's /health contract: 200 only in READY, otherwise 503-level.
func (s *Server) Health() (ready bool, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady, s.state
}

// Submit enqueues a generation request, blocking until the batcher processes
// it, a deadline is reached, or ctx is cancelled. Back-pressure: if the
// queue is at capacity, it fails immediately with apperrors.Busy
// (CodeBusy), which the HTTP layer maps to 503.
func (s *Server) Submit(ctx context.Context, prompt Prompt) (Result, error) {
	req := &pendingRequest{
		prompt:      prompt,
		enqueueTime: time.Now(),
		resultCh:    make(chan Result, 1),
		ctx:         ctx,
	}

	select {
	case s.queueCh <- req:
	default:
		return Result{}, busyError()
	}

	select {
	case res := <-req.resultCh:
		return res, res.Err
	case <-ctx.Done():
		return Result{}, apperrors.BatchTimeout("systemserver.Submit")
	}
}

func busyError() error {
	return apperrors.Busy("systemserver.Submit")
}

// batcherLoop is the single consumer of queueCh. It blocks until the queue
// is non-empty, then greedily assembles a batch bounded by max_batch_size,
// max_delay, and the GPU memory ceiling, before handing it to the model.
func (s *Server) batcherLoop(ctx context.Context) {
	defer close(s.doneCh)

	s.warmOnce.Do(func() {
		s.warmErr = s.model.Prepare(ctx)
	})
	s.mu.Lock()
	if s.warmErr == nil {
		s.state = StateReady
	}
	s.mu.Unlock()

	maxBatch := s.cfg.effectiveMaxBatchSize()
	if maxBatch <= 0 {
		maxBatch = 1
	}

	for {
		var first *pendingRequest
		select {
		case first = <-s.queueCh:
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
		if first == nil {
			continue
		}
		if isCancelled(first.ctx) {
			continue
		}

		batch := []*pendingRequest{first}
		timer := time.NewTimer(s.cfg.MaxDelay)

	assemble:
		for len(batch) < maxBatch {
			select {
			case next := <-s.queueCh:
				if isCancelled(next.ctx) {
					continue assemble
				}
				batch = append(batch, next)
			case <-timer.C:
				break assemble
			case <-s.stopCh:
				timer.Stop()
				break assemble
			}
		}
		timer.Stop()

		s.dispatchBatch(ctx, batch)
	}
}

func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// dispatchBatch groups the batch by seed (per-seed sub-batching preserves
// reproducibility), invokes the model per sub-batch, and fans results back
// to each request's result channel in insertion order.
func (s *Server) dispatchBatch(ctx context.Context, batch []*pendingRequest) {
	start := time.Now()
	modelWarm := s.State() == StateReady

	bySeeed := make(map[int32][]*pendingRequest)
	var seedOrder []int32
	for _, req := range batch {
		if _, ok := bySeeed[req.prompt.Seed]; !ok {
			seedOrder = append(seedOrder, req.prompt.Seed)
		}
		bySeeed[req.prompt.Seed] = append(bySeeed[req.prompt.Seed], req)
	}

	totalBatchSize := len(batch)

	for _, seed := range seedOrder {
		subBatch := bySeeed[seed]
		prompts := make([]Prompt, len(subBatch))
		for i, req := range subBatch {
			prompts[i] = req.prompt
		}

		generateStart := time.Now()
		itemResults, err := s.model.GenerateBatch(ctx, prompts, seed)
		generateMs := float64(time.Since(generateStart).Milliseconds())

		for i, req := range subBatch {
			queueWaitMs := float64(generateStart.Sub(req.enqueueTime).Milliseconds())
			o11y.QueueWait(ctx, queueWaitMs)
			meta := GenerateMetadata{
				BatchSize:   totalBatchSize,
				QueueWaitMs: queueWaitMs,
				GenerateMs:  generateMs,
				ModelWarm:   modelWarm,
			}

			var res Result
			switch {
			case err != nil:
				res = Result{Err: apperrors.GenerateFailed("systemserver.dispatchBatch", err), Metadata: meta}
			case i < len(itemResults) && itemResults[i].Err != nil:
				res = Result{Err: apperrors.GenerateFailed("systemserver.dispatchBatch", itemResults[i].Err), Metadata: meta}
			case i < len(itemResults):
				ir := itemResults[i]
				res = Result{AudioBytes: ir.AudioBytes, SampleRate: ir.SampleRate, Lyrics: ir.Lyrics, Metadata: meta}
			default:
				res = Result{Err: apperrors.Internal("systemserver.dispatchBatch", nil), Metadata: meta}
			}

			select {
			case req.resultCh <- res:
			default:
			}
		}
	}

	o11y.BatchSize(ctx, modelWarm, totalBatchSize)
	o11y.GenerateDuration(ctx, float64(time.Since(start).Milliseconds()))
}
