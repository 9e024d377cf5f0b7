package systemserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	mu           sync.Mutex
	prepareCalls int
	batchSizes   []int
	failAll      bool
}

func (m *fakeModel) Prepare(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepareCalls++
	return nil
}

func (m *fakeModel) Release(ctx context.Context) error { return nil }

func (m *fakeModel) GenerateBatch(ctx context.Context, prompts []Prompt, seed int32) ([]ItemResult, error) {
	m.mu.Lock()
	m.batchSizes = append(m.batchSizes, len(prompts))
	fail := m.failAll
	m.mu.Unlock()

	if fail {
		return nil, assertErr
	}
	results := make([]ItemResult, len(prompts))
	for i := range prompts {
		results[i] = ItemResult{AudioBytes: []byte("audio"), SampleRate: 44100}
	}
	return results, nil
}

var assertErr = &testError{"model failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func waitForReady(t *testing.T, s *Server) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ready, _ := s.Health(); ready {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("server did not become ready")
}

func TestServer_SingleRequestCompletes(t *testing.T) {
	m := &fakeModel{}
	cfg := Config{MaxBatchSize: 4, MaxDelay: 50 * time.Millisecond, GPUMemGBPerItem: 1, GPUTotalGB: 24}
	s := New(cfg, m)
	require.NoError(t, s.Start(context.Background()))
	waitForReady(t, s)

	result, err := s.Submit(context.Background(), Prompt{OverallPrompt: "x", Duration: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metadata.BatchSize)
	assert.Equal(t, []byte("audio"), result.AudioBytes)
}

func TestServer_CoalescesConcurrentRequestsIntoOneBatch(t *testing.T) {
	m := &fakeModel{}
	cfg := Config{MaxBatchSize: 4, MaxDelay: 2 * time.Second, GPUMemGBPerItem: 1, GPUTotalGB: 24}
	s := New(cfg, m)
	require.NoError(t, s.Start(context.Background()))
	waitForReady(t, s)

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.Submit(context.Background(), Prompt{OverallPrompt: "x", Duration: 10, Seed: 1})
			require.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 4, r.Metadata.BatchSize)
	}
}

func TestServer_RespectsMaxBatchSize(t *testing.T) {
	m := &fakeModel{}
	cfg := Config{MaxBatchSize: 2, MaxDelay: 2 * time.Second, GPUMemGBPerItem: 1, GPUTotalGB: 24}
	s := New(cfg, m)
	require.NoError(t, s.Start(context.Background()))
	waitForReady(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background(), Prompt{OverallPrompt: "x", Duration: 10, Seed: 1})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, size := range m.batchSizes {
		assert.LessOrEqual(t, size, 2)
	}
}

func TestServer_GPUMemoryCeilingCapsBatch(t *testing.T) {
	cfg := Config{MaxBatchSize: 100, MaxDelay: 2 * time.Second, GPUMemGBPerItem: 6, GPUTotalGB: 24}
	assert.Equal(t, 4, cfg.effectiveMaxBatchSize())
}

func TestServer_ModelFailureFailsWholeBatch(t *testing.T) {
	m := &fakeModel{failAll: true}
	cfg := Config{MaxBatchSize: 2, MaxDelay: 50 * time.Millisecond, GPUMemGBPerItem: 1, GPUTotalGB: 24}
	s := New(cfg, m)
	require.NoError(t, s.Start(context.Background()))
	waitForReady(t, s)

	_, err := s.Submit(context.Background(), Prompt{OverallPrompt: "x", Duration: 10})
	require.Error(t, err)
}

func TestServer_CancelledRequestDroppedAtAssembly(t *testing.T) {
	m := &fakeModel{}
	cfg := Config{MaxBatchSize: 4, MaxDelay: 100 * time.Millisecond, GPUMemGBPerItem: 1, GPUTotalGB: 24}
	s := New(cfg, m)
	require.NoError(t, s.Start(context.Background()))
	waitForReady(t, s)

	cancelledCtx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Submit(cancelledCtx, Prompt{OverallPrompt: "x", Duration: 10})
	require.Error(t, err)
}

func TestServer_HealthReflectsState(t *testing.T) {
	m := &fakeModel{}
	cfg := Config{MaxBatchSize: 4, MaxDelay: 50 * time.Millisecond}
	s := New(cfg, m)
	ready, state := s.Health()
	assert.False(t, ready)
	assert.Equal(t, StateCold, state)

	require.NoError(t, s.Start(context.Background()))
	waitForReady(t, s)
	ready, state = s.Health()
	assert.True(t, ready)
	assert.Equal(t, StateReady, state)
}
