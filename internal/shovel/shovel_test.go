package shovel

import (
	"context"
	"testing"
	"time"
)

type fakeProcessor struct {
	name      string
	processed []uint64
	failAt    uint64
	failErr   error
}

func (f *fakeProcessor) Name() string { return f.name }
func (f *fakeProcessor) ProcessBlock(ctx context.Context, blockNumber uint64) error {
	if f.failAt != 0 && blockNumber == f.failAt {
		return f.failErr
	}
	f.processed = append(f.processed, blockNumber)
	return nil
}

func TestNextBlockUsesStartBlockWhenNoCheckpoint(t *testing.T) {
	r := &Runtime{
		proc: &fakeProcessor{name: "test"},
		readCheckpoint: func(ctx context.Context, shovel string) (uint64, bool, error) {
			return 0, false, nil
		},
		cfg: Config{StartBlock: 100},
	}
	got, err := r.nextBlock(context.Background())
	if err != nil {
		t.Fatalf("nextBlock: %v", err)
	}
	if got != 100 {
		t.Fatalf("nextBlock = %d, want 100", got)
	}
}

func TestNextBlockContinuesFromCheckpoint(t *testing.T) {
	r := &Runtime{
		proc: &fakeProcessor{name: "test"},
		readCheckpoint: func(ctx context.Context, shovel string) (uint64, bool, error) {
			return 42, true, nil
		},
		cfg: Config{StartBlock: 100},
	}
	got, err := r.nextBlock(context.Background())
	if err != nil {
		t.Fatalf("nextBlock: %v", err)
	}
	if got != 43 {
		t.Fatalf("nextBlock = %d, want 43", got)
	}
}

func TestWaitForDependenciesReturnsOnceAllCaughtUp(t *testing.T) {
	calls := map[string]int{}
	r := &Runtime{
		readCheckpoint: func(ctx context.Context, shovel string) (uint64, bool, error) {
			calls[shovel]++
			if calls[shovel] < 2 {
				return 5, true, nil
			}
			return 20, true, nil
		},
		cfg: Config{Dependencies: []string{"stake_map"}, DependencyPollInterval: time.Millisecond},
	}
	if err := r.waitForDependencies(context.Background(), 10); err != nil {
		t.Fatalf("waitForDependencies: %v", err)
	}
	if calls["stake_map"] != 2 {
		t.Fatalf("polled dependency %d times, want 2", calls["stake_map"])
	}
}

func TestWaitForDependenciesReturnsImmediatelyWhenNoDependencies(t *testing.T) {
	r := &Runtime{cfg: Config{}}
	if err := r.waitForDependencies(context.Background(), 10); err != nil {
		t.Fatalf("waitForDependencies: %v", err)
	}
}

func TestWaitForDependenciesReturnsContextErrOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runtime{
		readCheckpoint: func(ctx context.Context, shovel string) (uint64, bool, error) {
			return 0, false, nil
		},
		cfg: Config{Dependencies: []string{"x"}, DependencyPollInterval: time.Millisecond},
	}
	if err := r.waitForDependencies(ctx, 10); err == nil {
		t.Fatalf("expected context error")
	}
}
