package hardware

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
)

var (
	ErrNoCores = errors.New("host reported no logical cores")
)

// CoreCounter reports the host's logical and physical core counts.
type CoreCounter interface {
	Counts(ctx context.Context) (logical, physical int, err error)
}

// Host reads core counts from the running machine. Every call re-queries
// the OS; nothing is cached.
type Host struct{}

// NewHost returns a CoreCounter backed by gopsutil.
func NewHost() *Host {
	return &Host{}
}

// Counts returns the logical and physical core counts. A host whose
// physical topology cannot be read reports its logical count for both.
func (h *Host) Counts(ctx context.Context) (int, int, error) {
	logical, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, 0, fmt.Errorf("logical cores: %w", err)
	}
	if logical <= 0 {
		return 0, 0, ErrNoCores
	}

	physical, err := cpu.CountsWithContext(ctx, false)
	if err != nil || physical <= 0 {
		physical = logical
	}
	return logical, physical, nil
}

// CounterFunc adapts a plain function to CoreCounter.
type CounterFunc func(ctx context.Context) (int, int, error)

func (f CounterFunc) Counts(ctx context.Context) (int, int, error) {
	return f(ctx)
}
