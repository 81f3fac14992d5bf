package chaos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
	"bookreplay/internal/source"
	"bookreplay/pkg/exception"
)

func stream(n int) []*schema.MarketBook {
	out := make([]*schema.MarketBook, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, &schema.MarketBook{
			MarketID:       "1.500",
			PublishTime:    int64(1000 * (i + 1)),
			Status:         schema.MarketStatusOpen,
			SecondsToStart: float64(600 - i),
		})
	}
	return append(out, &schema.MarketBook{
		MarketID:    "1.500",
		PublishTime: int64(1000 * (n + 1)),
		Status:      schema.MarketStatusClosed,
	})
}

func run(t *testing.T, cfg Config, books []*schema.MarketBook) []*schema.MarketBook {
	t.Helper()
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	var out []*schema.MarketBook
	for _, b := range books {
		out = append(out, e.Process(b)...)
	}
	return append(out, e.Flush()...)
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
	}{
		{desc: "drop rate", cfg: Config{DropRate: 1.5}},
		{desc: "duplicate rate", cfg: Config{DuplicateRate: -0.1}},
		{desc: "max delay", cfg: Config{MaxDelay: -time.Second}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewEngine(tc.cfg)
			assert.True(t, errors.Is(err, exception.ErrInvalidArgument))
		})
	}
}

func TestNilEnginePassesThrough(t *testing.T) {
	var e *Engine
	b := stream(1)[0]
	assert.Equal(t, []*schema.MarketBook{b}, e.Process(b))
	assert.Nil(t, e.Flush())
}

func TestDropKeepsClose(t *testing.T) {
	out := run(t, Config{Seed: 7, DropRate: 1}, stream(20))
	require.Len(t, out, 1)
	assert.Equal(t, schema.MarketStatusClosed, out[0].Status)
}

func TestDuplicateAll(t *testing.T) {
	out := run(t, Config{Seed: 7, DuplicateRate: 1}, stream(5))
	assert.Len(t, out, 11)
}

func TestReorderIsSeeded(t *testing.T) {
	cfg := Config{Seed: 42, ReorderWindow: 4, MaxDelay: 3 * time.Second}
	a := run(t, cfg, stream(30))
	b := run(t, cfg, stream(30))
	require.Len(t, a, 31)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].PublishTime, b[i].PublishTime)
	}
	assert.Equal(t, schema.MarketStatusClosed, a[len(a)-1].Status)
}

// The source gate must turn a perturbed stream back into a non-decreasing
// one that still ends at the close.
func TestSourceGateRepairsChaos(t *testing.T) {
	out := run(t, Config{Seed: 3, ReorderWindow: 5, DuplicateRate: 0.3, MaxDelay: 2 * time.Second}, stream(50))
	src := source.NewMemorySource(source.Filter{}, out...)

	var (
		last   int64
		closed int
		got    int
	)
	err := src.Stream(context.Background(), "1.500", func(b *schema.MarketBook) error {
		assert.GreaterOrEqual(t, b.PublishTime, last)
		last = b.PublishTime
		got++
		if b.Status == schema.MarketStatusClosed {
			closed++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Greater(t, got, 1)
}
