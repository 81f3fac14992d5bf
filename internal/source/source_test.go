package source

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"bookreplay/internal/recorder"
	"bookreplay/internal/schema"
	"bookreplay/pkg/exception"
)

// bz2Market holds two snapshots of market 1.702: one open, one closed.
const bz2Market = "QlpoOTFBWSZTWYTUsuAAAItfgAAQEAd9kC4l3Yq+b94KMACrAlTVNNMEyPRqaZNGTTABGg1CPSAAMgR6aRoYJowVVNATNKYRpkwTTID0mn6Kbi3hbOp8Ng+3IjSmjiHPcQUggeYlLEJOAnJjBMpICHFh8PAg6hZzLQCMALFYsZY1vd51kOLSOkimc3q7ofzBzdMZK0oGSVZAh3isSuWvydUxTr5HgWKHjexTs7URaVqlnRsU5akUFLMXtKguVWqCpY0TTUooTVlytEkxZI4f4u5IpwoSEJqWXAA="

const jsonlMarket = `{"market_id":"1.701","publish_time":1000,"status":"OPEN","seconds_to_start":900,"runners":[{"selection_id":1,"status":"ACTIVE","available_to_back":[{"price":2.1,"size":5},{"price":2.0,"size":9}]}]}
{"market_id":"1.701","publish_time":2000,"status":"OPEN","seconds_to_start":200,"runners":[{"selection_id":1,"status":"ACTIVE"}]}
{"market_id":"1.701","publish_time":1500,"status":"OPEN","seconds_to_start":150,"runners":[]}

{"market_id":"1.701","publish_time":3000,"status":"OPEN","inplay":true,"seconds_to_start":-5,"runners":[]}
{"market_id":"1.701","publish_time":4000,"status":"CLOSED","inplay":true,"seconds_to_start":-300,"runners":[]}
{"market_id":"1.701","publish_time":5000,"status":"CLOSED","inplay":true,"seconds_to_start":-400,"runners":[]}
`

func collect(t *testing.T, s Source, marketID string) []*schema.MarketBook {
	t.Helper()
	var out []*schema.MarketBook
	require.NoError(t, s.Stream(context.Background(), marketID, func(b *schema.MarketBook) error {
		out = append(out, b)
		return nil
	}))
	return out
}

func publishTimes(books []*schema.MarketBook) []int64 {
	out := make([]int64, len(books))
	for i, b := range books {
		out[i] = b.PublishTime
	}
	return out
}

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.701.jsonl"), []byte(jsonlMarket), 0o644))

	raw, err := base64.StdEncoding.DecodeString(bz2Market)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "1.702.jsonl.bz2"), raw, 0o644))

	f, err := os.Create(filepath.Join(dir, "1.700.jsonl.gz"))
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(`{"market_id":"1.700","publish_time":1,"status":"CLOSED","runners":[]}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644))
	return dir
}

func TestFilterAdmit(t *testing.T) {
	f := Filter{PrePlayOnly: true, MaxSecondsToStart: 300}
	assert.True(t, f.Admit(&schema.MarketBook{Status: schema.MarketStatusOpen, SecondsToStart: 300}))
	assert.False(t, f.Admit(&schema.MarketBook{Status: schema.MarketStatusOpen, SecondsToStart: 301}))
	assert.False(t, f.Admit(&schema.MarketBook{Status: schema.MarketStatusOpen, InPlay: true}))
	assert.True(t, f.Admit(&schema.MarketBook{Status: schema.MarketStatusClosed, InPlay: true, SecondsToStart: 999}))
	assert.True(t, Filter{}.Admit(&schema.MarketBook{Status: schema.MarketStatusOpen, InPlay: true, SecondsToStart: 5000}))
}

func TestDiscover(t *testing.T) {
	dir := writeFixtures(t)
	files, err := Discover(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "1.700", files[0].MarketID)
	assert.Equal(t, "1.701", files[1].MarketID)
	assert.Equal(t, "1.702", files[2].MarketID)
	assert.Equal(t, filepath.Join(dir, "nested", "1.702.jsonl.bz2"), files[2].Path)
}

func TestFileSourceStream(t *testing.T) {
	s, err := NewFileSource(writeFixtures(t), Filter{PrePlayOnly: true, MaxSecondsToStart: 300})
	require.NoError(t, err)

	ids, err := s.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1.700", "1.701", "1.702"}, ids)

	books := collect(t, s, "1.701")
	assert.Equal(t, []int64{2000, 4000}, publishTimes(books))
	assert.Equal(t, schema.MarketStatusClosed, books[len(books)-1].Status)

	books = collect(t, s, "1.702")
	assert.Equal(t, []int64{1000, 2000}, publishTimes(books))
	assert.Equal(t, schema.RunnerStatusWinner, books[1].Runners[0].Status)

	books = collect(t, s, "1.700")
	require.Len(t, books, 1)

	err = s.Stream(context.Background(), "1.999", func(*schema.MarketBook) error { return nil })
	assert.True(t, errors.Is(err, exception.ErrMarketNotFound))
}

func TestFileSourceNormalizesLadders(t *testing.T) {
	s, err := NewFileSource(writeFixtures(t), Filter{})
	require.NoError(t, err)
	books := collect(t, s, "1.701")
	back := books[0].Runners[0].AvailableToBack
	assert.Equal(t, schema.Ladder{{Price: 2.0, Size: 9}, {Price: 2.1, Size: 5}}, back)
	assert.Nil(t, books[0].Runners[0].TradedVolume)
}

func TestFileSourceDecodeError(t *testing.T) {
	dir := t.TempDir()
	content := `{"market_id":"1.800","publish_time":1,"status":"OPEN","runners":[]}` + "\n{broken\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.800.jsonl"), []byte(content), 0o644))
	s, err := NewFileSource(dir, Filter{})
	require.NoError(t, err)

	seen := 0
	err = s.Stream(context.Background(), "1.800", func(*schema.MarketBook) error {
		seen++
		return nil
	})
	assert.True(t, errors.Is(err, exception.ErrDecodeSnapshot))
	assert.Equal(t, 1, seen)
}

func TestMemorySource(t *testing.T) {
	s := NewMemorySource(Filter{},
		&schema.MarketBook{MarketID: "b", PublishTime: 1, Status: schema.MarketStatusOpen},
		&schema.MarketBook{MarketID: "a", PublishTime: 1, Status: schema.MarketStatusOpen},
		&schema.MarketBook{MarketID: "a", PublishTime: 2, Status: schema.MarketStatusClosed},
		&schema.MarketBook{MarketID: "a", PublishTime: 3, Status: schema.MarketStatusOpen},
	)
	ids, err := s.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, []int64{1, 2}, publishTimes(collect(t, s, "a")))

	stop := errors.New("stop")
	err = s.Stream(context.Background(), "a", func(*schema.MarketBook) error { return stop })
	assert.True(t, errors.Is(err, stop))
}

func TestMemorySourceNormalizesLadders(t *testing.T) {
	raw := schema.Ladder{{Price: 3.0, Size: 4}, {Price: 2.5, Size: 7}, {Price: 2.8, Size: 1}}
	s := NewMemorySource(Filter{}, &schema.MarketBook{
		MarketID:    "m",
		PublishTime: 1,
		Status:      schema.MarketStatusOpen,
		Runners:     []schema.RunnerBook{{SelectionID: 1, Status: schema.RunnerStatusActive, TradedVolume: raw}},
	})
	books := collect(t, s, "m")
	require.Len(t, books, 1)
	traded := books[0].Runners[0].TradedVolume
	assert.Equal(t, schema.Ladder{{Price: 2.5, Size: 7}, {Price: 2.8, Size: 1}, {Price: 3.0, Size: 4}}, traded)
	size, ok := traded.SizeAt(2.8)
	assert.True(t, ok)
	assert.Equal(t, 1.0, size)
	assert.Equal(t, 3.0, raw[0].Price, "stored book must stay untouched")
}

func writeTapeMarket(t *testing.T, dir, id string, statuses ...schema.MarketStatus) {
	t.Helper()
	cfg := recorder.DefaultConfig(dir)
	cfg.FilePrefix = id
	w, err := recorder.NewWriter(cfg)
	require.NoError(t, err)
	for i, status := range statuses {
		require.NoError(t, w.AppendBook(&schema.MarketBook{
			MarketID:       id,
			PublishTime:    int64(1000 * (i + 1)),
			Status:         status,
			SecondsToStart: float64(600 - 300*i),
		}))
	}
	require.NoError(t, w.Close())
}

func TestTapeSourceOverlappingIDs(t *testing.T) {
	dir := t.TempDir()
	open, closed := schema.MarketStatusOpen, schema.MarketStatusClosed
	writeTapeMarket(t, dir, "race-1", open, open, closed)
	writeTapeMarket(t, dir, "race-1-b", open, closed)

	s := NewTapeSource(dir, Filter{})
	ids, err := s.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"race-1", "race-1-b"}, ids)

	for id, want := range map[string][]int64{
		"race-1":   {1000, 2000, 3000},
		"race-1-b": {1000, 2000},
	} {
		books := collect(t, s, id)
		assert.Equal(t, want, publishTimes(books), id)
		for _, b := range books {
			assert.Equal(t, id, b.MarketID)
		}
	}
}

func TestTapeSource(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"1.902", "1.901"} {
		cfg := recorder.DefaultConfig(dir)
		cfg.FilePrefix = id
		w, err := recorder.NewWriter(cfg)
		require.NoError(t, err)
		for i, status := range []schema.MarketStatus{schema.MarketStatusOpen, schema.MarketStatusOpen, schema.MarketStatusClosed} {
			require.NoError(t, w.AppendBook(&schema.MarketBook{
				MarketID:       id,
				PublishTime:    int64(1000 * (i + 1)),
				Status:         status,
				SecondsToStart: float64(600 - 300*i),
			}))
		}
		require.NoError(t, w.Close())
	}

	s := NewTapeSource(dir, Filter{MaxSecondsToStart: 400})
	ids, err := s.Markets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1.901", "1.902"}, ids)
	assert.Equal(t, []int64{2000, 3000}, publishTimes(collect(t, s, "1.901")))

	err = s.Stream(context.Background(), "1.999", func(*schema.MarketBook) error { return nil })
	assert.True(t, errors.Is(err, exception.ErrMarketNotFound))
}
