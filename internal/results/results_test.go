package results

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookreplay/internal/schema"
)

func order(id string, profit float64) schema.Order {
	return schema.Order{
		OrderRequest: schema.OrderRequest{
			ID:           id,
			TradeID:      "t-" + id,
			StrategyName: "ev_back",
			MarketID:     "1.500",
			SelectionID:  42,
			Side:         schema.SideBack,
			Price:        3.5,
			Size:         2,
			TradeNotes:   "p=0.4000 ev=0.1600",
		},
		Status:       schema.OrderStatusExecutionComplete,
		SizeMatched:  2,
		PriceMatched: 3.5,
		PlacedAt:     1_700_000_000_000,
		CompletedAt:  1_700_000_001_500,
		Profit:       profit,
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRow(t *testing.T) {
	row := Row(order("b-1", 5))
	require.Len(t, row, len(Header))
	assert.Equal(t, []string{
		"b-1", "ev_back", "1.500", "42", "t-b-1", "2023-11-14 22:13:20.000",
		"3.5", "3.5", "2", "2", "BACK", "1.500", "EXECUTION_COMPLETE", "5",
		"", "p=0.4000 ev=0.1600", "",
	}, row)
}

func TestWriterHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Write([]schema.Order{order("a", 1)}))
	require.NoError(t, w.Close())

	w, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, w.Write([]schema.Order{order("b", -2), order("c", 0)}))
	assert.Equal(t, 2, w.Rows())
	require.NoError(t, w.Close())

	rows := readAll(t, path)
	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "c", rows[3][0])
}

func TestChunkPath(t *testing.T) {
	assert.Equal(t, "out/results-0003.csv", ChunkPath("out/results.csv", 3))
	assert.Equal(t, "out/chunk_0012/results.csv", ChunkPath("out/chunk_{chunk}/results.csv", 12))
	assert.Equal(t, "results-12345", ChunkPath("results", 12345))
}

func TestMergeSkipsMissingChunks(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "c0.csv"),
		filepath.Join(dir, "c1.csv"),
		filepath.Join(dir, "c2.csv"),
		filepath.Join(dir, "c3.csv"),
	}
	for i, ids := range [][]string{{"a", "b"}, nil, {"c"}} {
		if ids == nil {
			continue
		}
		w, err := Open(paths[i])
		require.NoError(t, err)
		for _, id := range ids {
			require.NoError(t, w.Write([]schema.Order{order(id, 1)}))
		}
		require.NoError(t, w.Close())
	}
	require.NoError(t, os.WriteFile(paths[3], []byte("not,a,result\n"), 0o644))

	out := filepath.Join(dir, "merged.csv")
	report, err := Merge(paths, out)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Expected)
	assert.Equal(t, 2, report.Merged)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, []string{paths[1], paths[3]}, report.Missing)

	rows := readAll(t, out)
	require.Len(t, rows, 4)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"a", "b", "c"}, []string{rows[1][0], rows[2][0], rows[3][0]})
}
