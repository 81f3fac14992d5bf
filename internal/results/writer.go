package results

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
)

// Header is the column order of a result file.
var Header = []string{
	"bet_id",
	"strategy_name",
	"market_id",
	"selection_id",
	"trade_id",
	"date_time_placed",
	"price",
	"price_matched",
	"size",
	"size_matched",
	"side",
	"elapsed_seconds_executable",
	"order_status",
	"profit",
	"market_note",
	"trade_notes",
	"order_notes",
}

const timeLayout = "2006-01-02 15:04:05.000"

// Row renders a terminal order as one result line.
func Row(o schema.Order) []string {
	elapsed := ""
	if o.CompletedAt > 0 && o.PlacedAt > 0 {
		elapsed = strconv.FormatFloat(float64(o.CompletedAt-o.PlacedAt)/1000, 'f', 3, 64)
	}
	placed := ""
	if o.PlacedAt > 0 {
		placed = time.UnixMilli(o.PlacedAt).UTC().Format(timeLayout)
	}
	return []string{
		o.ID,
		o.StrategyName,
		o.MarketID,
		strconv.FormatInt(o.SelectionID, 10),
		o.TradeID,
		placed,
		formatFloat(o.Price),
		formatFloat(o.PriceMatched),
		formatFloat(o.Size),
		formatFloat(o.SizeMatched),
		string(o.Side),
		elapsed,
		string(o.Status),
		formatFloat(o.Profit),
		o.MarketNote,
		o.TradeNotes,
		o.OrderNotes,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Writer appends result rows to one file. The header is written only when
// the file is empty.
type Writer struct {
	path string
	f    *os.File
	w    *csv.Writer
	rows int
}

// Open opens path for appending, creating parent directories as needed.
func Open(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	w := &Writer{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := w.w.Write(Header); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "write header %s", path)
		}
		w.w.Flush()
	}
	return w, w.w.Error()
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Rows returns the number of rows written through this writer.
func (w *Writer) Rows() int { return w.rows }

// Write appends one row per order and flushes.
func (w *Writer) Write(orders []schema.Order) error {
	for _, o := range orders {
		if err := w.w.Write(Row(o)); err != nil {
			return errors.Wrapf(err, "write %s", w.path)
		}
		w.rows++
	}
	w.w.Flush()
	return w.w.Error()
}

func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// ChunkPath expands a result path pattern for one chunk. "{chunk}" is
// replaced by the zero padded chunk index; a pattern without it gets the
// index appended before the extension.
func ChunkPath(pattern string, chunk int) string {
	idx := strconv.Itoa(chunk)
	if len(idx) < 4 {
		idx = strings.Repeat("0", 4-len(idx)) + idx
	}
	if strings.Contains(pattern, "{chunk}") {
		return strings.ReplaceAll(pattern, "{chunk}", idx)
	}
	ext := filepath.Ext(pattern)
	return strings.TrimSuffix(pattern, ext) + "-" + idx + ext
}
