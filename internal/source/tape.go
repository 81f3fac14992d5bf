package source

import (
	"context"
	"os"
	"sort"

	"github.com/yanun0323/errors"

	"bookreplay/internal/recorder"
	"bookreplay/internal/schema"
)

// TapeSource reads markets from recorder tapes. Every market is its own
// tape in dir with the market id as file prefix.
type TapeSource struct {
	dir    string
	filter Filter
}

func NewTapeSource(dir string, filter Filter) *TapeSource {
	return &TapeSource{dir: dir, filter: filter}
}

func (s *TapeSource) Markets(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", s.dir)
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		id, ok := recorder.SegmentPrefix(name)
		if !ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *TapeSource) Stream(ctx context.Context, marketID string, fn func(*schema.MarketBook) error) error {
	g := newGate(marketID, s.filter, fn)
	defer g.finish()

	err := recorder.ReadBooks(ctx, recorder.PlaybackConfig{Dir: s.dir, FilePrefix: marketID}, func(book *schema.MarketBook) error {
		done, err := g.push(book)
		if err != nil {
			return err
		}
		if done {
			return errStop
		}
		return nil
	})
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

var errStop = errors.New("tape stream stopped")
