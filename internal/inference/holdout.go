package inference

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/yanun0323/errors"

	"bookreplay/internal/market"
	"bookreplay/pkg/exception"
)

// HoldoutRecord is one line of a scored holdout file.
type HoldoutRecord struct {
	MarketID    string `json:"market_id"`
	SelectionID int64  `json:"selection_id"`
	market.Prediction
}

// HoldoutScorer serves predictions computed offline for a held-out set of
// markets. Markets missing from the file get no predictions.
type HoldoutScorer struct {
	predictions map[string]map[int64]market.Prediction
}

// NewHoldoutScorer builds a scorer from in-memory records. Later records for
// the same runner replace earlier ones.
func NewHoldoutScorer(records []HoldoutRecord) *HoldoutScorer {
	s := &HoldoutScorer{predictions: make(map[string]map[int64]market.Prediction)}
	for _, r := range records {
		byRunner, ok := s.predictions[r.MarketID]
		if !ok {
			byRunner = make(map[int64]market.Prediction)
			s.predictions[r.MarketID] = byRunner
		}
		byRunner[r.SelectionID] = r.Prediction
	}
	return s
}

// LoadHoldout reads a JSONL holdout file, gzip compressed when the name ends
// in .gz.
func LoadHoldout(path string) (*HoldoutScorer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(exception.ErrScorerUnavailable, "open holdout %s, err: %+v", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(exception.ErrScorerUnavailable, "gzip holdout %s, err: %+v", path, err)
		}
		defer zr.Close()
		r = zr
	}

	var records []HoldoutRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		var rec HoldoutRecord
		if err := sonic.Unmarshal(raw, &rec); err != nil {
			return nil, errors.Wrapf(exception.ErrScorerUnavailable, "holdout %s line %d, err: %+v", path, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(exception.ErrScorerUnavailable, "read holdout %s, err: %+v", path, err)
	}
	return NewHoldoutScorer(records), nil
}

// Markets returns the number of markets with predictions.
func (s *HoldoutScorer) Markets() int { return len(s.predictions) }

func (s *HoldoutScorer) Score(_ context.Context, req Request) (map[int64]market.Prediction, error) {
	byRunner, ok := s.predictions[req.MarketID]
	if !ok {
		return nil, nil
	}
	out := make(map[int64]market.Prediction, len(req.Features))
	for id := range req.Features {
		if p, ok := byRunner[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
