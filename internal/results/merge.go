package results

import (
	"encoding/csv"
	"io"
	"os"
	"slices"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// MergeReport describes a merge. Missing lists chunk files that did not
// exist or could not be read; Expected - Merged == len(Missing).
type MergeReport struct {
	Expected int
	Merged   int
	Rows     int
	Missing  []string
}

// Merge concatenates chunk result files into out in the given order. A
// missing or unreadable chunk is skipped and reported, never fatal.
func Merge(paths []string, out string) (MergeReport, error) {
	report := MergeReport{Expected: len(paths)}

	w, err := Open(out)
	if err != nil {
		return report, err
	}
	defer w.Close()

	for _, p := range paths {
		rows, err := readRows(p)
		if err != nil {
			logs.Warnf("merge skip %s, err: %+v", p, err)
			report.Missing = append(report.Missing, p)
			continue
		}
		for _, row := range rows {
			if err := w.w.Write(row); err != nil {
				return report, errors.Wrapf(err, "write %s", out)
			}
		}
		report.Merged++
		report.Rows += len(rows)
	}
	w.w.Flush()
	return report, w.w.Error()
}

func readRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)
	head, err := r.Read()
	if err == io.EOF {
		return nil, errors.Errorf("%s is empty", path)
	}
	if err != nil {
		return nil, err
	}
	if !slices.Equal(head, Header) {
		return nil, errors.Errorf("%s has an unexpected header", path)
	}
	return r.ReadAll()
}
