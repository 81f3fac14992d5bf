package source

import (
	"bufio"
	"compress/bzip2"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
	"bookreplay/pkg/exception"
)

var extensions = []string{".jsonl.gz", ".jsonl.bz2", ".jsonl"}

// MarketFile is one market's snapshot file.
type MarketFile struct {
	MarketID string
	Path     string
}

// Discover walks dir for market files and returns them sorted by base name.
// The market id is the base name without its extension.
func Discover(dir string) ([]MarketFile, error) {
	var files []MarketFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if id, ok := marketIDFromName(d.Name()); ok {
			files = append(files, MarketFile{MarketID: id, Path: path})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", dir)
	}
	sort.SliceStable(files, func(i, j int) bool {
		return filepath.Base(files[i].Path) < filepath.Base(files[j].Path)
	})
	return files, nil
}

func marketIDFromName(name string) (string, bool) {
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			id := strings.TrimSuffix(name, ext)
			return id, id != ""
		}
	}
	return "", false
}

// FileSource reads markets from JSONL files, one snapshot per line,
// optionally gzip or bzip2 compressed.
type FileSource struct {
	dir    string
	filter Filter
	files  map[string]string
	ids    []string
}

// NewFileSource indexes the market files under dir.
func NewFileSource(dir string, filter Filter) (*FileSource, error) {
	found, err := Discover(dir)
	if err != nil {
		return nil, err
	}
	s := &FileSource{dir: dir, filter: filter, files: make(map[string]string, len(found))}
	for _, f := range found {
		if _, dup := s.files[f.MarketID]; dup {
			continue
		}
		s.files[f.MarketID] = f.Path
		s.ids = append(s.ids, f.MarketID)
	}
	sort.Strings(s.ids)
	return s, nil
}

func (s *FileSource) Markets(context.Context) ([]string, error) {
	return append([]string(nil), s.ids...), nil
}

func (s *FileSource) Stream(ctx context.Context, marketID string, fn func(*schema.MarketBook) error) error {
	path, ok := s.files[marketID]
	if !ok {
		return marketNotFound(marketID)
	}
	return StreamFile(ctx, path, marketID, s.filter, fn)
}

// StreamFile decodes one JSONL market file. A line that fails to decode
// aborts the market with exception.ErrDecodeSnapshot.
func StreamFile(ctx context.Context, path, marketID string, filter Filter, fn func(*schema.MarketBook) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	r, closer, err := decompress(path, f)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	g := newGate(marketID, filter, fn)
	defer g.finish()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		book := &schema.MarketBook{}
		if err := sonic.Unmarshal(raw, book); err != nil {
			return errors.Wrapf(exception.ErrDecodeSnapshot, "%s line %d, err: %+v", path, line, err)
		}
		if book.MarketID != "" && book.MarketID != marketID {
			continue
		}
		book.Normalize()
		if done, err := g.push(book); done || err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(exception.ErrDecodeSnapshot, "%s, err: %+v", path, err)
	}
	return nil
}

func decompress(path string, r io.Reader) (io.Reader, io.Closer, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, errors.Wrapf(exception.ErrDecodeSnapshot, "gzip %s, err: %+v", path, err)
		}
		return zr, zr, nil
	case strings.HasSuffix(path, ".bz2"):
		return bzip2.NewReader(r), nil, nil
	case strings.HasSuffix(path, ".jsonl"):
		return r, nil, nil
	default:
		return nil, nil, errors.Wrapf(exception.ErrUnsupportedCodec, "%s", path)
	}
}

func marketNotFound(marketID string) error {
	return errors.Wrapf(exception.ErrMarketNotFound, "market %s", marketID)
}
