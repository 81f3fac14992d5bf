package recorder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
)

var ErrClosed = errors.New("tape writer closed")

// Writer appends records to size bounded tape segments. Segment names are
// "<prefix>-<n>.wal" so playback order is the write order.
type Writer struct {
	cfg       Config
	seg       *segmentWriter
	segID     uint64
	seq       uint64
	headerBuf []byte
	closed    bool
}

// NewWriter creates a tape writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", cfg.Dir)
	}
	return &Writer{cfg: cfg, headerBuf: make([]byte, recordHeaderSize)}, nil
}

// AppendBook encodes a snapshot and appends it with the next sequence number.
func (w *Writer) AppendBook(book *schema.MarketBook) error {
	payload, flags, err := EncodeBook(book, w.cfg.Compress)
	if err != nil {
		return err
	}
	header := schema.NewHeader(schema.EventMarketBook, w.seq+1, book.PublishTime)
	header.Flags = flags
	return w.Append(header, payload)
}

// Append writes one record. A zero Seq is replaced by the next sequence
// number.
func (w *Writer) Append(header schema.EventHeader, payload []byte) error {
	if w.closed {
		return ErrClosed
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	if header.Seq == 0 {
		header.Seq = w.seq + 1
	}

	size := int64(recordHeaderSize + len(payload) + recordChecksumSize)
	if w.seg == nil || (w.seg.size > 0 && w.seg.size+size > w.cfg.SegmentMaxBytes) {
		if err := w.closeSegment(); err != nil {
			return err
		}
		if err := w.openSegment(); err != nil {
			return err
		}
	}

	encodeHeader(w.headerBuf, header, len(payload))
	var sum [recordChecksumSize]byte
	binary.LittleEndian.PutUint32(sum[:], checksum(w.headerBuf, payload))
	for _, part := range [][]byte{w.headerBuf, payload, sum[:]} {
		if _, err := w.seg.buf.Write(part); err != nil {
			return errors.Wrapf(err, "write %s", w.seg.path)
		}
	}
	w.seg.size += size
	w.seq = header.Seq
	return nil
}

// Segments returns the number of segment files opened so far.
func (w *Writer) Segments() int { return int(w.segID) }

// Close flushes and closes the current segment.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeSegment()
}

func (w *Writer) openSegment() error {
	w.segID++
	path := filepath.Join(w.cfg.Dir, fmt.Sprintf("%s-%06d.wal", w.cfg.FilePrefix, w.segID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	w.seg = &segmentWriter{
		path: path,
		file: file,
		buf:  bufio.NewWriterSize(file, w.cfg.BufferSize),
	}
	return nil
}

func (w *Writer) closeSegment() error {
	seg := w.seg
	w.seg = nil
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return errors.Wrapf(err, "flush %s", seg.path)
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return errors.Wrapf(err, "sync %s", seg.path)
	}
	return seg.file.Close()
}

type segmentWriter struct {
	path string
	file *os.File
	buf  *bufio.Writer
	size int64
}
