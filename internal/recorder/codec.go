package recorder

import (
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
	"bookreplay/pkg/exception"
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// EncodeBook serialises a snapshot as a tape payload.
func EncodeBook(book *schema.MarketBook, compress bool) ([]byte, uint16, error) {
	raw, err := sonic.ConfigFastest.Marshal(book)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "marshal market %s", book.MarketID)
	}
	if !compress {
		return raw, 0, nil
	}
	enc, _, err := codecs()
	if err != nil {
		return nil, 0, err
	}
	return enc.EncodeAll(raw, nil), FlagCompressed, nil
}

// DecodeBook parses a snapshot payload written by EncodeBook.
func DecodeBook(header schema.EventHeader, payload []byte) (*schema.MarketBook, error) {
	if header.Type != schema.EventMarketBook {
		return nil, errors.Wrapf(exception.ErrDecodeSnapshot, "event type %s", header.Type)
	}
	raw := payload
	if header.Flags&FlagCompressed != 0 {
		_, dec, err := codecs()
		if err != nil {
			return nil, err
		}
		raw, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, errors.Wrapf(exception.ErrDecodeSnapshot, "zstd seq %d, err: %+v", header.Seq, err)
		}
	}
	book := &schema.MarketBook{}
	if err := sonic.Unmarshal(raw, book); err != nil {
		return nil, errors.Wrapf(exception.ErrDecodeSnapshot, "seq %d, err: %+v", header.Seq, err)
	}
	book.Normalize()
	return book, nil
}
