package index

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"

	"github.com/jobala/petrocore/storage/disk"
)

// pageType tags a frame's first byte so a reader can classify a page
// before it knows which concrete Go type to decode the rest into. The
// msgpack body follows the tag byte.
type pageType byte

const (
	invalidPageType pageType = iota
	internalPageType
	leafPageType
)

const pageTypeTagSize = 1

func peekPageType(data []byte) pageType {
	if len(data) == 0 {
		return invalidPageType
	}
	return pageType(data[0])
}

// encodePage msgpack-encodes page into the tagged, zero-padded layout
// every header/internal/leaf page shares on disk.
func encodePage[T any](pt pageType, page T) ([]byte, error) {
	body, err := msgpack.Marshal(page)
	if err != nil {
		return nil, errors.Wrap(err, "index: marshaling page")
	}
	if len(body)+pageTypeTagSize > disk.PageSize {
		return nil, errors.Errorf("index: encoded page is %d bytes, exceeds capacity %d", len(body), disk.PageSize-pageTypeTagSize)
	}

	out := make([]byte, disk.PageSize)
	out[0] = byte(pt)
	copy(out[pageTypeTagSize:], body)
	return out, nil
}

// decodePage reverses encodePage.
func decodePage[T any](data []byte) (T, error) {
	var res T
	if err := msgpack.Unmarshal(data[pageTypeTagSize:], &res); err != nil {
		return res, errors.Wrap(err, "index: unmarshaling page")
	}
	return res, nil
}
