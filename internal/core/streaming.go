package core

// streaming.go wraps source readers for the row pass.
//
//   - bomSkippingReader: drops a leading UTF-8 BOM (0xEF 0xBB 0xBF), opt-in
//     through Options.StripBOM
//   - countingReader: tracks bytes consumed for the run summary
//
// Neither buffers more than a few bytes, so a pass stays streaming.

import (
	"bytes"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkippingReader removes the UTF-8 BOM from the start of a stream.
type bomSkippingReader struct {
	r       io.Reader
	checked bool
	pending []byte // bytes read during the check that were not a BOM
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{r: r}
}

func (b *bomSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true

		var head [3]byte
		n, err := io.ReadFull(b.r, head[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if n == len(utf8BOM) && bytes.Equal(head[:], utf8BOM) {
			n = 0
		}
		b.pending = append(b.pending, head[:n]...)
	}

	if len(b.pending) > 0 {
		n := copy(p, b.pending)
		b.pending = b.pending[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// wrapSource applies the configured reader transforms. BOM stripping comes
// first so the counter sees the bytes the scanner sees.
func wrapSource(r io.Reader, stripBOM bool) *countingReader {
	if stripBOM {
		r = newBOMSkippingReader(r)
	}
	return &countingReader{r: r}
}
