package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

var decoders = map[string]func(io.Reader) (io.Reader, error){
	EncodingGzip: func(r io.Reader) (io.Reader, error) {
		return gzip.NewReader(r)
	},
	EncodingDeflate: func(r io.Reader) (io.Reader, error) {
		return flate.NewReader(r), nil
	},
	EncodingBrotli: func(r io.Reader) (io.Reader, error) {
		return brotli.NewReader(r), nil
	},
}

// decodeBody replaces resp.Body with a decompressing reader when the
// Content-Encoding is one we understand. Unknown encodings are left alone.
func decodeBody(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get(HeaderContentEncoding)))
	decode, ok := decoders[encoding]
	if !ok {
		return nil
	}
	r, err := decode(resp.Body)
	if err != nil {
		return err
	}

	closers := []io.Closer{resp.Body}
	if c, ok := r.(io.Closer); ok {
		closers = append([]io.Closer{c}, closers...)
	}
	resp.Body = &body{Reader: r, closers: closers}
	resp.Header.Del(HeaderContentEncoding)
	resp.ContentLength = -1
	return nil
}

// capBody makes reads fail with ErrResponseTooLarge once more than limit
// bytes were produced. It wraps the decoded body, so the limit is on the
// decompressed size.
func capBody(resp *http.Response, limit int64) {
	resp.Body = &body{
		Reader:  &cappedReader{r: resp.Body, left: limit},
		closers: []io.Closer{resp.Body},
	}
}

type body struct {
	io.Reader
	closers []io.Closer
}

func (b *body) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type cappedReader struct {
	r    io.Reader
	left int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.left < 0 {
		return 0, ErrResponseTooLarge
	}
	n, err := c.r.Read(p)
	c.left -= int64(n)
	if c.left < 0 {
		return n, ErrResponseTooLarge
	}
	return n, err
}
