package fetch

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// _acceptEncoding is announced on every request, best first.
const _acceptEncoding = "zstd, gzip"

var errUnsupportedEncoding = errors.New("unsupported content-encoding")

// decodeBody wraps r according to the response Content-Encoding header.
// The returned close func releases decoder resources, never the body itself.
func decodeBody(encoding string, r io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return r, func() {}, nil
	case "zstd":
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	case "gzip", "x-gzip":
		g, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Close() }, nil
	}
	return nil, nil, errors.Join(errUnsupportedEncoding, errors.New(encoding))
}

// Unpack inflates a downloaded archive by its file suffix (.gz, .zst), other
// names pass through. max caps the inflated size.
func Unpack(rawURL string, body []byte, max int64) ([]byte, error) {
	var encoding string
	switch name := strings.ToLower(rawURL); {
	case strings.HasSuffix(name, ".gz"):
		encoding = "gzip"
	case strings.HasSuffix(name, ".zst"):
		encoding = "zstd"
	default:
		return body, nil
	}
	r, release, err := decodeBody(encoding, bytes.NewReader(body))
	if err != nil {
		return nil, Malformed(rawURL, err)
	}
	defer release()
	out, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, Malformed(rawURL, err)
	}
	if int64(len(out)) > max {
		return nil, &FetchError{Code: CodeTooLarge, URL: rawURL}
	}
	return out, nil
}
