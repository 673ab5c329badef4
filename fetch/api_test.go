package fetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func TestGet_Plain(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "unit-test" {
			t.Errorf("user-agent=%q, want=%q", got, "unit-test")
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer ts.Close()

	body, err := New(Options{UserAgent: "unit-test"}).Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get unexpected err: %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("body=%q, want=%q", body, "hello")
	}
}

func TestGet_ContentEncoding(t *testing.T) {
	payload := []byte(strings.Repeat(`{"prefix":"198.51.100.0/24"},`, 64))

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	zstdBody := enc.EncodeAll(payload, nil)
	_ = enc.Close()

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(payload)
	_ = gw.Close()

	tests := []struct {
		encoding string
		body     []byte
	}{
		{"zstd", zstdBody},
		{"gzip", gz.Bytes()},
		{"", payload},
	}
	for _, tt := range tests {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Accept-Encoding"); got != _acceptEncoding {
				t.Errorf("accept-encoding=%q, want=%q", got, _acceptEncoding)
			}
			if tt.encoding != "" {
				w.Header().Set("Content-Encoding", tt.encoding)
			}
			_, _ = w.Write(tt.body)
		}))
		got, err := New(Options{}).Get(context.Background(), ts.URL)
		ts.Close()
		if err != nil {
			t.Fatalf("encoding %q: unexpected err: %v", tt.encoding, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("encoding %q: decoded body mismatch (%d bytes, want %d)", tt.encoding, len(got), len(payload))
		}
	}
}

func TestGet_Status(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := New(Options{}).Get(context.Background(), ts.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %T: %v", err, err)
	}
	if fe.Code != CodeStatus {
		t.Fatalf("code=%q, want=%q", fe.Code, CodeStatus)
	}
	if fe.Status != http.StatusInternalServerError {
		t.Fatalf("status=%d, want=%d", fe.Status, http.StatusInternalServerError)
	}
}

func TestGet_TooLarge(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 32)))
	}))
	defer ts.Close()

	_, err := New(Options{MaxBytes: 10}).Get(context.Background(), ts.URL)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Code != CodeTooLarge {
		t.Fatalf("err=%v, want code %q", err, CodeTooLarge)
	}
}

func TestGet_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer ts.Close()

	_, err := New(Options{Timeout: 50 * time.Millisecond}).Get(context.Background(), ts.URL)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Code != CodeTimeout {
		t.Fatalf("err=%v, want code %q", err, CodeTimeout)
	}
}

func TestGet_UnsupportedScheme(t *testing.T) {
	_, err := New(Options{}).Get(context.Background(), "file:///etc/passwd")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Code != CodeInvalid {
		t.Fatalf("err=%v, want code %q", err, CodeInvalid)
	}
}

func TestGetJSON_Malformed(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer ts.Close()

	var v map[string]any
	err := New(Options{}).GetJSON(context.Background(), ts.URL, &v)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Code != CodeMalformed {
		t.Fatalf("err=%v, want code %q", err, CodeMalformed)
	}
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v, want errors.Is ErrMalformed", err)
	}
}

func TestUnpack(t *testing.T) {
	payload := []byte(strings.Repeat("1.0.0.0\t1.0.0.255\t13335\tUS\tCLOUDFLARENET\n", 32))
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(payload)
	_ = gw.Close()

	got, err := Unpack("https://example.test/ip2asn.tsv.gz", gz.Bytes(), 1<<20)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("gz: err=%v, %d bytes", err, len(got))
	}
	if got, _ := Unpack("https://example.test/ip2asn.tsv", payload, 1); !bytes.Equal(got, payload) {
		t.Fatalf("plain name must pass through untouched")
	}
	var fe *FetchError
	if _, err := Unpack("x.gz", gz.Bytes(), 16); !errors.As(err, &fe) || fe.Code != CodeTooLarge {
		t.Fatalf("err=%v, want CodeTooLarge", err)
	}
	if _, err := Unpack("x.gz", payload, 1<<20); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err=%v, want ErrMalformed", err)
	}
}
