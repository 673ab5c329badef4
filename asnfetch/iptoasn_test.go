package asnfetch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"paepcke.de/asn2srs/fetch"
)

const dump = "0.0.0.0\t0.255.255.255\t0\tNone\tNot routed\n" +
	"198.51.100.0\t198.51.100.255\t29789\tDE\tREFLECTED - Reflected Networks\n" +
	"2001:db8::\t2001:db8:ffff:ffff:ffff:ffff:ffff:ffff\t29789\tDE\tREFLECTED - Reflected Networks\n" +
	"10.0.0.0\t10.0.0.2\t64501\tUS\tEXAMPLE-AS Example Corp\n" +
	"this line is garbage\n"

func newDump(t *testing.T, hits *atomic.Int32) string {
	t.Helper()
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(dump))
	_ = gw.Close()

	r := chi.NewRouter()
	r.Get("/data/ip2asn-combined.tsv.gz", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(gz.Bytes())
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts.URL + "/data/ip2asn-combined.tsv.gz"
}

func TestIPtoASN_CollectAndSearch(t *testing.T) {
	var hits atomic.Int32
	f := newFetcher(t, ProviderIPtoASN, newDump(t, &hits))
	ctx := context.Background()

	got, err := f.Collect(ctx, Query{Search: "reflected", IPv4: true})
	if err != nil {
		t.Fatalf("Collect unexpected err: %v", err)
	}
	if diff := cmp.Diff([]string{"198.51.100.0/24"}, prefixStrings(got)); diff != "" {
		t.Fatalf("Collect mismatch (-want +got):\n%s", diff)
	}

	got, err = f.Collect(ctx, Query{ASNs: []uint32{29789, 64501}, DescriptionFilter: "example corp", IPv4: true, IPv6: true})
	if err != nil {
		t.Fatalf("Collect unexpected err: %v", err)
	}
	if diff := cmp.Diff([]string{"10.0.0.0/31", "10.0.0.2/32"}, prefixStrings(got)); diff != "" {
		t.Fatalf("Collect filter mismatch (-want +got):\n%s", diff)
	}

	asns, err := f.Search(ctx, "example")
	if err != nil || !cmp.Equal(asns, []uint32{64501}) {
		t.Fatalf("Search=%v err=%v", asns, err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("dump downloaded %d times, want 1", n)
	}
}

func TestIPtoASN_UnknownASN(t *testing.T) {
	var hits atomic.Int32
	f := newFetcher(t, ProviderIPtoASN, newDump(t, &hits))
	got, err := f.Prefixes(context.Background(), 0)
	if err != nil || len(got) != 0 {
		t.Fatalf("unrouted space must not map to an asn: %v %v", got, err)
	}
}

func TestIPtoASN_DownloadFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()
	f := newFetcher(t, ProviderIPtoASN, ts.URL+"/ip2asn-combined.tsv.gz")
	var fe *fetch.FetchError
	if _, err := f.Prefixes(context.Background(), 29789); !errors.As(err, &fe) || fe.Status != http.StatusServiceUnavailable {
		t.Fatalf("err=%v, want FetchError status 503", err)
	}
}

func TestParseTSV_Skipped(t *testing.T) {
	byASN, holder, skipped, err := parseTSV([]byte(dump))
	if err != nil {
		t.Fatalf("parseTSV unexpected err: %v", err)
	}
	if skipped != 1 {
		t.Fatalf("skipped=%d, want 1", skipped)
	}
	if len(byASN[29789]) != 2 || holder[64501] != "EXAMPLE-AS Example Corp" {
		t.Fatalf("index = %v / %v", byASN, holder)
	}
	if _, ok := byASN[0]; ok {
		t.Fatalf("AS 0 must be dropped")
	}
}

const longLineDump = "198.51.100.0\t198.51.100.255\t29789\tDE\tREFLECTED - Reflected Networks\n"

func TestParseTSV_LongLine(t *testing.T) {
	data := longLineDump + strings.Repeat("x", 70*1024) + "\n" +
		"8.8.8.0\t8.8.8.255\t15169\tUS\tGOOGLE\n"
	byASN, _, _, err := parseTSV([]byte(data))
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("err=%v, want bufio.ErrTooLong", err)
	}
	if byASN != nil {
		t.Fatalf("partial index returned: %v", byASN)
	}
}

func TestIPtoASN_LongLineFailsClosed(t *testing.T) {
	data := longLineDump + strings.Repeat("x", 70*1024) + "\n" +
		"8.8.8.0\t8.8.8.255\t15169\tUS\tGOOGLE\n"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(data))
	}))
	defer ts.Close()

	f := newFetcher(t, ProviderIPtoASN, ts.URL+"/ip2asn-combined.tsv")
	var fe *fetch.FetchError
	got, err := f.Prefixes(context.Background(), 29789)
	if !errors.As(err, &fe) || fe.Code != fetch.CodeMalformed {
		t.Fatalf("err=%v, want malformed fetch error", err)
	}
	if got != nil {
		t.Fatalf("got %v from a truncated dump", got)
	}
}
