package asnfetch

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"paepcke.de/asn2srs/fetch"
)

// wait sleeps the politeness delay, or returns early on cancel.
func (f *Fetcher) wait(ctx context.Context) error {
	if f.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(f.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// familyMatch ...
func familyMatch(p netip.Prefix, ip4, ip6 bool) bool {
	if p.Addr().Is4() {
		return ip4
	}
	return ip6
}

// baseURL ...
func baseURL(override, def string) string {
	if override == "" {
		return def
	}
	return strings.TrimRight(override, "/")
}

// parsePrefix turns an upstream prefix string into a canonical prefix.
func parsePrefix(url, s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return netip.Prefix{}, fetch.Malformed(url, err)
	}
	return p.Masked(), nil
}

// checkStatus ...
func checkStatus(url, status string) error {
	if status != "ok" {
		return fetch.Malformed(url, errStatus(status))
	}
	return nil
}

type errStatus string

func (e errStatus) Error() string { return "upstream status [" + string(e) + "]" }
