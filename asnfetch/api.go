// Package asnfetch queries public ASN lookup services for announced prefixes.
package asnfetch

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"paepcke.de/asn2srs/fetch"
)

// providers
const (
	ProviderRIPEstat = "ripestat"
	ProviderBGPView  = "bgpview"
	ProviderIPtoASN  = "iptoasn" // offline dump, one download per run
)

// defaults
const (
	_DEFAULT_RIPESTAT = "https://stat.ripe.net"
	_DEFAULT_BGPVIEW  = "https://api.bgpview.io"
	_DEFAULT_IPTOASN  = "https://iptoasn.com/data/ip2asn-combined.tsv.gz"
	_DEFAULT_DELAY    = time.Second
)

// ErrUnknownProvider ...
var ErrUnknownProvider = errors.New("unknown asn lookup provider")

// Announced is one prefix as reported upstream.
type Announced struct {
	Prefix      netip.Prefix
	Description string // empty when the provider does not report one
}

// Query describes the prefix set of one rule category.
type Query struct {
	ASNs              []uint32 // explicit AS numbers
	Search            string   // holder search term, resolved to further AS numbers
	DescriptionFilter string   // keep only prefixes whose holder|description contains this
	IPv4              bool
	IPv6              bool
}

// Options ...
type Options struct {
	Provider string        // ripestat (default) | bgpview | iptoasn
	BaseURL  string        // override provider endpoint, the dump url for iptoasn
	Delay    time.Duration // politeness wait before each upstream request, <0 disables
	Client   *fetch.Client
	Logger   logrus.FieldLogger
}

// Fetcher ...
type Fetcher struct {
	api    provider
	lookup bool // descriptions need an extra request per prefix
	delay  time.Duration
	log    logrus.FieldLogger
}

// provider is one upstream api flavour.
type provider interface {
	prefixes(ctx context.Context, asn uint32) ([]Announced, error)
	search(ctx context.Context, term string) ([]uint32, error)
	describe(ctx context.Context, a Announced) (string, error)
}

// New ...
func New(opt Options) (*Fetcher, error) {
	if opt.Client == nil {
		opt.Client = fetch.New(fetch.Options{})
	}
	if opt.Logger == nil {
		opt.Logger = logrus.StandardLogger()
	}
	if opt.Delay == 0 {
		opt.Delay = _DEFAULT_DELAY
	}
	f := &Fetcher{delay: opt.Delay, log: opt.Logger.WithField("component", "asnfetch")}
	switch strings.ToLower(opt.Provider) {
	case "", ProviderRIPEstat:
		f.api = &ripestat{base: baseURL(opt.BaseURL, _DEFAULT_RIPESTAT), c: opt.Client}
		f.lookup = true
	case ProviderBGPView:
		f.api = &bgpview{base: baseURL(opt.BaseURL, _DEFAULT_BGPVIEW), c: opt.Client}
	case ProviderIPtoASN:
		dump := opt.BaseURL
		if dump == "" {
			dump = _DEFAULT_IPTOASN
		}
		f.api = &iptoasn{url: dump, c: opt.Client, log: f.log}
		f.delay = -1
	default:
		return nil, errors.Join(ErrUnknownProvider, errors.New(opt.Provider))
	}
	return f, nil
}

// Prefixes returns the prefixes currently announced by asn.
func (f *Fetcher) Prefixes(ctx context.Context, asn uint32) ([]Announced, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.api.prefixes(ctx, asn)
}

// Search returns the AS numbers whose holder matches term.
func (f *Fetcher) Search(ctx context.Context, term string) ([]uint32, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.api.search(ctx, term)
}

// Collect resolves q into a flat prefix list. The first upstream failure
// aborts the whole collection, nothing partial is returned.
func (f *Fetcher) Collect(ctx context.Context, q Query) ([]netip.Prefix, error) {
	asns := slices.Clone(q.ASNs)
	if q.Search != "" {
		found, err := f.Search(ctx, q.Search)
		if err != nil {
			return nil, err
		}
		f.log.WithField("search", q.Search).Infof("%d asn(s) found", len(found))
		asns = append(asns, found...)
	}
	slices.Sort(asns)
	asns = slices.Compact(asns)

	filter := strings.ToLower(q.DescriptionFilter)
	var out []netip.Prefix
	for _, asn := range asns {
		announced, err := f.Prefixes(ctx, asn)
		if err != nil {
			return nil, err
		}
		kept := 0
		for _, a := range announced {
			if !familyMatch(a.Prefix, q.IPv4, q.IPv6) {
				continue
			}
			if filter != "" {
				desc, err := f.describe(ctx, a)
				if err != nil {
					return nil, err
				}
				if !strings.Contains(strings.ToLower(desc), filter) {
					continue
				}
			}
			out = append(out, a.Prefix)
			kept++
		}
		f.log.WithField("asn", FormatASN(asn)).Infof("%d of %d prefix(es) kept", kept, len(announced))
	}
	return out, nil
}

// describe ...
func (f *Fetcher) describe(ctx context.Context, a Announced) (string, error) {
	if a.Description != "" || !f.lookup {
		return a.Description, nil
	}
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	return f.api.describe(ctx, a)
}

// ParseASN accepts "AS29789", "as29789" and "29789".
func ParseASN(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if len(s) > 2 && strings.EqualFold(s[:2], "as") {
		s = s[2:]
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.New("[asnfetch] invalid asn [" + s + "] [asn(s) are numbers only]")
	}
	return uint32(n), nil
}

// FormatASN ...
func FormatASN(asn uint32) string { return "AS" + strconv.FormatUint(uint64(asn), 10) }
