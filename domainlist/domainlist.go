// Package domainlist loads remote domain lists for geosite categories.
package domainlist

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/netip"
	"strings"

	"golang.org/x/net/publicsuffix"

	"paepcke.de/asn2srs/fetch"
)

// formats
const (
	FormatHosts = "hosts" // one name per line, '#' comments, hosts-file lines allowed
	FormatJSON  = "json"  // flat JSON array of names
)

// Source ...
type Source struct {
	URL    string
	Format string
	// Registrable reduces every name to its registrable domain (eTLD+1).
	Registrable bool
}

// Loader ...
type Loader struct {
	Client *fetch.Client
}

// Load fetches and parses src. Transport and decode failures are *fetch.FetchError.
func (l *Loader) Load(ctx context.Context, src Source) ([]string, error) {
	body, err := l.Client.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	var names []string
	switch src.Format {
	case FormatJSON:
		if err := json.Unmarshal(body, &names); err != nil {
			return nil, fetch.Malformed(src.URL, err)
		}
	default:
		if names, err = ParseHosts(body); err != nil {
			return nil, fetch.Malformed(src.URL, err)
		}
	}
	if src.Registrable {
		names = Registrable(names)
	}
	return names, nil
}

// ParseHosts extracts names from a plain list or hosts file. A line longer
// than the scan buffer fails the whole list.
func ParseHosts(data []byte) ([]string, error) {
	var out []string
	s := bufio.NewScanner(bytes.NewReader(data))
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		switch len(fields) {
		case 0:
			continue
		case 1:
			out = append(out, fields[0])
		default:
			// "0.0.0.0 name [alias...]"
			if _, err := netip.ParseAddr(fields[0]); err != nil {
				out = append(out, fields[0])
				continue
			}
			out = append(out, fields[1:]...)
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Registrable maps names to their registrable domain, dropping names that
// have none (bare public suffixes, single labels).
func Registrable(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.Trim(strings.ToLower(strings.TrimSpace(n)), ".")
		if n == "" {
			continue
		}
		d, err := publicsuffix.EffectiveTLDPlusOne(n)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}
