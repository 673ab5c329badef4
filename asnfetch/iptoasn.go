package asnfetch

import (
	"bufio"
	"bytes"
	"context"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"paepcke.de/asn2srs/fetch"
	"paepcke.de/asn2srs/range2cidr"
)

const (
	_tab       = "\t"
	_tsvFields = 5
	_maxDump   = 512 * 1024 * 1024 // inflated ip2asn-combined.tsv is ~30 MiB
	_lineSize  = 256
	_maxLine   = 64 * 1024
)

//
// iptoasn.com ip2asn-combined tsv dump
//
//   range_start  range_end  as_number  country_code  as_description
//

type iptoasn struct {
	url    string
	c      *fetch.Client
	log    logrus.FieldLogger
	loaded bool
	byASN  map[uint32][]Announced
	holder map[uint32]string
}

// load downloads and indexes the dump once per run.
func (t *iptoasn) load(ctx context.Context) error {
	if t.loaded {
		return nil
	}
	body, err := t.c.Get(ctx, t.url)
	if err != nil {
		return err
	}
	if body, err = fetch.Unpack(t.url, body, _maxDump); err != nil {
		return err
	}
	byASN, holder, skipped, err := parseTSV(body)
	if err != nil {
		return fetch.Malformed(t.url, err)
	}
	if len(byASN) == 0 {
		return fetch.Malformed(t.url, errStatus("empty dump"))
	}
	if skipped > 0 {
		t.log.WithField("url", t.url).Warnf("%d unparsable line(s) skipped", skipped)
	}
	t.byASN, t.holder, t.loaded = byASN, holder, true
	return nil
}

// parseTSV indexes routed ranges by AS number. AS 0 marks unrouted space.
// A line the scanner cannot hold fails the whole dump.
func parseTSV(data []byte) (byASN map[uint32][]Announced, holder map[uint32]string, skipped int, err error) {
	byASN = make(map[uint32][]Announced, 1<<16)
	holder = make(map[uint32]string, 1<<16)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, _lineSize), _maxLine)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		s := strings.Split(line, _tab)
		if len(s) != _tsvFields {
			skipped++
			continue
		}
		asn, err := strconv.ParseUint(s[2], 10, 32)
		if err != nil {
			skipped++
			continue
		}
		if asn == 0 {
			continue
		}
		from, err1 := netip.ParseAddr(s[0])
		to, err2 := netip.ParseAddr(s[1])
		if err1 != nil || err2 != nil {
			skipped++
			continue
		}
		prefixes, err := range2cidr.Prefixes(from, to)
		if err != nil {
			skipped++
			continue
		}
		n := uint32(asn)
		holder[n] = s[4]
		for _, p := range prefixes {
			byASN[n] = append(byASN[n], Announced{Prefix: p, Description: s[4]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, 0, err
	}
	return byASN, holder, skipped, nil
}

func (t *iptoasn) prefixes(ctx context.Context, asn uint32) ([]Announced, error) {
	if err := t.load(ctx); err != nil {
		return nil, err
	}
	return t.byASN[asn], nil
}

// search matches the holder name case-insensitively, as the owner query of
// the pf table generator did.
func (t *iptoasn) search(ctx context.Context, term string) ([]uint32, error) {
	if err := t.load(ctx); err != nil {
		return nil, err
	}
	term = strings.ToLower(term)
	var out []uint32
	for asn, h := range t.holder {
		if strings.Contains(strings.ToLower(h), term) {
			out = append(out, asn)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (t *iptoasn) describe(_ context.Context, a Announced) (string, error) {
	return a.Description, nil
}
