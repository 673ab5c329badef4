package asnfetch

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"paepcke.de/asn2srs/fetch"
)

//
// RIPEstat data api
//

type ripestat struct {
	base string
	c    *fetch.Client
}

type ripeAnnounced struct {
	Status string `json:"status"`
	Data   struct {
		Prefixes []struct {
			Prefix string `json:"prefix"`
		} `json:"prefixes"`
	} `json:"data"`
}

type ripeSearch struct {
	Status string `json:"status"`
	Data   struct {
		Categories []struct {
			Category    string `json:"category"`
			Suggestions []struct {
				Value string `json:"value"`
			} `json:"suggestions"`
		} `json:"categories"`
	} `json:"data"`
}

type ripeOverview struct {
	Status string `json:"status"`
	Data   struct {
		ASNs []struct {
			Holder string `json:"holder"`
		} `json:"asns"`
		Block struct {
			Desc string `json:"desc"`
		} `json:"block"`
	} `json:"data"`
}

func (r *ripestat) url(endpoint, resource string) string {
	return r.base + "/data/" + endpoint + "/data.json?resource=" + url.QueryEscape(resource)
}

func (r *ripestat) prefixes(ctx context.Context, asn uint32) ([]Announced, error) {
	u := r.url("announced-prefixes", FormatASN(asn))
	var resp ripeAnnounced
	if err := r.c.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(u, resp.Status); err != nil {
		return nil, err
	}
	out := make([]Announced, 0, len(resp.Data.Prefixes))
	for _, p := range resp.Data.Prefixes {
		prefix, err := parsePrefix(u, p.Prefix)
		if err != nil {
			return nil, err
		}
		out = append(out, Announced{Prefix: prefix})
	}
	return out, nil
}

func (r *ripestat) search(ctx context.Context, term string) ([]uint32, error) {
	u := r.url("searchcomplete", term)
	var resp ripeSearch
	if err := r.c.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(u, resp.Status); err != nil {
		return nil, err
	}
	var out []uint32
	for _, cat := range resp.Data.Categories {
		if cat.Category != "ASNs" {
			continue
		}
		for _, s := range cat.Suggestions {
			if !strings.HasPrefix(s.Value, "AS") {
				continue
			}
			asn, err := ParseASN(s.Value)
			if err != nil {
				return nil, fetch.Malformed(u, err)
			}
			out = append(out, asn)
		}
	}
	return out, nil
}

// describe asks prefix-overview for holder and block description.
func (r *ripestat) describe(ctx context.Context, a Announced) (string, error) {
	u := r.url("prefix-overview", a.Prefix.String())
	var resp ripeOverview
	if err := r.c.GetJSON(ctx, u, &resp); err != nil {
		return "", err
	}
	if err := checkStatus(u, resp.Status); err != nil {
		return "", err
	}
	desc := resp.Data.Block.Desc
	if len(resp.Data.ASNs) > 0 {
		desc = resp.Data.ASNs[0].Holder + " " + desc
	}
	return desc, nil
}

//
// BGPView compatible api
//

type bgpview struct {
	base string
	c    *fetch.Client
}

type bgpPrefix struct {
	Prefix      string `json:"prefix"`
	Description string `json:"description"`
}

type bgpPrefixes struct {
	Status string `json:"status"`
	Data   struct {
		IPv4 []bgpPrefix `json:"ipv4_prefixes"`
		IPv6 []bgpPrefix `json:"ipv6_prefixes"`
	} `json:"data"`
}

type bgpSearch struct {
	Status string `json:"status"`
	Data   struct {
		ASNs []struct {
			ASN uint32 `json:"asn"`
		} `json:"asns"`
	} `json:"data"`
}

func (b *bgpview) prefixes(ctx context.Context, asn uint32) ([]Announced, error) {
	u := b.base + "/asn/" + strconv.FormatUint(uint64(asn), 10) + "/prefixes"
	var resp bgpPrefixes
	if err := b.c.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(u, resp.Status); err != nil {
		return nil, err
	}
	out := make([]Announced, 0, len(resp.Data.IPv4)+len(resp.Data.IPv6))
	for _, list := range [][]bgpPrefix{resp.Data.IPv4, resp.Data.IPv6} {
		for _, p := range list {
			prefix, err := parsePrefix(u, p.Prefix)
			if err != nil {
				return nil, err
			}
			out = append(out, Announced{Prefix: prefix, Description: p.Description})
		}
	}
	return out, nil
}

func (b *bgpview) search(ctx context.Context, term string) ([]uint32, error) {
	u := b.base + "/search?query_term=" + url.QueryEscape(term)
	var resp bgpSearch
	if err := b.c.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if err := checkStatus(u, resp.Status); err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(resp.Data.ASNs))
	for _, a := range resp.Data.ASNs {
		out = append(out, a.ASN)
	}
	return out, nil
}

// describe: bgpview reports descriptions inline, there is nothing to look up.
func (b *bgpview) describe(_ context.Context, a Announced) (string, error) {
	return a.Description, nil
}
