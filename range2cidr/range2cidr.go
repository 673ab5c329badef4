// Range splitting follows the approach of [inet.af/netaddr] IPRange.Prefixes.
// Copyright 2020 The Inet.Af AUTHORS. All rights reserved.
// Use of this source code is governed by a BSD-style license.

// Package range2cidr expands address ranges into the minimal covering set of CIDR prefixes.
package range2cidr

import (
	"errors"
	"net/netip"
	"strings"
)

//
// EXTERNAL INTERFACE
//

var (
	// ErrInvalid is returned for text that is neither a prefix, an address nor a range.
	ErrInvalid = errors.New("invalid address, prefix or range")
	// ErrFamily is returned for ranges mixing IPv4 and IPv6 bounds.
	ErrFamily = errors.New("range bounds of different address family")
	// ErrOrder is returned for ranges whose start is above their end.
	ErrOrder = errors.New("range start above range end")
)

// Parse accepts "a.b.c.d/n", a bare address or an "from-to" range and
// returns canonical (masked) prefixes.
func Parse(s string) ([]netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if from, to, ok := strings.Cut(s, "-"); ok {
		f, err1 := netip.ParseAddr(strings.TrimSpace(from))
		t, err2 := netip.ParseAddr(strings.TrimSpace(to))
		if err1 != nil || err2 != nil {
			return nil, errors.Join(ErrInvalid, errors.New(s))
		}
		return Prefixes(f, t)
	}
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, errors.Join(ErrInvalid, err)
		}
		return []netip.Prefix{p.Masked()}, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return nil, errors.Join(ErrInvalid, err)
	}
	a = a.Unmap()
	return []netip.Prefix{netip.PrefixFrom(a, a.BitLen())}, nil
}

// Prefixes returns the minimal prefix set covering [from, to].
func Prefixes(from, to netip.Addr) ([]netip.Prefix, error) {
	from, to = from.Unmap(), to.Unmap()
	if !from.IsValid() || !to.IsValid() || from.Zone() != "" || to.Zone() != "" {
		return nil, ErrInvalid
	}
	if from.Is4() != to.Is4() {
		return nil, ErrFamily
	}
	if from.Compare(to) > 0 {
		return nil, ErrOrder
	}
	var out []netip.Prefix
	for {
		p := largest(from, to)
		out = append(out, p)
		last := lastAddr(p)
		if last.Compare(to) >= 0 {
			return out, nil
		}
		from = last.Next()
	}
}

//
// INTERNAL BACKEND
//

// largest returns the widest prefix starting exactly at from that ends at or before to.
func largest(from, to netip.Addr) netip.Prefix {
	bits := from.BitLen()
	best := netip.PrefixFrom(from, bits)
	for l := bits - 1; l >= 0; l-- {
		p := netip.PrefixFrom(from, l).Masked()
		if p.Addr() != from || lastAddr(p).Compare(to) > 0 {
			break
		}
		best = p
	}
	return best
}

// lastAddr returns the highest address inside p.
func lastAddr(p netip.Prefix) netip.Addr {
	a := p.Masked().Addr()
	b := a.AsSlice()
	for i := p.Bits(); i < len(b)*8; i++ {
		b[i/8] |= 0x80 >> (i % 8)
	}
	last, _ := netip.AddrFromSlice(b)
	return last
}
