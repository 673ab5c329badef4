// Package ruledoc builds canonical sing-box source rule-set documents.
//
// A document holds exactly one headless rule whose single field lists the
// category entries, de-duplicated and sorted, so equal input multisets always
// marshal to identical bytes.
package ruledoc

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"golang.org/x/net/idna"

	"paepcke.de/asn2srs/range2cidr"
)

// Version is the source rule-set format version written into every document.
const Version = 3

// rule fields
const (
	FieldIPCIDR        = "ip_cidr"
	FieldDomain        = "domain"
	FieldDomainSuffix  = "domain_suffix"
	FieldDomainKeyword = "domain_keyword"
)

// Document is one category rendered for the compiler.
type Document struct {
	Category string
	Field    string
	Entries  []string
}

// Builder validates category names against the configured set.
type Builder struct {
	known map[string]struct{}
}

// NewBuilder ...
func NewBuilder(categories []string) *Builder {
	b := &Builder{known: make(map[string]struct{}, len(categories))}
	for _, c := range categories {
		b.known[c] = struct{}{}
	}
	return b
}

// IPCIDR merges prefix sets (CIDRs, bare addresses or ranges) into an ip_cidr document.
func (b *Builder) IPCIDR(category string, sets ...[]string) (*Document, error) {
	if err := b.checkCategory(category); err != nil {
		return nil, err
	}
	var entries []string
	for _, set := range sets {
		for _, s := range set {
			prefixes, err := range2cidr.Parse(s)
			if err != nil {
				return nil, &ValidationError{Category: category, Entry: s, Reason: "not a cidr", Cause: err}
			}
			for _, p := range prefixes {
				entries = append(entries, p.String())
			}
		}
	}
	return b.finish(category, FieldIPCIDR, entries)
}

// Domains merges domain sets into a document of the given domain field.
func (b *Builder) Domains(category, field string, sets ...[]string) (*Document, error) {
	if err := b.checkCategory(category); err != nil {
		return nil, err
	}
	switch field {
	case FieldDomain, FieldDomainSuffix, FieldDomainKeyword:
	default:
		return nil, &ValidationError{Category: category, Entry: field, Reason: "unsupported rule field"}
	}
	var entries []string
	for _, set := range sets {
		for _, s := range set {
			d, err := normalizeDomain(field, s)
			if err != nil {
				return nil, &ValidationError{Category: category, Entry: s, Reason: "not a domain", Cause: err}
			}
			entries = append(entries, d)
		}
	}
	return b.finish(category, field, entries)
}

// Marshal renders the document as indented JSON with a trailing newline.
func (d *Document) Marshal() ([]byte, error) {
	doc := struct {
		Version int                   `json:"version"`
		Rules   []map[string][]string `json:"rules"`
	}{
		Version: Version,
		Rules:   []map[string][]string{{d.Field: d.Entries}},
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// checkCategory ...
func (b *Builder) checkCategory(category string) error {
	if _, ok := b.known[category]; !ok {
		return &ValidationError{Category: category, Reason: "unknown category"}
	}
	return nil
}

// finish sorts, de-duplicates and rejects empty results.
func (b *Builder) finish(category, field string, entries []string) (*Document, error) {
	slices.Sort(entries)
	entries = slices.Compact(entries)
	if len(entries) == 0 {
		return nil, &ValidationError{Category: category, Reason: "empty category"}
	}
	return &Document{Category: category, Field: field, Entries: entries}, nil
}

// normalizeDomain lowercases and punycodes host names. Keywords are only
// lowercased, they need not be valid names on their own. A leading dot on a
// domain_suffix entry is kept: ".example.com" matches subdomains only, while
// "example.com" matches the apex as well.
func normalizeDomain(field, s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if field == FieldDomainKeyword {
		if s == "" || strings.ContainsAny(s, " \t/") {
			return "", errBadKeyword
		}
		return s, nil
	}
	s = strings.TrimSuffix(s, ".")
	lead := ""
	if strings.HasPrefix(s, ".") {
		s = s[1:]
		if field == FieldDomainSuffix {
			lead = "."
		}
	}
	if s == "" {
		return "", errEmptyDomain
	}
	d, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", err
	}
	return lead + d, nil
}
