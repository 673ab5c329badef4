package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const sample = `
provider: ripestat
delay: 2s
publish:
  branch: rule-sets
categories:
  - name: reflected-networks
    asns: [AS29789, 29790]
  - name: oracle
    search: oracle
    description_filter: oracle corporation
    ipv6: true
  - name: no-russia
    kind: geosite
    lists:
      - url: https://example.invalid/hosts.txt
  - name: censor-tracker
    kind: geosite
    rule: domain
    source_output: geosite/censor-tracker.json
    lists:
      - url: https://example.invalid/ct-domains
        format: json
        registrable: true
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse unexpected err: %v", err)
	}
	if cfg.Delay != 2*time.Second || cfg.Timeout != 30*time.Second {
		t.Fatalf("delay=%v timeout=%v", cfg.Delay, cfg.Timeout)
	}
	if diff := cmp.Diff([]string{"reflected-networks", "oracle", "no-russia", "censor-tracker"}, cfg.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	refl := cfg.Categories[0]
	if refl.Kind != KindGeoIP || refl.Output != "geoip/reflected-networks.srs" {
		t.Fatalf("kind=%q output=%q", refl.Kind, refl.Output)
	}
	if diff := cmp.Diff([]uint32{29789, 29790}, refl.Uint32s()); diff != "" {
		t.Fatalf("asns mismatch (-want +got):\n%s", diff)
	}
	nr := cfg.Categories[2]
	if nr.Output != "geosite/no-russia.srs" || nr.Rule != "domain_suffix" || nr.Lists[0].Format != FormatHosts {
		t.Fatalf("geosite defaults not applied: %+v", nr)
	}
	if !cfg.PublishEnabled() || !cfg.PushEnabled() {
		t.Fatalf("publish and push default on")
	}
}

func TestFamilies(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if ip4, ip6 := cfg.Families(cfg.Categories[0]); !ip4 || ip6 {
		t.Fatalf("reflected-networks families %v/%v, want true/false", ip4, ip6)
	}
	if ip4, ip6 := cfg.Families(cfg.Categories[1]); !ip4 || !ip6 {
		t.Fatalf("oracle families %v/%v, want true/true", ip4, ip6)
	}
	cfg.ApplyEnv(envMap{"NO_IPV6": "1"}.lookup)
	if _, ip6 := cfg.Families(cfg.Categories[1]); ip6 {
		t.Fatalf("NO_IPV6 must win over category ipv6")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no categories", "provider: ripestat\n", "no categories"},
		{"unknown provider", "provider: whois\ncategories: [{name: a, asns: [1]}]\n", "unknown provider"},
		{"duplicate", "categories: [{name: a, asns: [1]}, {name: a, asns: [2]}]\n", "defined twice"},
		{"empty geoip", "categories: [{name: a}]\n", "needs asns"},
		{"bad name", "categories: [{name: ../a, asns: [1]}]\n", "invalid name"},
		{"escaping output", "categories: [{name: a, asns: [1], output: ../../etc/a.srs}]\n", "inside the work tree"},
		{"shared output", "categories: [{name: a, asns: [1]}, {name: b, asns: [2], output: geoip/a.srs}]\n", "share output"},
		{"bad kind", "categories: [{name: a, kind: geomagic, static: [x]}]\n", "unknown kind"},
		{"bad format", "categories: [{name: a, kind: geosite, lists: [{url: u, format: csv}]}]\n", "unsupported list format"},
		{"asn on geosite", "categories: [{name: a, kind: geosite, asns: [1], static: [example.com]}]\n", "geoip only"},
	}
	for _, tt := range tests {
		_, err := Parse([]byte(tt.yaml))
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: err=%v, want ErrInvalid", tt.name, err)
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: err=%q, want contains %q", tt.name, err.Error(), tt.want)
		}
	}
}

func TestParse_BadASNAndUnknownField(t *testing.T) {
	for _, in := range []string{
		"categories: [{name: a, asns: [ASX]}]\n",
		"categories: [{name: a, asns: [1], colour: red}]\n",
	} {
		if _, err := Parse([]byte(in)); err == nil {
			t.Fatalf("Parse(%q) expected error", in)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	cfg.ApplyEnv(envMap{
		ENV_WORKDIR:     "/srv/rules",
		ENV_COMPILER:    "/opt/sing-box",
		ENV_PUSHGATEWAY: "http://pushgateway:9091",
		ENV_NO_PUSH:     "yes",
		ENV_NO_IPV4:     "false",
	}.lookup)
	if cfg.Workdir != "/srv/rules" || cfg.Compiler != "/opt/sing-box" || cfg.Metrics.Pushgateway != "http://pushgateway:9091" {
		t.Fatalf("string overrides not applied: %+v", cfg)
	}
	if cfg.PushEnabled() {
		t.Fatalf("push must be off")
	}
	if !cfg.PublishEnabled() {
		t.Fatalf("publish must stay on")
	}
	if ip4, _ := cfg.Families(cfg.Categories[0]); !ip4 {
		t.Fatalf("NO_IPV4=false must not disable ipv4")
	}
}

func TestLoad(t *testing.T) {
	name := filepath.Join(t.TempDir(), "categories.yaml")
	if err := os.WriteFile(name, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(name); err != nil {
		t.Fatalf("Load unexpected err: %v", err)
	}
	if _, err := Load(name + ".missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v, want ErrNotExist", err)
	}
}

type envMap map[string]string

func (m envMap) lookup(k string) (string, bool) {
	v, ok := m[k]
	return v, ok
}

func TestLoad_ShippedCategories(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "configs", "categories.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	byName := make(map[string]Category)
	for _, c := range cfg.Categories {
		byName[c.Name] = c
	}
	rn, ok := byName["reflected-networks"]
	if !ok || rn.Output != "geoip/reflected-networks.srs" || len(rn.ASNs) != 1 || rn.ASNs[0] != 29789 {
		t.Fatalf("reflected-networks = %+v", rn)
	}
	if ct := byName["censor-tracker"]; ct.Kind != KindGeoSite || ct.Output != "geosite/censor-tracker.srs" {
		t.Fatalf("censor-tracker = %+v", ct)
	}
	if cfg.Delay != 2*time.Second {
		t.Fatalf("delay = %v", cfg.Delay)
	}
}
