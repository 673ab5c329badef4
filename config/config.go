// Package config loads the category definitions and run settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"paepcke.de/asn2srs/asnfetch"
	"paepcke.de/asn2srs/ruledoc"
)

// category kinds
const (
	KindGeoIP   = "geoip"
	KindGeoSite = "geosite"
)

// list formats
const (
	FormatHosts = "hosts"
	FormatJSON  = "json"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the whole run description.
type Config struct {
	LogLevel  string        `yaml:"log_level"`
	Workdir   string        `yaml:"workdir"`
	Provider  string        `yaml:"provider"`
	APIURL    string        `yaml:"api_url"`
	Delay     time.Duration `yaml:"delay"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Compiler  string        `yaml:"compiler"`
	IPv4      *bool         `yaml:"ipv4"`
	IPv6      *bool         `yaml:"ipv6"`

	Publish Publish `yaml:"publish"`
	Metrics Metrics `yaml:"metrics"`

	Categories []Category `yaml:"categories"`
}

// Publish ...
type Publish struct {
	Enabled *bool  `yaml:"enabled"`
	Remote  string `yaml:"remote"`
	Branch  string `yaml:"branch"`
	Push    *bool  `yaml:"push"`
	Author  string `yaml:"author"`
}

// Metrics ...
type Metrics struct {
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job"`
}

// Category is the data-source descriptor and output location of one rule category.
type Category struct {
	Name              string   `yaml:"name"`
	Kind              string   `yaml:"kind"`
	ASNs              []ASN    `yaml:"asns"`
	Search            string   `yaml:"search"`
	DescriptionFilter string   `yaml:"description_filter"`
	IPv4              *bool    `yaml:"ipv4"`
	IPv6              *bool    `yaml:"ipv6"`
	Rule              string   `yaml:"rule"`
	Lists             []List   `yaml:"lists"`
	Static            []string `yaml:"static"`
	Output            string   `yaml:"output"`
	SourceOutput      string   `yaml:"source_output"`
}

// List is one remote domain list of a geosite category.
type List struct {
	URL         string `yaml:"url"`
	Format      string `yaml:"format"`
	Registrable bool   `yaml:"registrable"`
}

// ASN decodes "AS29789" as well as 29789.
type ASN uint32

// UnmarshalYAML ...
func (a *ASN) UnmarshalYAML(node *yaml.Node) error {
	n, err := asnfetch.ParseASN(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*a = ASN(n)
	return nil
}

// Load reads, defaults and validates the config file at name.
func Load(name string) (*Config, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("[config] unable to read [%s]: %w", name, err)
	}
	return Parse(data)
}

// Parse ...
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("[config] unable to parse: %w", errors.Join(ErrInvalid, err))
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Names returns the configured category names in file order.
func (c *Config) Names() []string {
	out := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, cat.Name)
	}
	return out
}

// PublishEnabled ...
func (c *Config) PublishEnabled() bool { return c.Publish.Enabled == nil || *c.Publish.Enabled }

// PushEnabled ...
func (c *Config) PushEnabled() bool { return c.Publish.Push == nil || *c.Publish.Push }

// Families resolves the address families of cat against the global switches.
func (c *Config) Families(cat Category) (ip4, ip6 bool) {
	ip4, ip6 = boolOr(c.IPv4, true), boolOr(c.IPv6, false)
	if cat.IPv4 != nil {
		ip4 = ip4 && *cat.IPv4
	}
	if cat.IPv6 != nil {
		ip6 = *cat.IPv6 && boolOr(c.IPv6, true)
	}
	return ip4, ip6
}

// Uint32s ...
func (c Category) Uint32s() []uint32 {
	out := make([]uint32, 0, len(c.ASNs))
	for _, a := range c.ASNs {
		out = append(out, uint32(a))
	}
	return out
}

// setDefaults ...
func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Workdir == "" {
		c.Workdir = "."
	}
	if c.Provider == "" {
		c.Provider = asnfetch.ProviderRIPEstat
	}
	if c.Delay == 0 {
		c.Delay = time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "asn2srs"
	}
	for i := range c.Categories {
		cat := &c.Categories[i]
		if cat.Kind == "" {
			cat.Kind = KindGeoIP
		}
		if cat.Kind == KindGeoSite && cat.Rule == "" {
			cat.Rule = ruledoc.FieldDomainSuffix
		}
		if cat.Output == "" {
			cat.Output = path.Join(cat.Kind, cat.Name+".srs")
		}
		for j := range cat.Lists {
			if cat.Lists[j].Format == "" {
				cat.Lists[j].Format = FormatHosts
			}
		}
	}
}

// Validate ...
func (c *Config) Validate() error {
	var errs []error
	if len(c.Categories) == 0 {
		errs = append(errs, errors.New("no categories defined"))
	}
	switch c.Provider {
	case asnfetch.ProviderRIPEstat, asnfetch.ProviderBGPView, asnfetch.ProviderIPtoASN:
	default:
		errs = append(errs, fmt.Errorf("unknown provider [%s]", c.Provider))
	}
	names := make(map[string]bool, len(c.Categories))
	outputs := make(map[string]string, len(c.Categories))
	for _, cat := range c.Categories {
		if err := cat.validate(); err != nil {
			errs = append(errs, err)
		}
		if names[cat.Name] {
			errs = append(errs, fmt.Errorf("category [%s] defined twice", cat.Name))
		}
		names[cat.Name] = true
		for _, out := range []string{cat.Output, cat.SourceOutput} {
			if out == "" {
				continue
			}
			if prev, ok := outputs[path.Clean(out)]; ok {
				errs = append(errs, fmt.Errorf("categories [%s] and [%s] share output [%s]", prev, cat.Name, out))
			}
			outputs[path.Clean(out)] = cat.Name
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("[config] %w", errors.Join(append([]error{ErrInvalid}, errs...)...))
	}
	return nil
}

// validate ...
func (c Category) validate() error {
	prefix := "category [" + c.Name + "]"
	if c.Name == "" || strings.ContainsAny(c.Name, `/\`) || c.Name == "." || c.Name == ".." {
		return fmt.Errorf("%s: invalid name", prefix)
	}
	for _, out := range []string{c.Output, c.SourceOutput} {
		if out != "" && (path.IsAbs(out) || strings.HasPrefix(path.Clean(out), "..")) {
			return fmt.Errorf("%s: output [%s] must stay inside the work tree", prefix, out)
		}
	}
	switch c.Kind {
	case KindGeoIP:
		if len(c.ASNs) == 0 && c.Search == "" && len(c.Static) == 0 {
			return fmt.Errorf("%s: needs asns, search or static entries", prefix)
		}
		if len(c.Lists) > 0 {
			return fmt.Errorf("%s: lists are geosite only", prefix)
		}
	case KindGeoSite:
		if len(c.Lists) == 0 && len(c.Static) == 0 {
			return fmt.Errorf("%s: needs lists or static entries", prefix)
		}
		if len(c.ASNs) > 0 || c.Search != "" {
			return fmt.Errorf("%s: asns and search are geoip only", prefix)
		}
		switch c.Rule {
		case ruledoc.FieldDomain, ruledoc.FieldDomainSuffix, ruledoc.FieldDomainKeyword:
		default:
			return fmt.Errorf("%s: unsupported rule [%s]", prefix, c.Rule)
		}
		for _, l := range c.Lists {
			if l.URL == "" {
				return fmt.Errorf("%s: list without url", prefix)
			}
			if l.Format != FormatHosts && l.Format != FormatJSON {
				return fmt.Errorf("%s: unsupported list format [%s]", prefix, l.Format)
			}
		}
	default:
		return fmt.Errorf("%s: unknown kind [%s]", prefix, c.Kind)
	}
	return nil
}

// boolOr ...
func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
