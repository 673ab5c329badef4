package config

import (
	"os"
	"strings"
)

// ENV VAR NAMES
const (
	_APPNAME = "ASN2SRS"

	ENV_CONFIG      = _APPNAME + "_CONFIG"
	ENV_WORKDIR     = _APPNAME + "_WORKDIR"
	ENV_COMPILER    = _APPNAME + "_COMPILER"
	ENV_API_URL     = _APPNAME + "_API_URL"
	ENV_PUSHGATEWAY = _APPNAME + "_PUSHGATEWAY"
	ENV_BRANCH      = _APPNAME + "_BRANCH"
	ENV_NO_PUSH     = _APPNAME + "_NO_PUSH"
	ENV_NO_PUBLISH  = _APPNAME + "_NO_PUBLISH"
	ENV_LOG_LEVEL   = _APPNAME + "_LOG_LEVEL"
	ENV_NO_IPV4     = "NO_IPV4"
	ENV_NO_IPV6     = "NO_IPV6"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(string) (string, bool)

// ApplyEnv overrides file settings from the environment (os.LookupEnv when lookup is nil).
func (c *Config) ApplyEnv(lookup LookupFunc) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	set(ENV_WORKDIR, &c.Workdir)
	set(ENV_COMPILER, &c.Compiler)
	set(ENV_API_URL, &c.APIURL)
	set(ENV_PUSHGATEWAY, &c.Metrics.Pushgateway)
	set(ENV_BRANCH, &c.Publish.Branch)
	set(ENV_LOG_LEVEL, &c.LogLevel)

	off := false
	if isSet(lookup, ENV_NO_PUSH) {
		c.Publish.Push = &off
	}
	if isSet(lookup, ENV_NO_PUBLISH) {
		c.Publish.Enabled = &off
	}
	if isSet(lookup, ENV_NO_IPV4) {
		c.IPv4 = &off
	}
	if isSet(lookup, ENV_NO_IPV6) {
		c.IPv6 = &off
	}
}

// isSet: present and not an explicit false, as in the NO_IPV4 / NO_IPV6 toggles.
func isSet(lookup LookupFunc, name string) bool {
	v, ok := lookup(name)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}
