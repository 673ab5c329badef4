package fetch

import (
	"crypto/tls"
	"net/http"
	"time"
)

// getTlsConf ...
func getTlsConf() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify:     false,
		SessionTicketsDisabled: true,
		Renegotiation:          tls.RenegotiateNever,
		MinVersion:             tls.VersionTLS12,
	}
}

// getTransport ...
func getTransport(tlsconf *tls.Config) *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsconf,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // Content-Encoding is negotiated and decoded by hand
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        4,
		IdleConnTimeout:     30 * time.Second,
	}
}

// getClient ...
func getClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > _maxRedirects {
				return errTooManyRedirects
			}
			return nil
		},
	}
}
