// internal/server/https.go
package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/acme/autocert"
)

// HTTPSConfig describes the managed-certificate setup: the public
// domain to serve, where to cache issued certificates, and the plain
// HTTP address that answers ACME challenges and redirects the rest.
type HTTPSConfig struct {
	Domain   string
	CertDir  string
	HTTPAddr string
}

// Validate rejects domains the certificate authority cannot issue for.
func (c HTTPSConfig) Validate() error {
	d := strings.ToLower(strings.TrimSpace(c.Domain))
	switch {
	case d == "":
		return errors.New("domain required for HTTPS")
	case d == "localhost":
		return errors.New("certificates need a public domain, not localhost; terminate TLS in a proxy for local setups")
	case net.ParseIP(strings.Trim(d, "[]")) != nil:
		return errors.New("certificates need a domain name, not an IP address")
	case strings.HasPrefix(d, ".") || strings.HasSuffix(d, "."),
		strings.HasPrefix(d, "-") || strings.HasSuffix(d, "-"),
		strings.Contains(d, ".."),
		!strings.Contains(d, "."):
		return fmt.Errorf("malformed domain %q", c.Domain)
	}
	return nil
}

// Manager returns an autocert manager locked to the configured domain.
func (c HTTPSConfig) Manager() *autocert.Manager {
	return &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(c.Domain),
		Cache:      autocert.DirCache(c.CertDir),
	}
}

// tlsConfig serves managed certificates and advertises HTTP/2.
func tlsConfig(m *autocert.Manager) *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
	}
}

// redirectTo sends every plain-HTTP request to its HTTPS counterpart.
// ACME challenge paths are peeled off earlier by the autocert manager's
// HTTPHandler wrapper.
func redirectTo(domain string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+domain+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
}
