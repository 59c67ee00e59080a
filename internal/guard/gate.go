// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// DECISION REASONS
// =============================================================================

// Reasons recorded in the audit log.
const (
	ReasonSameOrigin       = "same origin"
	ReasonLocalhost        = "localhost"
	ReasonPrivateNetwork   = "private network"
	ReasonOnion            = "onion address"
	ReasonWhitelisted      = "whitelisted domain"
	ReasonNotWhitelisted   = "domain not in whitelist"
	ReasonInvalidURL       = "invalid url"
	ReasonSchemeNotAllowed = "scheme not allowed"
)

// ErrBlocked is matched by every error the gate returns for a rejected request.
var ErrBlocked = errors.New("request blocked by network gate")

// BlockedError describes a rejected request.
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("request to %s blocked: %s", e.URL, e.Reason)
}

// Is makes errors.Is(err, ErrBlocked) succeed.
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool
	Reason  string
}

// =============================================================================
// GATE
// =============================================================================

// GateConfig configures a Gate.
type GateConfig struct {
	// Origin is the application's own origin (the local inference server).
	Origin string

	// AllowedHosts are domain patterns that may be contacted.
	AllowedHosts []string

	// AllowPrivate lets requests reach RFC 1918 and ULA addresses.
	AllowPrivate bool

	// AllowOnion lets requests reach .onion hosts.
	AllowOnion bool
}

// Gate checks outbound requests against the allow-list. It implements
// http.RoundTripper so it can wrap any client transport.
type Gate struct {
	cfg          GateConfig
	originScheme string
	originHost   string
	originPort   string
	audit        *AuditLog
	base         http.RoundTripper
	logger       *slog.Logger
	limiter      *rate.Limiter
	now          func() time.Time

	// previous holds http.DefaultTransport while the gate is installed
	previous http.RoundTripper
	mu       sync.Mutex
}

// NewGate creates a gate recording into audit. base is the transport
// allowed requests are forwarded to; nil means http.DefaultTransport at
// construction time.
func NewGate(cfg GateConfig, audit *AuditLog, base http.RoundTripper, logger *slog.Logger) *Gate {
	if audit == nil {
		audit = NewAuditLog(0)
	}
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		cfg:     cfg,
		audit:   audit,
		base:    base,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		now:     time.Now,
	}
	if u, err := url.Parse(cfg.Origin); err == nil {
		g.originScheme = strings.ToLower(u.Scheme)
		g.originHost = normalizeHost(u.Host)
		g.originPort = effectivePort(g.originScheme, u.Port())
	}
	return g
}

// effectivePort fills in the default port for scheme.
func effectivePort(scheme, port string) string {
	if port != "" {
		return port
	}
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

// sameOrigin reports whether scheme, host and port all match the origin.
// A protocol-relative URL takes the origin's scheme.
func (g *Gate) sameOrigin(u *url.URL, host string) bool {
	if g.originHost == "" || host != g.originHost {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = g.originScheme
	}
	return scheme == g.originScheme && effectivePort(scheme, u.Port()) == g.originPort
}

// OriginHost returns the normalised origin host.
func (g *Gate) OriginHost() string {
	return g.originHost
}

// Check decides whether a request to rawURL may proceed and records the
// decision in the audit log.
func (g *Gate) Check(method, rawURL string) Decision {
	d := g.decide(rawURL)
	if method == "" {
		method = http.MethodGet
	}
	g.audit.Append(NetworkAuditEntry{
		URL:       rawURL,
		Timestamp: g.now(),
		Allowed:   d.Allowed,
		Reason:    d.Reason,
		Method:    method,
	})
	if !d.Allowed && g.limiter.Allow() {
		g.logger.Warn("GATE_BLOCKED", "method", method, "url", redactURL(rawURL), "reason", d.Reason)
	}
	return d
}

func (g *Gate) decide(rawURL string) Decision {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Decision{Reason: ReasonInvalidURL}
	}

	// Relative URLs resolve against the origin.
	if u.Scheme == "" && u.Host == "" {
		return Decision{Allowed: true, Reason: ReasonSameOrigin}
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		// protocol-relative //host/path
	default:
		return Decision{Reason: ReasonSchemeNotAllowed}
	}

	host := normalizeHost(u.Host)
	switch {
	case host == "":
		return Decision{Reason: ReasonInvalidURL}
	case g.sameOrigin(u, host):
		return Decision{Allowed: true, Reason: ReasonSameOrigin}
	case IsLoopback(host):
		return Decision{Allowed: true, Reason: ReasonLocalhost}
	case g.cfg.AllowPrivate && IsPrivate(host):
		return Decision{Allowed: true, Reason: ReasonPrivateNetwork}
	case g.cfg.AllowOnion && IsOnion(host):
		return Decision{Allowed: true, Reason: ReasonOnion}
	case matchesAny(host, g.cfg.AllowedHosts):
		return Decision{Allowed: true, Reason: ReasonWhitelisted}
	}
	return Decision{Reason: ReasonNotWhitelisted}
}

// RoundTrip implements http.RoundTripper. Blocked requests never reach the
// base transport.
func (g *Gate) RoundTrip(req *http.Request) (*http.Response, error) {
	d := g.Check(req.Method, req.URL.String())
	if !d.Allowed {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, &BlockedError{URL: redactURL(req.URL.String()), Reason: d.Reason}
	}
	return g.base.RoundTrip(req)
}

// Client returns an HTTP client whose requests pass through the gate.
func (g *Gate) Client() *http.Client {
	return &http.Client{Transport: g}
}

// Install replaces http.DefaultTransport with the gate so that code using
// http.DefaultClient is covered too.
func (g *Gate) Install() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.previous != nil {
		return
	}
	g.previous = http.DefaultTransport
	http.DefaultTransport = g
}

// Uninstall restores the transport replaced by Install.
func (g *Gate) Uninstall() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.previous == nil {
		return
	}
	if http.DefaultTransport == http.RoundTripper(g) {
		http.DefaultTransport = g.previous
	}
	g.previous = nil
}

// Installed reports whether the gate currently replaces http.DefaultTransport.
func (g *Gate) Installed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.previous != nil
}

// redactURL drops query string, fragment and credentials before a URL is
// logged or returned in an error.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
