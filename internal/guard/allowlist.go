// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package guard

import (
	"net"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// =============================================================================
// HOST CLASSIFICATION
// =============================================================================

// DefaultAllowedHosts are the model-hosting domains the gate lets through.
var DefaultAllowedHosts = []string{
	"huggingface.co",
	"*.huggingface.co",
	"*.hf.co",
	"raw.githubusercontent.com",
	"registry.ollama.ai",
}

// normalizeHost lower-cases a host, strips brackets, port and trailing dot,
// and converts internationalised names to their ASCII form. ASCII hosts are
// returned as given so the result is the name net/http dials.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || net.ParseIP(host) != nil || isASCII(host) {
		return host
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// IsLoopback reports whether host is localhost or a loopback address.
func IsLoopback(host string) bool {
	host = normalizeHost(host)
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsPrivate reports whether host is an address in 10/8, 172.16/12,
// 192.168/16 or fc00::/7.
func IsPrivate(host string) bool {
	ip := net.ParseIP(normalizeHost(host))
	return ip != nil && ip.IsPrivate()
}

// IsOnion reports whether host is a Tor onion service.
func IsOnion(host string) bool {
	host = normalizeHost(host)
	return host == "onion" || strings.HasSuffix(host, ".onion")
}

// IsLocal reports whether host is loopback, private or onion. Hosts like
// these are treated as development or self-hosted deployments.
func IsLocal(host string) bool {
	return IsLoopback(host) || IsPrivate(host) || IsOnion(host)
}

// matchesHost checks if a host matches a pattern. Bare domains also match
// their subdomains; "*.d" and ".d" match d and any subdomain of d.
func matchesHost(host, pattern string) bool {
	pattern = normalizeHost(strings.TrimPrefix(strings.TrimPrefix(pattern, "*"), "."))
	if pattern == "" {
		return false
	}
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}

// matchesAny reports whether host matches any pattern in list.
func matchesAny(host string, list []string) bool {
	for _, p := range list {
		if matchesHost(host, p) {
			return true
		}
	}
	return false
}
