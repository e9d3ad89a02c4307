// Package trust decides whether an inbound request's declared host is
// acceptable.
//
// The policy is evaluated fresh per request and never cached: the service is
// expected to sit behind proxies and tunnels that rewrite the Host header
// between requests. The default policy accepts every declared host. That is a
// deliberate trade-off, not an oversight; the server logs a warning at startup
// when it is in effect so operators do not rely on it silently.
package trust

import (
	"net"
	"strings"
)

// Decision is the outcome of evaluating a declared host.
// Reason is set only on rejection.
type Decision struct {
	Allowed bool
	Reason  string
}

// Policy decides whether to honor a request based on its declared host.
// Implementations must be safe for concurrent use.
type Policy interface {
	Evaluate(host string) Decision
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(host string) Decision

// Evaluate implements Policy.
func (f PolicyFunc) Evaluate(host string) Decision {
	return f(host)
}

// AllowAll returns the permissive default policy: every declared host is
// accepted, including wildcard and any-IP forms.
func AllowAll() Policy {
	return PolicyFunc(func(string) Decision {
		return Decision{Allowed: true}
	})
}

// AllowHosts returns a policy accepting only the given hosts. Matching is
// case-insensitive and ignores any port in the declared host. Entries of the
// form "*.suffix" match any single-label or deeper subdomain of suffix.
// An entry equal to "*" collapses the whole policy to AllowAll.
func AllowHosts(hosts ...string) Policy {
	exact := make(map[string]struct{}, len(hosts))
	var suffixes []string
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		switch {
		case h == "":
		case h == "*":
			return AllowAll()
		case strings.HasPrefix(h, "*."):
			suffixes = append(suffixes, h[1:]) // keep the leading dot
		default:
			exact[h] = struct{}{}
		}
	}

	return PolicyFunc(func(host string) Decision {
		h := strings.ToLower(stripPort(host))
		if _, ok := exact[h]; ok {
			return Decision{Allowed: true}
		}
		for _, suffix := range suffixes {
			if strings.HasSuffix(h, suffix) {
				return Decision{Allowed: true}
			}
		}

		return Decision{Allowed: false, Reason: "host " + host + " not in allow set"}
	})
}

// FromHosts builds the policy from the single configured allow set. This is
// the one configuration input for host validation: an empty set, or a set
// containing "*", selects the permissive default.
func FromHosts(hosts []string) Policy {
	if len(hosts) == 0 {
		return AllowAll()
	}

	return AllowHosts(hosts...)
}

// stripPort drops a trailing :port from a declared host, tolerating bare
// hosts and bracketed IPv6 literals.
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}

	return strings.Trim(host, "[]")
}
