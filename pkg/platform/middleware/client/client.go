// Package client records where a request came from (address and a short
// user agent description) so audit events can name the origin of an
// operator action.
package client

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"certledger/pkg/requestcontext"
)

// maxForwardedLength bounds X-Forwarded-For and X-Real-IP values.
const maxForwardedLength = 500

// Middleware resolves the client address, honoring forwarding headers only
// from trusted proxies.
type Middleware struct {
	trusted []netip.Prefix
}

// New parses trusted proxy CIDRs. An empty list trusts no forwarding header.
func New(trustedProxies []string) (*Middleware, error) {
	m := &Middleware{}
	for _, cidr := range trustedProxies {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, err
		}
		m.trusted = append(m.trusted, p)
	}
	return m, nil
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClient(r.Context(), requestcontext.Client{
			IP:    m.clientIP(r),
			Agent: Describe(r.Header.Get("User-Agent")),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	peer, ok := remoteAddr(r.RemoteAddr)
	if !ok {
		return "unknown"
	}
	if !m.trusts(peer) {
		return peer.String()
	}

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		forwarded = r.Header.Get("X-Real-IP")
	}
	if forwarded == "" || len(forwarded) > maxForwardedLength {
		return peer.String()
	}
	first, _, _ := strings.Cut(forwarded, ",")
	addr, err := netip.ParseAddr(strings.TrimSpace(first))
	if err != nil {
		return peer.String()
	}
	return addr.String()
}

func (m *Middleware) trusts(addr netip.Addr) bool {
	for _, p := range m.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteAddr(s string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	if a, err := netip.ParseAddr(strings.Trim(s, "[]")); err == nil {
		return a.Unmap(), true
	}
	return netip.Addr{}, false
}

// Describe reduces a User-Agent to "browser major on os", "bot name" or the
// bare product token for command line clients.
func Describe(ua string) string {
	ua = strings.TrimSpace(ua)
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	if parsed.Bot() {
		return "bot " + name
	}
	if major, _, _ := strings.Cut(version, "."); major != "" {
		name += " " + major
	}
	if os := parsed.OS(); os != "" {
		return name + " on " + os
	}
	return name
}
