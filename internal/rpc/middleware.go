package rpc

import (
	"net"
	"net/http"
	"slices"
)

// ipFilter is an allow-list of networks. An empty filter admits everyone.
type ipFilter []*net.IPNet

// parseAllowedIPs accepts CIDR blocks and bare addresses. Bare addresses
// become host routes; unparseable entries are skipped.
func parseAllowedIPs(entries []string) ipFilter {
	var f ipFilter
	for _, entry := range entries {
		if _, block, err := net.ParseCIDR(entry); err == nil {
			f = append(f, block)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 8 * net.IPv6len
		if v4 := ip.To4(); v4 != nil {
			ip, bits = v4, 8*net.IPv4len
		}
		f = append(f, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return f
}

// admits reports whether the remote address of r is on the list.
func (f ipFilter) admits(r *http.Request) bool {
	if len(f) == 0 {
		return true
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return slices.ContainsFunc(f, func(n *net.IPNet) bool { return n.Contains(ip) })
}

// wrap answers 403 to callers outside the list.
func (f ipFilter) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.admits(r) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsPolicy lists the browser origins allowed to call the API. "*"
// matches any origin. An empty policy emits no CORS headers.
type corsPolicy []string

func (c corsPolicy) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	for _, o := range c {
		if o == "*" || o == origin {
			return o
		}
	}
	return ""
}

// wrap sets CORS headers on matching origins and ends preflight requests
// with 204.
func (c corsPolicy) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if o := c.allowOrigin(r.Header.Get("Origin")); o != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", o)
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
