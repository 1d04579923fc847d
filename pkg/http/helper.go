package http

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	apperrors "appointease/pkg/errors"
)

// DecodeJSON decodes a single JSON object from the request body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperrors.InvalidInput("Request body is required")
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidInput("Request body is required")
		}
		return apperrors.InvalidInput("Invalid request body")
	}
	if dec.More() {
		return apperrors.InvalidInput("Request body must contain a single JSON object")
	}
	return nil
}

// PeerIP returns the address of the connection's remote end.
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIPResolver reads forwarding headers only from trusted proxies.
type ClientIPResolver struct {
	trusted []*net.IPNet
}

func NewClientIPResolver(trusted []*net.IPNet) *ClientIPResolver {
	return &ClientIPResolver{trusted: trusted}
}

// ClientIP returns the peer address unless the peer is a trusted proxy.
// Behind one, X-Forwarded-For is walked right to left and the first
// untrusted hop wins; X-Real-IP is the fallback.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	peer := PeerIP(r)
	if !c.isTrusted(peer) {
		return peer
	}
	if fwd := r.Header.Values("X-Forwarded-For"); len(fwd) > 0 {
		hops := strings.Split(strings.Join(fwd, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !c.isTrusted(hop) {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	return peer
}

func (c *ClientIPResolver) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range c.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
