package ratelimit

import (
	"net"
	"strings"
)

// ClientKey resolves the identity a request is counted against.
//
// Resolution order:
//  1. an authenticated principal id, as "user:<id>";
//  2. the first X-Forwarded-For hop, as "ip:<addr>", only when trustProxy
//     is set;
//  3. the remote address without port, as "ip:<addr>".
func ClientKey(principal, remoteAddr, forwardedFor string, trustProxy bool) string {
	if p := strings.TrimSpace(principal); p != "" {
		return "user:" + p
	}

	if trustProxy {
		if first, _, _ := strings.Cut(forwardedFor, ","); strings.TrimSpace(first) != "" {
			return "ip:" + strings.TrimSpace(first)
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err != nil {
		host = strings.TrimSpace(remoteAddr)
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}
