package goGuard

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/goGuard/fingerprint"
)

// Request is the transport-neutral view of an inbound call.
type Request struct {
	Header    http.Header
	Cookies   map[string]string
	Secure    bool
	ClientIP  string
	UserAgent string
}

// RequestFromHTTP builds a Request from r. Secure is true for TLS connections, or when
// trustForwardedProto is set and X-Forwarded-Proto is https. The same flag lets the
// client IP come from X-Forwarded-For.
func RequestFromHTTP(r *http.Request, trustForwardedProto bool) Request {
	req := Request{
		Header:    r.Header,
		Cookies:   make(map[string]string),
		Secure:    r.TLS != nil,
		UserAgent: r.UserAgent(),
		ClientIP:  remoteHost(r.RemoteAddr),
	}
	for _, c := range r.Cookies() {
		if _, seen := req.Cookies[c.Name]; !seen {
			req.Cookies[c.Name] = c.Value
		}
	}
	if trustForwardedProto {
		if proto := r.Header.Get("X-Forwarded-Proto"); strings.EqualFold(strings.TrimSpace(proto), "https") {
			req.Secure = true
		}
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				req.ClientIP = ip
			}
		}
	}
	return req
}

func (r Request) header(name string) string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get(name)
}

func (r Request) cookie(name string) string {
	return r.Cookies[name]
}

func (r Request) fingerprint(headerName string) fingerprint.Fingerprint {
	return fingerprint.FromHeader(r.Header, headerName)
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
