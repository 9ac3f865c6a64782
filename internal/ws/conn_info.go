package ws

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Headers clients may send on the upgrade request.
const (
	headerClientID  = "X-Client-Id"
	headerRequestID = "X-Request-Id"
)

// ConnInfo is transport-level metadata attached to one connection for the
// lifetime of the socket. ConnID is minted server-side; the rest comes off
// the upgrade request.
type ConnInfo struct {
	ConnID      string
	ClientID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// newConnInfo mints a connection id and captures the upgrade request's
// metadata.
func newConnInfo(r *http.Request, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      uuid.NewString(),
		ClientID:    r.Header.Get(headerClientID),
		IP:          clientIP(r),
		RequestID:   r.Header.Get(headerRequestID),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// socket's remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
