// Package fingerprint provides an http.RoundTripper that dials the
// upstream backend with a uTLS Firefox ClientHello instead of Go's own
// TLS fingerprint, matching the teacher's
// internal/auth/claude/utls_transport.go (there used to reach
// Anthropic's Cloudflare-fronted API without tripping its TLS
// fingerprinting; here used for the same reason against the codex
// backend spec.md §1 names as the single upstream). Adapted to this
// repository's single-dialer config shape rather than the teacher's
// *config.SDKConfig, and renamed off "Anthropic"/"claude" since the
// upstream here is the codex backend, not Claude's API.
package fingerprint

import (
	"net/http"
	"strings"
	"sync"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	"golang.org/x/net/proxy"
)

// Transport caches one HTTP/2 connection per host, each established
// over a uTLS connection presenting a Firefox ClientHello.
type Transport struct {
	mu          sync.Mutex
	connections map[string]*http2.ClientConn
	pending     map[string]*sync.Cond
	dialer      proxy.Dialer
}

// New builds a Transport that dials through dialer (proxy.Direct for a
// plain connection, or a SOCKS5 dialer for proxied egress).
func New(dialer proxy.Dialer) *Transport {
	if dialer == nil {
		dialer = proxy.Direct
	}
	return &Transport{
		connections: make(map[string]*http2.ClientConn),
		pending:     make(map[string]*sync.Cond),
		dialer:      dialer,
	}
}

// NewClient wraps a Transport in an *http.Client, mirroring the
// teacher's NewAnthropicHttpClient constructor.
func NewClient(dialer proxy.Dialer) *http.Client {
	return &http.Client{Transport: New(dialer)}
}

func (t *Transport) getOrCreateConnection(host, addr string) (*http2.ClientConn, error) {
	t.mu.Lock()
	if conn, ok := t.connections[host]; ok && conn.CanTakeNewRequest() {
		t.mu.Unlock()
		return conn, nil
	}
	if cond, ok := t.pending[host]; ok {
		cond.Wait()
		if conn, ok := t.connections[host]; ok && conn.CanTakeNewRequest() {
			t.mu.Unlock()
			return conn, nil
		}
	}
	cond := sync.NewCond(&t.mu)
	t.pending[host] = cond
	t.mu.Unlock()

	conn, err := t.createConnection(host, addr)

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, host)
	cond.Broadcast()
	if err != nil {
		return nil, err
	}
	t.connections[host] = conn
	return conn, nil
}

// createConnection dials addr and completes a Firefox-fingerprinted
// TLS handshake before negotiating HTTP/2 on top of it.
func (t *Transport) createConnection(host, addr string) (*http2.ClientConn, error) {
	conn, err := t.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloFirefox_Auto)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	h2Conn, err := (&http2.Transport{}).NewClientConn(tlsConn)
	if err != nil {
		tlsConn.Close()
		return nil, err
	}
	return h2Conn, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	hostname := req.URL.Hostname()
	addr := req.URL.Host
	if !strings.Contains(addr, ":") {
		addr += ":443"
	}

	conn, err := t.getOrCreateConnection(hostname, addr)
	if err != nil {
		return nil, err
	}
	resp, err := conn.RoundTrip(req)
	if err != nil {
		t.mu.Lock()
		if cached, ok := t.connections[hostname]; ok && cached == conn {
			delete(t.connections, hostname)
		}
		t.mu.Unlock()
		return nil, err
	}
	return resp, nil
}
