// Package netutil configures outbound HTTP clients, following the
// teacher's internal/util package: proxy wiring pulled out of the
// request path so both the upstream dispatcher client and the OAuth
// provider's token-endpoint client can share it.
package netutil

import (
	"context"
	"net"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// ApplyProxy routes client through proxyURL when non-empty, supporting
// socks5, http, and https schemes, matching the teacher's SetProxy. An
// unparsable or unsupported scheme leaves client untouched.
func ApplyProxy(client *http.Client, proxyURL string) *http.Client {
	if proxyURL == "" {
		return client
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		log.WithError(err).WithField("proxy_url", proxyURL).Warn("netutil: invalid proxy url, ignoring")
		return client
	}

	var transport *http.Transport
	switch u.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if u.User != nil {
			pass, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pass}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			log.WithError(err).Warn("netutil: failed to build SOCKS5 dialer, ignoring proxy_url")
			return client
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	case "http", "https":
		transport = &http.Transport{Proxy: http.ProxyURL(u)}
	default:
		log.WithField("scheme", u.Scheme).Warn("netutil: unsupported proxy scheme, ignoring")
		return client
	}

	client.Transport = transport
	return client
}

// DialerForProxy resolves proxyURL (currently only "socks5://..." is
// supported by golang.org/x/net/proxy's registry) into a proxy.Dialer,
// falling back to a direct dialer on an empty URL or an unsupported
// scheme. Grounded on the teacher's newUtlsRoundTripper, which performs
// this same proxy.FromURL-with-fallback dance ahead of the uTLS dial.
func DialerForProxy(proxyURL string) proxy.Dialer {
	if proxyURL == "" {
		return proxy.Direct
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		log.WithError(err).WithField("proxy_url", proxyURL).Warn("netutil: invalid proxy url, dialing direct")
		return proxy.Direct
	}
	dialer, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		log.WithError(err).WithField("proxy_url", proxyURL).Warn("netutil: unsupported proxy scheme for direct-dial transport, dialing direct")
		return proxy.Direct
	}
	return dialer
}
