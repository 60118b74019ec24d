package monitor

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

var (
	globalHTTPClient *http.Client
	httpClientOnce   sync.Once
)

// GetHTTPClient returns the shared probe client. It has no client-level
// timeout; every check bounds itself with its own context deadline.
func GetHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        200,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		}
		globalHTTPClient = &http.Client{Transport: transport}
	})
	return globalHTTPClient
}
