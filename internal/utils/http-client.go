package utils

import (
	"net/http"
	"net/url"
	"time"
)

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
	SetHeader(key, value string)
}

// VaultHTTPClient wraps http.Client so every request carries the configured
// user agent and headers. Streaming hosts reject requests without them.
type VaultHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewVaultHTTPClient(cfg HTTPClientConfig) *VaultHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true,
		MaxConnsPerHost:     0,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &VaultHTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config: cfg,
	}
}

func (v *VaultHTTPClient) SetHeader(key, value string) {
	v.config.Headers[key] = value
}

func (v *VaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if v.config.UserAgent != "" {
		req.Header.Set("User-Agent", v.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, val := range v.config.Headers {
		req.Header.Set(k, val)
	}
	return v.client.Do(req)
}

// StreamHeaders derives the Referer and Origin headers a streaming host
// expects, from the stream URL's own scheme and host.
func StreamHeaders(rawURL string) map[string]string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	origin := parsed.Scheme + "://" + parsed.Host
	return map[string]string{
		"Referer": origin + "/",
		"Origin":  origin,
	}
}
