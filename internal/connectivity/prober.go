package connectivity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// HTTPProber decides Connected by dialing the probe host and Reachable by
// sending HEAD to the probe URL. Any status below 500 counts as reachable.
type HTTPProber struct {
	url        *url.URL
	timeout    time.Duration
	dialer     *net.Dialer
	httpClient *http.Client
}

// NewHTTPProber creates a prober for rawURL.
func NewHTTPProber(rawURL string, timeout time.Duration) (*HTTPProber, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	return &HTTPProber{
		url:        u,
		timeout:    timeout,
		dialer:     &net.Dialer{Timeout: timeout},
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (p *HTTPProber) Probe(ctx context.Context) State {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dialer.DialContext(ctx, "tcp", p.hostPort())
	if err != nil {
		slog.Debug("connectivity probe dial failed", "host", p.url.Host, "error", err)
		return State{}
	}
	_ = conn.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url.String(), nil)
	if err != nil {
		return State{Connected: true}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Debug("connectivity probe request failed", "url", p.url.String(), "error", err)
		return State{Connected: true}
	}
	_ = resp.Body.Close()

	return State{Connected: true, Reachable: resp.StatusCode < http.StatusInternalServerError}
}

func (p *HTTPProber) hostPort() string {
	if p.url.Port() != "" {
		return p.url.Host
	}
	port := "80"
	if p.url.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(p.url.Hostname(), port)
}
