package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/nholik/wifi-sentinel/internal/nmcli"
)

// FailureClass explains why a probe judged the network unreachable.
type FailureClass string

const (
	FailureNone               FailureClass = "none"
	FailureDNS                FailureClass = "dns_failure"
	FailureConnect            FailureClass = "connect_failure"
	FailureTimeout            FailureClass = "timeout"
	FailureUnexpectedResponse FailureClass = "unexpected_response"
)

// Verdict is the transient result of one connectivity probe. It is consumed
// immediately and never persisted.
type Verdict struct {
	Reachable    bool
	FailureClass FailureClass
	Status       int
}

// The check endpoint answers 204 with an empty body; the body is never parsed.
const expectedStatus = http.StatusNoContent

type managerChecker interface {
	Connectivity(ctx context.Context) (nmcli.ConnectivityState, error)
}

// Prober issues bounded-timeout HTTP requests against a connectivity check
// endpoint.
type Prober struct {
	url     string
	client  *retryablehttp.Client
	timeout time.Duration
	manager managerChecker
	logger  zerolog.Logger
}

// Option customizes prober behavior.
type Option func(*Prober)

// WithManagerChecker attaches NetworkManager's own connectivity verdict as an
// opportunistic secondary signal.
func WithManagerChecker(manager managerChecker) Option {
	return func(p *Prober) {
		p.manager = manager
	}
}

// New constructs a Prober for the given check URL. A single request is issued
// per probe; the HTTP client performs no retries of its own.
func New(logger zerolog.Logger, url string, timeout, connectTimeout time.Duration, opts ...Option) *Prober {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			DisableKeepAlives: true,
		},
	}

	p := &Prober{
		url:     url,
		client:  client,
		timeout: timeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe checks whether the current network path reaches the internet. It has
// no side effects and never blocks past the configured timeout.
func (p *Prober) Probe(ctx context.Context) Verdict {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Error().Err(err).Str("url", p.url).Msg("building probe request failed")
		return Verdict{FailureClass: FailureConnect}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		class := classifyError(err)
		p.logger.Debug().Err(err).Str("failure_class", string(class)).Msg("probe failed")
		return Verdict{FailureClass: class}
	}
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		p.logger.Debug().Int("status", resp.StatusCode).Msg("probe returned unexpected status")
		return Verdict{FailureClass: FailureUnexpectedResponse, Status: resp.StatusCode}
	}
	return Verdict{Reachable: true, FailureClass: FailureNone, Status: resp.StatusCode}
}

// ManagerVerdict asks NetworkManager for its own connectivity state. Used for
// diagnostics only; decisions are made on Probe results.
func (p *Prober) ManagerVerdict(ctx context.Context) nmcli.ConnectivityState {
	if p.manager == nil {
		return nmcli.ConnectivityUnknown
	}
	state, err := p.manager.Connectivity(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("manager connectivity check unavailable")
		return nmcli.ConnectivityUnknown
	}
	return state
}

func classifyError(err error) FailureClass {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return FailureTimeout
		}
		return FailureDNS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	return FailureConnect
}
