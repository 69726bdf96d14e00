package oidcutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	coreoidc "github.com/coreos/go-oidc/v3/oidc"

	"messageboard/logger"
	"messageboard/metrics"
)

// Options describes how to reach the issuer.
type Options struct {
	Issuer       string
	ClientID     string
	Audience     string // extra audience that must be present; empty skips the check
	MaxAttempts  int
	CACertFile   string
	DialOverride string // host:port to dial instead of the issuer's host
}

var ErrTokenExpired = errors.New("token expired")

type ErrInvalidAudience struct {
	Expected string
	Got      []string
}

func (e ErrInvalidAudience) Error() string {
	return "invalid audience: expected " + e.Expected + " got " + strings.Join(e.Got, ",")
}

// Verifier checks raw ID tokens for the board's write endpoints.
type Verifier struct {
	idv      *coreoidc.IDTokenVerifier
	audience string
}

func NewVerifier(idv *coreoidc.IDTokenVerifier, audience string) *Verifier {
	return &Verifier{idv: idv, audience: audience}
}

// Verify validates signature, issuer, client id and expiry, then the
// optional extra audience.
func (v *Verifier) Verify(ctx context.Context, raw string) error {
	tok, err := v.idv.Verify(ctx, raw)
	if err != nil {
		var expired *coreoidc.TokenExpiredError
		if errors.As(err, &expired) {
			return ErrTokenExpired
		}
		return err
	}
	if v.audience != "" && !slices.Contains(tok.Audience, v.audience) {
		return ErrInvalidAudience{Expected: v.audience, Got: tok.Audience}
	}
	return nil
}

// Init discovers the provider, retrying with exponential backoff, and
// returns a verifier bound to it.
func Init(ctx context.Context, opts Options) (*Verifier, error) {
	client, err := httpClient(opts)
	if err != nil {
		return nil, err
	}
	if client != nil {
		ctx = coreoidc.ClientContext(ctx, client)
	}
	p, err := providerWithBackoff(ctx, opts.Issuer, opts.MaxAttempts, time.Second)
	if err != nil {
		return nil, err
	}
	idv := p.Verifier(&coreoidc.Config{ClientID: opts.ClientID})
	return NewVerifier(idv, opts.Audience), nil
}

func providerWithBackoff(ctx context.Context, issuer string, maxAttempts int, base time.Duration) (*coreoidc.Provider, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var p *coreoidc.Provider
		p, err = coreoidc.NewProvider(ctx, issuer)
		if err == nil {
			logger.Info("oidc provider initialized", logger.FieldKV("issuer", issuer), logger.FieldKV("attempt", attempt))
			metrics.IncOIDCInitSuccess(uint64(attempt))
			return p, nil
		}
		if strings.Contains(err.Error(), "server gave HTTP response to HTTPS client") {
			logger.Error("oidc issuer scheme mismatch (https expected but endpoint is http)", err,
				logger.FieldKV("issuer", issuer))
		}
		if attempt == maxAttempts {
			break
		}
		sleep := backoff(base, attempt)
		logger.Error("oidc provider init failed", err, logger.FieldKV("attempt", attempt), logger.FieldKV("next_sleep", sleep.String()))
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			metrics.IncOIDCInitFailure(uint64(attempt))
			return nil, fmt.Errorf("oidc init canceled: %w", ctx.Err())
		}
	}
	metrics.IncOIDCInitFailure(uint64(maxAttempts))
	return nil, fmt.Errorf("oidc provider %s unreachable after %d attempts: %w", issuer, maxAttempts, err)
}

// backoff doubles per attempt, capped at 30s.
func backoff(base time.Duration, attempt int) time.Duration {
	return time.Duration(math.Min(float64(30*time.Second), float64(base)*math.Pow(2, float64(attempt))))
}

// httpClient returns nil when the default client will do.
func httpClient(opts Options) (*http.Client, error) {
	if opts.DialOverride == "" && opts.CACertFile == "" {
		return nil, nil
	}
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if opts.DialOverride != "" {
		dialer := &net.Dialer{Timeout: 5 * time.Second}
		target := opts.DialOverride
		transport.DialContext = func(c context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(c, network, target)
		}
		logger.Info("using oidc issuer dial override", logger.FieldKV("dial", target))
	}
	if opts.CACertFile != "" {
		data, err := os.ReadFile(opts.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("read oidc CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates in %s", opts.CACertFile)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
		logger.Info("custom CA trust added for OIDC", logger.FieldKV("path", opts.CACertFile))
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}
