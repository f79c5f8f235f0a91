// Package delivery sends attribution events to the ingestion endpoint and
// tracks the outcome for diagnostics.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/CHZarles/WorkflowMonitor-sub000/internal/domain"
)

// Sink accepts one event per call.
type Sink interface {
	Send(ctx context.Context, event domain.OutboundEvent) error
}

// HTTPSink posts events to <serverURL>/event.
type HTTPSink struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSink constructs a sink for serverURL. Deadlines come from the
// caller's context; the client itself has no timeout.
func NewHTTPSink(serverURL string) *HTTPSink {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Negotiates h2 with https ingestion endpoints; plain http stays on HTTP/1.1.
	if err := http2.ConfigureTransport(transport); err != nil {
		zap.L().Named("delivery").Warn("http2 unavailable, falling back to HTTP/1.1", zap.Error(err))
	}
	return &HTTPSink{
		baseURL:    normalizeBaseURL(serverURL),
		httpClient: &http.Client{Transport: transport},
	}
}

// SetServerURL points the sink at a new endpoint.
func (s *HTTPSink) SetServerURL(serverURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseURL = normalizeBaseURL(serverURL)
}

// ServerURL returns the configured endpoint base.
func (s *HTTPSink) ServerURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseURL
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, event domain.OutboundEvent) error {
	base := s.ServerURL()
	if base == "" {
		return domain.ErrConfigMissing
	}

	body, err := json.Marshal(event)
	if err != nil {
		return &domain.DeliveryError{Kind: domain.DeliveryTransport, Transport: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/event", bytes.NewReader(body))
	if err != nil {
		return &domain.DeliveryError{Kind: domain.DeliveryTransport, Transport: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.DeliveryError{
			Kind:   domain.DeliveryHTTP,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("ingestion endpoint: %s", strings.TrimSpace(string(snippet))),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health probes <serverURL>/health. It is used by diagnostics only.
func (s *HTTPSink) Health(ctx context.Context) error {
	base := s.ServerURL()
	if base == "" {
		return domain.ErrConfigMissing
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return &domain.DeliveryError{Kind: domain.DeliveryHTTP, Status: resp.StatusCode}
	}
	return nil
}

func classifyTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.DeliveryError{Kind: domain.DeliveryTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.DeliveryError{Kind: domain.DeliveryTimeout, Err: err}
	}
	tag := "network"
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		tag = "dns"
	case errors.Is(err, syscall.ECONNREFUSED):
		tag = "connection_refused"
	case errors.Is(err, syscall.ECONNRESET):
		tag = "connection_reset"
	case errors.Is(err, context.Canceled):
		tag = "canceled"
	}
	return &domain.DeliveryError{Kind: domain.DeliveryTransport, Transport: tag, Err: err}
}

func normalizeBaseURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
