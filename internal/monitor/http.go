package monitor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"uptime/internal/logger"
	"uptime/internal/models"

	"go.uber.org/zap"
)

const userAgent = "uptime-monitor/1.0"

// HTTPChecker HTTP 检查器，比较响应状态码
type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{Client: GetHTTPClient()}
}

func (c *HTTPChecker) Check(ctx context.Context, target *MonitorTarget) *CheckResult {
	ctx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()

	start := time.Now()
	down := func(kind ErrorKind, msg string) *CheckResult {
		return &CheckResult{
			Status:       models.StatusDown,
			ResponseTime: time.Since(start).Milliseconds(),
			Error:        msg,
			Kind:         kind,
		}
	}

	var body io.Reader
	if target.Body != "" {
		body = strings.NewReader(target.Body)
	}
	req, err := http.NewRequestWithContext(ctx, target.Method, target.URL, body)
	if err != nil {
		return down(ErrorTransport, fmt.Sprintf("invalid request: %v", err))
	}
	for key, value := range target.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	client := c.Client
	if client == nil {
		client = GetHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return down(ErrorTimeout, "timeout")
		}
		reason := classifyTransportError(err)
		logger.Debug("HTTP check transport failure",
			zap.Uint32("monitor_id", target.ID),
			zap.String("url", target.URL),
			zap.String("reason", reason))
		return down(ErrorTransport, reason)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	result := &CheckResult{
		Status:       models.StatusUp,
		StatusCode:   resp.StatusCode,
		ResponseTime: time.Since(start).Milliseconds(),
	}
	if resp.StatusCode != target.ExpectedStatus {
		result.Status = models.StatusDown
		result.Kind = ErrorStatusMismatch
		result.Error = fmt.Sprintf("expected status %d, got %d", target.ExpectedStatus, resp.StatusCode)
	}

	logger.Debug("HTTP check completed",
		zap.Uint32("monitor_id", target.ID),
		zap.Int("status_code", resp.StatusCode),
		zap.Int64("response_time", result.ResponseTime))
	return result
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyTransportError maps a client error to a short reason.
func classifyTransportError(err error) string {
	var (
		dnsErr      *net.DNSError
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &dnsErr):
		return fmt.Sprintf("dns lookup failed for %s", dnsErr.Name)
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	case errors.Is(err, syscall.ECONNRESET):
		return "connection reset"
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr), errors.As(err, &invalidErr):
		return fmt.Sprintf("tls certificate error: %v", unwrapURLError(err))
	case errors.As(err, &recordErr):
		return "tls handshake failed"
	case strings.Contains(err.Error(), "tls:"):
		return fmt.Sprintf("tls handshake failed: %v", unwrapURLError(err))
	default:
		return fmt.Sprintf("request failed: %v", unwrapURLError(err))
	}
}

func unwrapURLError(err error) error {
	if inner := errors.Unwrap(err); inner != nil {
		return inner
	}
	return err
}
