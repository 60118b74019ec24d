package monitor

import (
	"context"
	"net/http"
	"strings"
	"time"

	"uptime/internal/models"
)

// ErrorKind 检查失败原因分类
type ErrorKind string

const (
	ErrorNone           ErrorKind = ""
	ErrorTimeout        ErrorKind = "timeout"
	ErrorTransport      ErrorKind = "transport_error"
	ErrorStatusMismatch ErrorKind = "status_mismatch"
)

// CheckResult 单次检查结果
type CheckResult struct {
	Status       string    `json:"status"`
	StatusCode   int       `json:"status_code"`
	ResponseTime int64     `json:"response_time"` // ms
	Error        string    `json:"error,omitempty"`
	Kind         ErrorKind `json:"error_kind,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// MonitorTarget 检查器需要的监控目标信息
type MonitorTarget struct {
	ID             uint32
	Name           string
	URL            string
	Method         string
	Headers        map[string]string
	Body           string
	Timeout        time.Duration
	ExpectedStatus int
}

// NewTarget 构建检查目标，补全缺省值
func NewTarget(m *models.Monitor, defaultTimeout time.Duration) *MonitorTarget {
	method := strings.ToUpper(strings.TrimSpace(m.Method))
	if method == "" {
		method = http.MethodGet
	}
	timeout := time.Duration(m.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	expected := m.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	return &MonitorTarget{
		ID:             m.ID,
		Name:           m.Name,
		URL:            m.URL,
		Method:         method,
		Headers:        m.HeaderMap(),
		Body:           m.Body,
		Timeout:        timeout,
		ExpectedStatus: expected,
	}
}

// Checker runs a single probe. Failures are reported in the result, never retried.
type Checker interface {
	Check(ctx context.Context, target *MonitorTarget) *CheckResult
}
