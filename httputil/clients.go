package httputil

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "ah-scanner/1.0"

type ClientOptions struct {
	BaseURL  string
	ProxyURL string
	Timeout  time.Duration
}

// NewAPIClient returns a resty client for the upstream JSON API. Retries are
// left to the caller so every attempt passes through the request budget.
func NewAPIClient(opts ClientOptions) *resty.Client {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetAllowGetMethodPayload(true).
		SetLogger(slogAdapter{}).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	if opts.ProxyURL != "" {
		client.SetProxy(opts.ProxyURL)
	}
	return client
}

// slogAdapter routes resty's internal messages to slog.
type slogAdapter struct{}

func (slogAdapter) Errorf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...), "component", "resty")
}

func (slogAdapter) Warnf(format string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "resty")
}

func (slogAdapter) Debugf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "resty")
}
