package httpx

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/asad/mediabridge/internal/logging"
)

// DefaultTransport returns the transport used for all backend calls. It caps
// connections per host and bounds connection setup, but sets no overall
// deadline so long media downloads are never cut off.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     100,
		MaxIdleConnsPerHost: 10,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewClient returns an outbound HTTP client over DefaultTransport.
func NewClient() *http.Client {
	return &http.Client{Transport: DefaultTransport()}
}

// NewRESTClient wraps client for JSON backend APIs. Requests are never
// retried; callers decide what a failed call means.
func NewRESTClient(client *http.Client, logger logging.Logger) *resty.Client {
	return resty.NewWithClient(client).
		SetLogger(restyLogger{logger: logger.With(logging.String("component", "rest"))})
}

// restyLogger routes resty's own diagnostics through the service logger.
type restyLogger struct {
	logger logging.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

// IsSuccess reports whether a backend status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
