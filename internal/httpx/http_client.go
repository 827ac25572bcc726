package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 30 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

// Client returns the shared HTTP client used for all external calls.
// A timed-out call surfaces as a transport error at the call site.
func Client() *http.Client {
	return externalHTTPClient
}

// ConfigureExternalHTTPClient sets the per-call timeout from a seconds
// value; non-positive values restore the default. Returns the applied
// timeout for logging.
func ConfigureExternalHTTPClient(seconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}
