package geocode

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// StatusError reports a non-2xx response from a provider endpoint.
type StatusError struct {
	Provider   ProviderName
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("geocode: %s returned status %d", e.Provider, e.StatusCode)
}

// IsTimeout reports whether err is a deadline expiry or a network timeout.
// Timeouts from non-final providers are soft failures: logged, then the chain
// advances. No retry is attempted within a provider.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
