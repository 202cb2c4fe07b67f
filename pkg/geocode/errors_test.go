package geocode

import (
	"context"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestStatusError(t *testing.T) {
	err := &StatusError{Provider: ProviderGeoapify, StatusCode: http.StatusTooManyRequests}
	assert.Contains(t, err.Error(), "geoapify")
	assert.Contains(t, err.Error(), "429")
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(nil))
	assert.False(t, IsTimeout(assert.AnError))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(eris.Wrap(context.DeadlineExceeded, "geocode: google request")))
	assert.False(t, IsTimeout(context.Canceled))
}
