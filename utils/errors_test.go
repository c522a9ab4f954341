package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindFollowsWrapping(t *testing.T) {
	wrapped := fmt.Errorf("assign driver %s: %w", "d1", ErrDriverUnavailable)

	assert.Equal(t, KindDriverUnavailable, ErrorKind(wrapped))
	assert.Equal(t, http.StatusConflict, HTTPStatus(wrapped))
}

func TestErrorKindUnknownIsInternal(t *testing.T) {
	err := errors.New("boom")

	assert.Equal(t, KindInternal, ErrorKind(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestOnlyGatewayUnavailableIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("lookup: %w", ErrGatewayUnavailable)))
	assert.False(t, IsRetryable(ErrGatewayRejected))
	assert.False(t, IsRetryable(ErrNotFound))
}
