package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	req := require.New(t)

	req.Equal(http.StatusOK, StatusCode(nil))
	req.Equal(http.StatusUnauthorized, StatusCode(fmt.Errorf("%w: bad signature", ErrAuthentication)))
	req.Equal(http.StatusForbidden, StatusCode(ErrAuthorization))
	req.Equal(http.StatusNotFound, StatusCode(fmt.Errorf("conversation 7: %w", ErrNotFound)))
	req.Equal(http.StatusBadRequest, StatusCode(ErrInvalidPayload))
	req.Equal(http.StatusServiceUnavailable, StatusCode(fmt.Errorf("%w: timeout", ErrTransientStore)))
	req.Equal(http.StatusServiceUnavailable, StatusCode(fmt.Errorf("%w: nats down", ErrBusUnavailable)))
	req.Equal(http.StatusInternalServerError, StatusCode(fmt.Errorf("boom")))
}
