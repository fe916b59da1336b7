package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient sentinel", Transient("classify", errors.New("quota")), true},
		{"context deadline", fmt.Errorf("read record: %w", context.DeadlineExceeded), true},
		{"googleapi throttled", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"googleapi server error", fmt.Errorf("open object: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}), true},
		{"googleapi not found", &googleapi.Error{Code: http.StatusNotFound}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "reset"), true},
		{"wrapped grpc aborted", fmt.Errorf("transition: %w", status.Error(codes.Aborted, "contention")), true},
		{"grpc permission denied", status.Error(codes.PermissionDenied, "iam"), false},
		{"plain error", errors.New("document has a corrupt status"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(nil))
	assert.True(t, IsPermanent(fmt.Errorf("%w: bad key", ErrFatalParse)))
	assert.True(t, IsPermanent(fmt.Errorf("%w: not a pdf", ErrInvalidDocument)))
	assert.True(t, IsPermanent(errors.New("document has a corrupt status")))
	assert.False(t, IsPermanent(Transient("write summary", errors.New("timeout"))))
	assert.False(t, IsPermanent(status.Error(codes.Unavailable, "reset")))
}

func TestHTTPStatusCodeAndMessage(t *testing.T) {
	v := Validation("Unsupported file type")
	assert.Equal(t, http.StatusBadRequest, HTTPStatusCode(v))
	assert.Equal(t, "Unsupported file type", PublicMessage(v))

	nf := fmt.Errorf("%w: abc", ErrNotFound)
	assert.Equal(t, http.StatusNotFound, HTTPStatusCode(nf))
	assert.Equal(t, "Document not found", PublicMessage(nf))

	internal := errors.New("firestore: connection reset")
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(internal))
	assert.Equal(t, "Internal server error", PublicMessage(internal))
}
