package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("query: %w", ErrInvalidInput), http.StatusBadRequest},
		{ErrIndexUnavailable, http.StatusServiceUnavailable},
		{ErrBuildCancelled, http.StatusServiceUnavailable},
		{fmt.Errorf("crossrefs: %w: %w", ErrIndexUnavailable, ErrNotFound), http.StatusServiceUnavailable},
		{New(ErrInvalidInput, http.StatusUnprocessableEntity, "bad identifier"), http.StatusUnprocessableEntity},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatusCode(tc.err), tc.err.Error())
	}
}

func TestIsSnapshotUnusable(t *testing.T) {
	assert.True(t, IsSnapshotUnusable(fmt.Errorf("load: %w", ErrSnapshotMissing)))
	assert.True(t, IsSnapshotUnusable(fmt.Errorf("load: %w", ErrSnapshotInvalid)))
	assert.False(t, IsSnapshotUnusable(ErrInternal))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrNotFound, http.StatusNotFound, "identifier %s", "H430")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "not found: identifier H430", err.Error())
}

func TestAppErrorWithoutMessage(t *testing.T) {
	assert.Equal(t, "index unavailable", New(ErrIndexUnavailable, http.StatusServiceUnavailable, "").Error())
}
