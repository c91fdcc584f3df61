package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestTransient(t *testing.T) {
	assert.True(t, transient(errors.New("dial tcp: connection refused")))
	assert.True(t, transient(&pq.Error{Code: "57P03"}), "cannot connect now")
	assert.False(t, transient(fmt.Errorf("ping: %w", &pq.Error{Code: "28P01"})), "bad password")
	assert.False(t, transient(&pq.Error{Code: "3D000"}), "missing database")
}
