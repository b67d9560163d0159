package repository

import (
	"testing"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdemRecordRoundTrip(t *testing.T) {
	in := middleware.IdempotencyRecord{
		Status:    201,
		Body:      []byte(`{"id":"0xabc"}`),
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	out, err := decodeIdemRecord(encodeIdemRecord(in))
	require.NoError(t, err)
	assert.Equal(t, in, *out)

	_, err = decodeIdemRecord("not json")
	assert.Error(t, err)
}

func TestScanWindow(t *testing.T) {
	assert.Equal(t, 100, scanWindow(1, 10000))
	assert.Equal(t, 500, scanWindow(100, 10000))
	assert.Equal(t, 50, scanWindow(100, 50))
}
