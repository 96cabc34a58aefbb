package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/stepcause/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, time.October, 27, 20, 0, 0, 123, time.UTC)
	token := EncodeCursor(&domain.Cursor{Timestamp: ts, ID: "step-1"})

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, decoded.Timestamp.Equal(ts))
	require.Equal(t, "step-1", decoded.ID)
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = DecodeCursor("not-base64!")
	require.Error(t, err)

	_, err = DecodeCursor("bm8tc2VwYXJhdG9y")
	require.Error(t, err)
}

func TestBefore(t *testing.T) {
	ts := time.Date(2025, time.October, 27, 20, 0, 0, 0, time.UTC)
	c := &domain.Cursor{Timestamp: ts, ID: "m"}

	require.True(t, Before(nil, ts, "z"))
	require.True(t, Before(c, ts.Add(-time.Second), "z"))
	require.False(t, Before(c, ts.Add(time.Second), "a"))
	require.True(t, Before(c, ts, "a"))
	require.False(t, Before(c, ts, "z"))
}
