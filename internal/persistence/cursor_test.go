package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/stravahub/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{StartedAt: time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), ExternalID: 9876543210}

	token := EncodeCursor(in)
	require.NotEmpty(t, token)

	out, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, in.StartedAt.Equal(out.StartedAt))
	require.Equal(t, in.ExternalID, out.ExternalID)
}

func TestDecodeCursorEmpty(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Equal(t, "", EncodeCursor(nil))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	require.Error(t, err)

	_, err = DecodeCursor(encodeRaw("2023-05-01T10:00:00Z|abc"))
	require.Error(t, err)

	_, err = DecodeCursor(encodeRaw("no-separator"))
	require.Error(t, err)
}

func TestNextCursor(t *testing.T) {
	rows := []domain.Activity{
		{ExternalID: 3, StartedAt: time.Date(2023, 5, 3, 0, 0, 0, 0, time.UTC)},
		{ExternalID: 2, StartedAt: time.Date(2023, 5, 2, 0, 0, 0, 0, time.UTC)},
	}

	require.Nil(t, NextCursor(rows, 3))
	next := NextCursor(rows, 2)
	require.NotNil(t, next)
	require.Equal(t, int64(2), next.ExternalID)
}

func encodeRaw(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}
