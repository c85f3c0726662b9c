package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYNC_MAX_PAGES", "")
	t.Setenv("STRAVA_HTTP_TIMEOUT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg := Load()

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 20, cfg.Sync.MaxPages)
	require.Equal(t, 50, cfg.Sync.PageSize)
	require.Equal(t, 30*time.Second, cfg.Strava.HTTPTimeout)
	require.Equal(t, "https://www.strava.com/oauth/token", cfg.Strava.AuthURL)
	require.Equal(t, []string{"activity_imported", "sync_runs"}, cfg.ConsumerTopics)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SYNC_MAX_PAGES", "5")
	t.Setenv("STRAVA_HTTP_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", " a:9092 , ,b:9092")
	t.Setenv("OUTBOX_BATCH_SIZE", "not-a-number")

	cfg := Load()

	require.Equal(t, 5, cfg.Sync.MaxPages)
	require.Equal(t, 3*time.Second, cfg.Strava.HTTPTimeout)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 25, cfg.OutboxBatchSize)
}

func TestStravaCredentialsReadEachCall(t *testing.T) {
	t.Setenv("STRAVA_CLIENT_ID", "id-1")
	t.Setenv("STRAVA_CLIENT_SECRET", "secret")
	t.Setenv("STRAVA_REFRESH_TOKEN", "refresh-1")

	creds, err := StravaCredentials()
	require.NoError(t, err)
	require.Equal(t, "refresh-1", creds.RefreshToken)

	t.Setenv("STRAVA_REFRESH_TOKEN", "refresh-2")
	creds, err = StravaCredentials()
	require.NoError(t, err)
	require.Equal(t, "refresh-2", creds.RefreshToken)
}

func TestStravaCredentialsMissing(t *testing.T) {
	t.Setenv("STRAVA_CLIENT_ID", "id-1")
	t.Setenv("STRAVA_CLIENT_SECRET", "")
	t.Setenv("STRAVA_REFRESH_TOKEN", "")

	_, err := StravaCredentials()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMissingCredentials))

	var missing *MissingError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []string{"STRAVA_CLIENT_SECRET", "STRAVA_REFRESH_TOKEN"}, missing.Keys)
}
