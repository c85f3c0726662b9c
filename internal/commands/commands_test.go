package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"example.com/stravahub/internal/auth"
	"example.com/stravahub/internal/config"
)

type testApp struct {
	flags *Flags
	out   bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	t.Setenv("STRAVA_CLIENT_ID", "id")
	t.Setenv("STRAVA_CLIENT_SECRET", "secret")
	t.Setenv("STRAVA_REFRESH_TOKEN", "refresh")

	flags := &Flags{
		SQLitePath: filepath.Join(t.TempDir(), "data", "activities.db"),
		Config:     config.Load(),
	}
	flags.Config.JWTSecret = "test-secret"
	flags.Config.JWTIssuer = "stravahub"
	return &testApp{flags: flags}
}

// run builds a fresh command tree per invocation and resets the captured output.
func (a *testApp) run(args ...string) error {
	a.out.Reset()
	app := &cli.Command{Name: "stravasync", Writer: &a.out}
	app = NewSyncCmd(a.flags).Register(app)
	app = NewLsCmd(a.flags).Register(app)
	app = NewRunsCmd(a.flags).Register(app)
	app = NewMigrateCmd(a.flags).Register(app)
	app = NewTokenCmd(a.flags).Register(app)
	return app.Run(context.Background(), append([]string{"stravasync"}, args...))
}

func (a *testApp) useStrava(srv *httptest.Server) {
	a.flags.Config.Strava.AuthURL = srv.URL + "/oauth/token"
	a.flags.Config.Strava.APIURL = srv.URL + "/api/v3"
}

func fakeStrava(t *testing.T, tokenStatus int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(tokenStatus)
		if tokenStatus != http.StatusOK {
			_, _ = w.Write([]byte(`{"message":"Bad Request","errors":[{"resource":"RefreshToken","field":"refresh_token","code":"invalid"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"token_type":"Bearer","access_token":"access-cli","expires_in":21600}`))
	})
	mux.HandleFunc("/api/v3/athlete/activities", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") != "1" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[
			{"id":2,"name":"Evening Ride","type":"Ride","distance":20500,"moving_time":3725,"start_date":"2024-02-02T18:00:00Z"},
			{"id":1,"name":"Morning Run","type":"Run","distance":5000,"moving_time":1500,"start_date":"2024-02-01T07:00:00Z"}
		]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSyncThenList(t *testing.T) {
	app := newTestApp(t)
	app.useStrava(fakeStrava(t, http.StatusOK))

	require.NoError(t, app.run("sync", "--mode", "full"))
	require.Contains(t, app.out.String(), "added=2")
	require.Contains(t, app.out.String(), "reason=empty_page")

	require.NoError(t, app.run("ls", "--limit", "1"))
	lines := strings.Split(strings.TrimSpace(app.out.String()), "\n")
	require.Contains(t, lines[0], "ID")
	require.Contains(t, lines[1], "Evening Ride")
	require.Contains(t, lines[1], "20.50 km")
	require.Contains(t, lines[1], "1:02:05")
	require.Contains(t, app.out.String(), "next cursor: ")

	require.NoError(t, app.run("runs"))
	require.Contains(t, app.out.String(), "empty_page")

	require.NoError(t, app.run("sync"))
	require.Contains(t, app.out.String(), "added=0")
	require.Contains(t, app.out.String(), "reason=known_activity")
}

func TestSyncAuthFailureIncludesResponse(t *testing.T) {
	app := newTestApp(t)
	app.useStrava(fakeStrava(t, http.StatusBadRequest))

	err := app.run("sync")
	require.Error(t, err)
	require.Contains(t, err.Error(), "strava response")
	require.Contains(t, err.Error(), "RefreshToken")
	require.Contains(t, app.out.String(), "reason=auth_failed")
}

func TestSyncRejectsUnknownMode(t *testing.T) {
	app := newTestApp(t)

	err := app.run("sync", "--mode", "all")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown sync mode")
}

func TestListEmptyStore(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.run("ls"))
	require.Contains(t, app.out.String(), "No activities found")
}

func TestMigrateSQLite(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.run("migrate"))
	require.Contains(t, app.out.String(), "sqlite schema is up to date")
}

func TestTokenIsAcceptedByAuth(t *testing.T) {
	app := newTestApp(t)

	require.NoError(t, app.run("token", "--scope", auth.ScopeActivitiesRead, "--ttl", "5m"))

	cfg := auth.Config{Secret: app.flags.Config.JWTSecret, Issuer: app.flags.Config.JWTIssuer}
	claims, err := auth.Parse(strings.TrimSpace(app.out.String()), cfg)
	require.NoError(t, err)
	require.Equal(t, "stravasync", claims.Subject)
	require.True(t, claims.HasScope(auth.ScopeActivitiesRead))
	require.False(t, claims.HasScope(auth.ScopeActivitiesSync))
	require.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt, time.Minute)
}

func TestFormatSeconds(t *testing.T) {
	require.Equal(t, "0:25:00", formatSeconds(1500))
	require.Equal(t, "1:02:05", formatSeconds(3725))
}
