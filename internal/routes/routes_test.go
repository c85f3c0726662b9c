package routes

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"example.com/stravahub/internal/domain"
)

// The reference polyline from Google's encoding documentation.
const samplePath = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func withPath(id int64, path string) domain.Activity {
	return domain.Activity{ExternalID: id, Name: "Ride", ActivityType: "Ride", EncodedPath: &path}
}

func TestDecode(t *testing.T) {
	route, err := Decode(withPath(1, samplePath))
	require.NoError(t, err)
	require.NotNil(t, route)
	require.Len(t, route.Points, 3)
	require.InDelta(t, 38.5, route.Points[0].Lat, 1e-5)
	require.InDelta(t, -120.2, route.Points[0].Lng, 1e-5)
	require.InDelta(t, 43.252, route.Points[2].Lat, 1e-5)
	require.InDelta(t, -126.453, route.Points[2].Lng, 1e-5)

	require.InDelta(t, 38.5, route.Bounds.South, 1e-5)
	require.InDelta(t, 43.252, route.Bounds.North, 1e-5)
	require.InDelta(t, -126.453, route.Bounds.West, 1e-5)
	require.InDelta(t, -120.2, route.Bounds.East, 1e-5)
}

func TestDecodeWithoutPath(t *testing.T) {
	route, err := Decode(domain.Activity{ExternalID: 2})
	require.NoError(t, err)
	require.Nil(t, route)

	route, err = Decode(withPath(3, ""))
	require.NoError(t, err)
	require.Nil(t, route)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode(withPath(4, "_p~iF~ps|U_"))

	var decodeErr *domain.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, int64(4), decodeErr.ExternalID)
}

func TestCollectSkipsBadRoutes(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)

	routes := Collect([]domain.Activity{
		withPath(1, samplePath),
		withPath(2, "_p~iF~ps|U_"),
		{ExternalID: 3},
	}, logger)

	require.Len(t, routes, 1)
	require.Equal(t, int64(1), routes[0].ExternalID)
	require.Contains(t, logs.String(), "skipping undecodable route")
	require.Contains(t, logs.String(), `"external_id":2`)
}

func TestUnion(t *testing.T) {
	_, ok := Union(nil)
	require.False(t, ok)

	b, ok := Union([]Route{
		{Bounds: Bounds{South: 1, West: 1, North: 2, East: 2}},
		{Bounds: Bounds{South: -1, West: 1.5, North: 1.5, East: 3}},
	})
	require.True(t, ok)
	require.Equal(t, Bounds{South: -1, West: 1, North: 2, East: 3}, b)
}
