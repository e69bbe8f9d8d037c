package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"fitbook/internal/config"
	"fitbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := zerolog.Nop()
	return NewClient(config.GeocoderConfig{
		BaseURL:        server.URL,
		UserAgent:      "fitbook-test",
		TimeoutSeconds: 5,
		RequestsPerSec: 1000,
	}, &logger)
}

func TestGeocode(t *testing.T) {
	addr := models.Address{Street: "Main", BuildingNumber: "12", ZipCode: "00-100", City: "Warsaw"}

	t.Run("Success", func(t *testing.T) {
		var gotQuery map[string]string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotQuery = map[string]string{
				"street":     r.URL.Query().Get("street"),
				"postalcode": r.URL.Query().Get("postalcode"),
				"city":       r.URL.Query().Get("city"),
				"format":     r.URL.Query().Get("format"),
			}
			assert.Equal(t, "fitbook-test", r.Header.Get("User-Agent"))
			w.Write([]byte(`[{"lat":"52.2297","lon":"21.0122"}]`))
		})

		coords, err := client.Geocode(context.Background(), addr)
		require.NoError(t, err)
		require.NotNil(t, coords)
		assert.InDelta(t, 52.2297, coords.Latitude, 0.0001)
		assert.InDelta(t, 21.0122, coords.Longitude, 0.0001)
		assert.Equal(t, "12 Main", gotQuery["street"])
		assert.Equal(t, "00-100", gotQuery["postalcode"])
		assert.Equal(t, "Warsaw", gotQuery["city"])
		assert.Equal(t, "json", gotQuery["format"])
	})

	t.Run("AddressNotFound", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		})

		coords, err := client.Geocode(context.Background(), addr)
		require.NoError(t, err)
		assert.Nil(t, coords)
	})

	t.Run("EmptyAddressSkipsRequest", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected for empty address")
		})

		coords, err := client.Geocode(context.Background(), models.Address{})
		require.NoError(t, err)
		assert.Nil(t, coords)
	})

	t.Run("ServerError", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := client.Geocode(context.Background(), addr)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"not":"a list"}`))
		})

		_, err := client.Geocode(context.Background(), addr)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("ConnectionRefused", func(t *testing.T) {
		logger := zerolog.Nop()
		client := NewClient(config.GeocoderConfig{
			BaseURL:        "http://127.0.0.1:1",
			UserAgent:      "fitbook-test",
			TimeoutSeconds: 1,
			RequestsPerSec: 1000,
		}, &logger)

		_, err := client.Geocode(context.Background(), addr)
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
