package sampler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartOfDay(t *testing.T) {
	at := time.Date(2026, 8, 28, 15, 42, 13, 500, time.Local)
	midnight := StartOfDay(at)

	assert.Equal(t, 0, midnight.Hour())
	assert.Equal(t, 0, midnight.Minute())
	assert.Equal(t, at.Day(), midnight.Day())

	// Just after midnight stays on the same day.
	early := time.Date(2026, 8, 28, 0, 0, 1, 0, time.Local)
	assert.Equal(t, midnight, StartOfDay(early))
}

func TestUsageSampler_SampleNeverErrors(t *testing.T) {
	s := NewUsageSampler(zap.NewNop())

	snap, err := s.Sample(context.Background())
	require.NoError(t, err)
	if !snap.Empty() {
		assert.False(t, snap.SampledAt.IsZero())
		assert.GreaterOrEqual(t, snap.TotalForegroundMinutes, 0)
	}
}

func TestPositionSampler_NoProviderConfigured(t *testing.T) {
	s := NewPositionSampler("", time.Second, zap.NewNop())

	pos, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestPositionSampler_ReadsFix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"latitude":-33.86,"longitude":151.20,"accuracy":12.5}`))
	}))
	defer srv.Close()

	s := NewPositionSampler(srv.URL, time.Second, zap.NewNop())
	pos, err := s.Sample(context.Background())

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.InDelta(t, -33.86, pos.Latitude, 0.001)
	assert.InDelta(t, 151.20, pos.Longitude, 0.001)
	assert.InDelta(t, 12.5, float64(pos.AccuracyMeters), 0.001)
	assert.False(t, pos.Timestamp.IsZero())
}

func TestPositionSampler_NoFix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewPositionSampler(srv.URL, time.Second, zap.NewNop())
	pos, err := s.Sample(context.Background())

	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestPositionSampler_BridgeDownIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	s := NewPositionSampler(url, 100*time.Millisecond, zap.NewNop())
	pos, err := s.Sample(context.Background())

	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestPositionSampler_MalformedFix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"latitude":"not-a-number"`))
	}))
	defer srv.Close()

	s := NewPositionSampler(srv.URL, time.Second, zap.NewNop())
	pos, err := s.Sample(context.Background())

	require.NoError(t, err)
	assert.Nil(t, pos)
}
