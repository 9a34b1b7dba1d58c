package sampler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/parentalcompanion/agentd/internal/domain"
)

// PositionSampler reads the current fix from a local location bridge over
// HTTP. The bridge is the OS integration boundary: whatever provides GPS
// on the platform answers GET <url> with a JSON fix, 204 when there is no
// fix, or an error when location access is absent.
type PositionSampler struct {
	url    string
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewPositionSampler creates a sampler against the given bridge URL. An
// empty URL means no location provider is configured; every sample
// returns nil.
func NewPositionSampler(url string, timeout time.Duration, logger *zap.Logger) *PositionSampler {
	return &PositionSampler{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

type fixPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float32 `json:"accuracy"`
}

// Sample returns the current position, or nil when no fix is available.
// Transient bridge failures are logged and reported as "no fix"; the next
// scheduled cycle retries naturally.
func (s *PositionSampler) Sample(ctx context.Context) (*domain.Position, error) {
	if s.url == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("location bridge unreachable", zap.Error(err))
		return nil, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		s.logger.Debug("location bridge error", zap.Int("status", resp.StatusCode))
		return nil, nil
	}

	var fix fixPayload
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		s.logger.Debug("malformed location fix", zap.Error(err))
		return nil, nil
	}

	return &domain.Position{
		Latitude:       fix.Latitude,
		Longitude:      fix.Longitude,
		AccuracyMeters: fix.Accuracy,
		Timestamp:      s.now(),
	}, nil
}

// Ensure PositionSampler implements domain.PositionSampler.
var _ domain.PositionSampler = (*PositionSampler)(nil)
