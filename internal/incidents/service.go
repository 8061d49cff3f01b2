package incidents

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sentinai/netguard/internal/models"
	"github.com/sentinai/netguard/internal/storage"
)

// Service orchestrates the lifecycle of security incidents: retrieving the
// operational feed, triaging (Active -> Resolved), and acknowledging
// mitigation commands. It is unaware of which backend serves its reads.
type Service struct {
	gateway *storage.Gateway
	logger  *slog.Logger
}

// NewService constructs the incident lifecycle service over the gateway.
func NewService(gateway *storage.Gateway, logger *slog.Logger) *Service {
	return &Service{
		gateway: gateway,
		logger:  logger,
	}
}

// ListEvents returns the incident feed, optionally filtered by lifecycle
// state and bounded by a timestamp range (inclusive start, exclusive end).
// The status filter is case-insensitive: empty or "all" disables it,
// "resolved" selects closed incidents, anything else selects unresolved ones
// with a missing status counting as Active.
func (s *Service) ListEvents(ctx context.Context, statusFilter, start, end string, limit int) ([]models.Event, error) {
	var (
		feed []models.Event
		err  error
	)
	if start != "" && end != "" {
		feed, err = s.gateway.QueryRange(ctx, start, end)
	} else {
		feed, err = s.gateway.QueryRecent(ctx, limit)
	}
	if err != nil {
		return nil, err
	}

	target := strings.ToLower(statusFilter)
	if target == "" || target == "all" {
		return feed, nil
	}

	wantResolved := target == "resolved"
	filtered := make([]models.Event, 0, len(feed))
	for _, event := range feed {
		if event.IsResolved() == wantResolved {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

// Resolve transitions the incident to Resolved and returns the updated
// record. An absent id surfaces as storage.ErrNotFound.
func (s *Service) Resolve(ctx context.Context, id string) (models.Event, error) {
	event, err := s.gateway.Resolve(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	s.logger.Info("incident resolved", "id", id)
	return event, nil
}

// Block acknowledges a mitigation command against the incident's source.
// The countermeasure itself runs outside this system; the acknowledgement is
// recorded so operators see the command was accepted.
func (s *Service) Block(ctx context.Context, id string) error {
	s.logger.Info("mitigation acknowledged", "id", id)
	return nil
}
