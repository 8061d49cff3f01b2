package eventbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sentinai/netguard/internal/config"
	"github.com/sentinai/netguard/internal/models"
)

// Publisher fans detected threats out to live subscribers (dashboard
// bridges, downstream responders). Publish failures are logged by callers
// and never block detection.
type Publisher interface {
	PublishThreat(event models.Event) error
	Close()
}

// threatMessage is the wire envelope subscribers receive.
type threatMessage struct {
	Type string       `json:"type"`
	Data models.Event `json:"data"`
}

const messageTypeThreat = "THREAT_DETECTED"

// New constructs the configured publisher. An empty NATS URL disables the
// bus and returns a no-op implementation.
func New(cfg config.BusConfig, logger *slog.Logger) (Publisher, error) {
	if cfg.NATSURL == "" {
		logger.Info("event bus disabled, no NATS URL configured")
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(cfg.NATSURL, cfg.Subject, logger)
}

// NATSPublisher publishes threat events on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSPublisher connects to NATS with retry-on-failed-connect and
// bounded reconnects so a briefly absent broker does not fail startup.
func NewNATSPublisher(url, subject string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	logger.Info("connected to NATS", "url", url, "subject", subject)

	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// PublishThreat marshals the event into the threat envelope and publishes
// it on the configured subject.
func (p *NATSPublisher) PublishThreat(event models.Event) error {
	data, err := json.Marshal(threatMessage{Type: messageTypeThreat, Data: event})
	if err != nil {
		return fmt.Errorf("failed to encode threat message: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish threat: %w", err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		p.logger.Info("disconnected from NATS")
	}
}

// NoopPublisher drops every message; used when the bus is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishThreat(models.Event) error { return nil }
func (NoopPublisher) Close()                           {}
