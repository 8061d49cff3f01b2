package collector

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/google/uuid"
	"github.com/sentinai/netguard/internal/config"
	"github.com/sentinai/netguard/internal/eventbus"
	"github.com/sentinai/netguard/internal/models"
	"github.com/sentinai/netguard/internal/storage"
)

const (
	dialTimeout      = 10 * time.Second
	reconnectBackoff = 5 * time.Second
)

// Collector is the host-intrusion side of ingestion: it tails the auth log
// of a target server over SSH, classifies suspicious lines, and feeds the
// resulting events into the gateway and the event bus.
type Collector struct {
	cfg     config.CollectorConfig
	gateway *storage.Gateway
	bus     eventbus.Publisher
	logger  *slog.Logger
}

// New constructs a collector for the configured target host.
func New(cfg config.CollectorConfig, gateway *storage.Gateway, bus eventbus.Publisher, logger *slog.Logger) *Collector {
	return &Collector{
		cfg:     cfg,
		gateway: gateway,
		bus:     bus,
		logger:  logger,
	}
}

// Run tails the target's auth log until the context is canceled,
// reconnecting with a fixed backoff when the session drops.
func (c *Collector) Run(ctx context.Context) {
	for {
		if err := c.tail(ctx); err != nil {
			c.logger.Error("collector session ended", "host", c.cfg.Host, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectBackoff):
		}
	}
}

func (c *Collector) tail(ctx context.Context) error {
	client, err := c.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	stdout, err := session.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach stdout: %w", err)
	}

	cmd := "tail -F " + c.cfg.LogPath
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("failed to start %q: %w", cmd, err)
	}
	c.logger.Info("tailing auth log", "host", c.cfg.Host, "path", c.cfg.LogPath)

	// Closing the client unblocks the scanner when the context ends.
	go func() {
		<-ctx.Done()
		client.Close()
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if alert, ok := Classify(scanner.Text()); ok {
			c.dispatch(ctx, alert)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("log stream failed: %w", err)
	}
	return fmt.Errorf("log stream closed")
}

func (c *Collector) dial() (*ssh.Client, error) {
	sshConfig := &ssh.ClientConfig{
		User: c.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.cfg.Password),
		},
		// The target is an owned lab host addressed by IP; there is no
		// distributed host-key directory to verify against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	addr := net.JoinHostPort(c.cfg.Host, "22")
	client, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	c.logger.Info("ssh connection established", "addr", addr)
	return client, nil
}

// dispatch builds the telemetry event for an alert, persists it through the
// gateway, and fans it out on the bus. Neither failure stops the tail loop.
func (c *Collector) dispatch(ctx context.Context, alert Alert) {
	event := models.Event{
		ID:             uuid.NewString(),
		Timestamp:      models.FormatTime(time.Now()),
		SourceIP:       c.cfg.Host,
		DestinationIP:  "Local",
		Protocol:       "SYSLOG",
		DestPort:       22,
		PacketSize:     0,
		PredictedLabel: alert.Label,
		RiskScore:      alert.RiskScore,
		Confidence:     1.0, // log lines are facts, not inferences
		Status:         models.StatusActive,
		Metadata: map[string]any{
			"log_line": alert.Line,
			"source":   "HIDS",
		},
	}

	c.logger.Warn("host alert detected", "label", alert.Label, "host", c.cfg.Host)

	if err := c.gateway.SaveEvent(ctx, event); err != nil {
		c.logger.Error("failed to persist host alert", "error", err)
	}
	if err := c.bus.PublishThreat(event); err != nil {
		c.logger.Error("failed to publish host alert", "error", err)
	}
}
