package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/jspindler/takt/internal/event"
)

// NATSPublisher mirrors bus events onto NATS subjects so other plant
// systems (MES, andon boards) can react to schedule changes. Delivery is
// fire-and-forget: publish failures are logged, never surfaced to the run.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewNATSPublisher connects to url and reconnects indefinitely. The prefix
// (default "takt") namespaces the subjects: takt.schedule.instance_scheduled,
// takt.emergency.emergency_approved, and so on.
func NewNATSPublisher(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = "takt"
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("takt-scheduler"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}, nil
}

// Attach subscribes the publisher to every bus event.
func (p *NATSPublisher) Attach(bus *event.Bus) {
	bus.SubscribeAll(p.publish)
}

func (p *NATSPublisher) publish(e event.Event) {
	if p.nc == nil || p.nc.IsClosed() {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encoding event", "type", e.Type, "error", err)
		return
	}
	if err := p.nc.Publish(p.subjectFor(e.Type), payload); err != nil {
		p.logger.Warn("publishing event", "type", e.Type, "error", err)
	}
}

func (p *NATSPublisher) subjectFor(t event.Type) string {
	group := "schedule"
	switch t {
	case event.EmergencyRequested, event.EmergencyApproved,
		event.EmergencyRejected, event.EmergencyScheduled:
		group = "emergency"
	}
	return p.prefix + "." + group + "." + string(t)
}

// Close drains pending messages and shuts the connection down.
func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}
