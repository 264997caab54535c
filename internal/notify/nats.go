package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subject suffixes appended to the configured prefix.
const (
	SubjectInteractions = "interactions"
	SubjectSweeps       = "sweeps"
	SubjectDigest       = "digest"
)

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATSPublisher publishes events and digests as JSON on NATS subjects.
type NATSPublisher struct {
	conn   natsConn
	prefix string
	logger *zap.Logger
}

// DialNATS connects to url and returns a publisher using subject prefix.
func DialNATS(url, prefix string, logger *zap.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("agentpulse"),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("notify: nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("notify: nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats %s: %w", url, err)
	}
	logger.Info("notify: connected to nats", zap.String("url", url))
	return newNATSPublisher(nc, prefix, logger), nil
}

func newNATSPublisher(conn natsConn, prefix string, logger *zap.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = "feed"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns prefix.suffix.
func (p *NATSPublisher) Subject(suffix string) string {
	return p.prefix + "." + suffix
}

// Publish sends evt on the interactions or sweeps subject.
func (p *NATSPublisher) Publish(ctx context.Context, evt Event) error {
	subject := p.Subject(SubjectInteractions)
	if evt.Type == EventSweepComplete {
		subject = p.Subject(SubjectSweeps)
	}
	return p.publishJSON(ctx, subject, evt)
}

// Notify sends the digest on the digest subject.
func (p *NATSPublisher) Notify(ctx context.Context, digest Digest) error {
	return p.publishJSON(ctx, p.Subject(SubjectDigest), digest)
}

func (p *NATSPublisher) publishJSON(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("notify: publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		p.logger.Debug("notify: nats flush failed", zap.Error(err))
	}
	p.conn.Close()
}
