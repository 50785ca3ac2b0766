package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSEmitter publishes payloads as JSON on a NATS subject.
type NATSEmitter struct {
	conn    *nats.Conn
	subject string
	log     *slog.Logger
}

// ConnectNATS dials url and returns an emitter publishing on subject.
func ConnectNATS(url, subject string, log *slog.Logger) (*NATSEmitter, error) {
	conn, err := nats.Connect(url,
		nats.Name("gostt-stream"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info("connected to NATS", slog.String("url", url), slog.String("subject", subject))
	return &NATSEmitter{conn: conn, subject: subject, log: log}, nil
}

// Emit publishes p. It fails when the connection is not established.
func (e *NATSEmitter) Emit(_ context.Context, p Payload) error {
	if e.conn.Status() != nats.CONNECTED {
		return fmt.Errorf("%w: nats connection %s", ErrUnavailable, e.conn.Status())
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("event: marshal payload: %w", err)
	}
	if err := e.conn.Publish(e.subject, data); err != nil {
		return fmt.Errorf("event: publish %s: %w", e.subject, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (e *NATSEmitter) Close() {
	if e == nil {
		return
	}
	e.log.Info("closing NATS connection")
	_ = e.conn.Drain()
	e.conn.Close()
}
