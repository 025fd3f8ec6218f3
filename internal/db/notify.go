package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"intake-chat/internal/events"
	"intake-chat/internal/logger"
)

// Postgres rejects NOTIFY payloads of 8000 bytes or more.
const maxPayload = 7999

// Notifier publishes intake events on a PostgreSQL NOTIFY channel so every
// replica's doctor stream sees them.
type Notifier struct {
	DB      *sql.DB
	Channel string
}

// Open connects to Postgres with the pq driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}

func NewNotifier(db *sql.DB, channel string) *Notifier {
	return &Notifier{DB: db, Channel: channel}
}

// Publish sends ev as the JSON payload of a NOTIFY.
func (n *Notifier) Publish(ctx context.Context, ev events.Event) error {
	stmt, err := notifyStatement(n.Channel, ev)
	if err != nil {
		return err
	}
	if _, err := n.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("notify %s: %w", n.Channel, err)
	}
	return nil
}

// notifyStatement builds the NOTIFY for ev. Event data is dropped when the
// full event would not fit in a notification.
func notifyStatement(channel string, ev events.Event) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode notification: %w", err)
	}
	if len(payload) > maxPayload {
		ev.Data = nil
		if payload, err = json.Marshal(ev); err != nil {
			return "", fmt.Errorf("encode notification: %w", err)
		}
	}
	return fmt.Sprintf("NOTIFY %s, %s", pq.QuoteIdentifier(channel), pq.QuoteLiteral(string(payload))), nil
}

// Close closes the database handle.
func (n *Notifier) Close() error {
	return n.DB.Close()
}

// Listen subscribes to channel and forwards every decoded event to sink
// until ctx is cancelled. Reconnects are handled by pq.Listener.
func Listen(ctx context.Context, dsn, channel string, sink events.Publisher) error {
	log := logger.WithField("channel", channel)
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).Warn("Postgres listener event")
		}
	})
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	go func() {
		defer listener.Close()
		ping := time.NewTicker(90 * time.Second)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// nil after a reconnect
				if n == nil {
					continue
				}
				var ev events.Event
				if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
					log.WithError(err).Warn("Ignoring malformed notification")
					continue
				}
				if err := sink.Publish(ctx, ev); err != nil {
					log.WithError(err).Warn("Forwarding notification failed")
				}
			case <-ping.C:
				if err := listener.Ping(); err != nil {
					log.WithError(err).Warn("Postgres listener ping failed")
				}
			}
		}
	}()
	return nil
}
