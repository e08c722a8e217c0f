package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects on the imaging bus. Lucid consumes stored classifier results and
// announces its own records.
const (
	SubjectResultStored       = "imaging.classifier.result.stored"
	SubjectExplanationCreated = "imaging.lucid.explanation.created"
	SubjectAnalysisRejected   = "imaging.lucid.analysis.rejected"
	SubjectTurnRecorded       = "imaging.lucid.turn.recorded"
)

// ExplanationCreated announces a freshly built explanation record.
type ExplanationCreated struct {
	ExplanationID    string `json:"explanation_id"`
	SessionID        string `json:"session_id"`
	Class            string `json:"class"`
	ConfidenceLevel  string `json:"confidence_level"`
	UncertaintyLevel string `json:"uncertainty_level"`
}

// AnalysisRejected announces a classifier payload that failed validation.
// Nothing is recorded for a rejected analysis, so downstream consumers see
// this event or an ExplanationCreated, never both.
type AnalysisRejected struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// TurnRecorded announces a conversation turn appended to a session log.
type TurnRecorded struct {
	SessionID  string `json:"session_id"`
	SequenceID int64  `json:"sequence_id"`
	Intent     string `json:"intent"`
	Grounded   bool   `json:"grounded"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
