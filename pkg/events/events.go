// Package events publishes turn lifecycle events over NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	logx "github.com/tiles-ai/tiles-planner/pkg/logger"
	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
)

const defaultSubjectPrefix = "tiles.turns"

type Config struct {
	URL           string `split_words:"true"`
	Token         string `split_words:"true"`
	SubjectPrefix string `envconfig:"SUBJECT_PREFIX" split_words:"true" default:"tiles.turns"`
}

// NATSPublisher sends TurnEvents to a NATS subject per session.
type NATSPublisher struct {
	conn          *nats.Conn
	subjectPrefix string
	log           zerolog.Logger
}

var _ contractx.Publisher = (*NATSPublisher)(nil)

func Connect(cfg Config) (*NATSPublisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	prefix := strings.TrimSpace(cfg.SubjectPrefix)
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}

	return &NATSPublisher{
		conn:          conn,
		subjectPrefix: prefix,
		log:           logx.Component("events"),
	}, nil
}

func (p *NATSPublisher) PublishTurnCompleted(_ context.Context, ev contractx.TurnEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal turn event: %w", err)
	}
	subject := p.subjectPrefix + "." + ev.SessionID
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish turn event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
