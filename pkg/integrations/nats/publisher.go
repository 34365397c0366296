// Package nats publishes collection results to the downstream aggregation
// pipeline. One subject per collector so consumers can subscribe per source.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/marketflow/marketflow/pkg/domain"
)

// DefaultSubjectPrefix is used when the config leaves the prefix empty.
const DefaultSubjectPrefix = "marketflow.results"

// Config for the result publisher.
type Config struct {
	URL           string
	SubjectPrefix string
	// ConnectTimeout bounds the initial dial.
	ConnectTimeout time.Duration
}

// conn is the part of *nats.Conn the publisher uses, extracted for tests.
type conn interface {
	Publish(subj string, data []byte) error
	Flush() error
	Close()
}

// ResultPublisher pushes CollectionResults to NATS.
type ResultPublisher struct {
	conn   conn
	prefix string
	logger *zap.Logger

	published metric.Int64Counter
	failed    metric.Int64Counter
}

// NewResultPublisher dials NATS and builds a publisher.
func NewResultPublisher(cfg Config, logger *zap.Logger) (*ResultPublisher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url cannot be empty")
	}
	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	nc, err := natsgo.Connect(cfg.URL,
		natsgo.Timeout(timeout),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return newResultPublisher(nc, cfg.SubjectPrefix, logger)
}

func newResultPublisher(nc conn, prefix string, logger *zap.Logger) (*ResultPublisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	meter := otel.Meter("integrations.nats.results")
	published, err := meter.Int64Counter("results_published_total",
		metric.WithDescription("Collection results published to NATS"))
	if err != nil {
		return nil, fmt.Errorf("failed to create published counter: %w", err)
	}
	failed, err := meter.Int64Counter("results_publish_failures_total",
		metric.WithDescription("Collection results that failed to publish"))
	if err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}

	return &ResultPublisher{
		conn:      nc,
		prefix:    prefix,
		logger:    logger.Named("nats-publisher"),
		published: published,
		failed:    failed,
	}, nil
}

// Publish sends one result to its collector's subject.
func (p *ResultPublisher) Publish(ctx context.Context, result *domain.CollectionResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	data, err := json.Marshal(result)
	if err != nil {
		p.failed.Add(ctx, 1)
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	subject := p.subjectFor(result.CollectorID)
	if err := p.conn.Publish(subject, data); err != nil {
		p.failed.Add(ctx, 1)
		p.logger.Error("publish failed",
			zap.String("subject", subject),
			zap.String("result_id", result.ID),
			zap.Error(err))
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	p.published.Add(ctx, 1, metric.WithAttributes(attribute.String("collector", result.CollectorID)))
	p.logger.Debug("result published",
		zap.String("subject", subject),
		zap.String("result_id", result.ID),
		zap.Int("bytes", len(data)))
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *ResultPublisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to flush nats connection: %w", err)
	}
	p.conn.Close()
	return nil
}

func (p *ResultPublisher) subjectFor(collectorID string) string {
	return p.prefix + "." + collectorID
}
