package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"swapScope/internal/model"
)

const (
	DefaultSubjectPrefix = "swapscope"
	progressSuffix       = "progress"
	reportSuffix         = "report"
)

// Config configures the NATS connection.
type Config struct {
	URL            string
	SubjectPrefix  string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Close()
}

// Publisher forwards progress events and finished reports to NATS subjects
// <prefix>.progress and <prefix>.report.
type Publisher struct {
	conn   Conn
	prefix string
	logger *zap.Logger
}

// Connect dials NATS and returns a publisher over the connection.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "nats-publisher"))

	opts := []nats.Option{
		nats.Name("swapscope"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("nats connection closed")
		}),
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	log.Info("connected to nats", zap.String("url", conn.ConnectedUrl()))
	return NewPublisher(conn, cfg.SubjectPrefix, logger), nil
}

func NewPublisher(conn Conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With(zap.String("component", "nats-publisher")),
	}
}

func (p *Publisher) ProgressSubject() string {
	return p.prefix + "." + progressSuffix
}

func (p *Publisher) ReportSubject() string {
	return p.prefix + "." + reportSuffix
}

// Notify publishes a progress event. Delivery failures are logged only.
func (p *Publisher) Notify(event model.ProgressEvent) {
	if err := p.publish(p.ProgressSubject(), event); err != nil {
		p.logger.Warn("publish progress failed",
			zap.String("job", event.JobID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

// Export publishes the finished report and flushes the connection.
func (p *Publisher) Export(_ context.Context, report model.Report) error {
	if err := p.publish(p.ReportSubject(), report); err != nil {
		return err
	}
	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Flush(); err != nil {
		p.logger.Debug("flush on close failed", zap.Error(err))
	}
	p.conn.Close()
}

func (p *Publisher) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
