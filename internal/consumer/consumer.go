// Package consumer feeds key-member events from a Kafka topic into the ingestion pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/apperror"
	"github.com/spigell/resume-updater/internal/pipeline"
	"github.com/spigell/resume-updater/internal/tracker"
	"github.com/spigell/resume-updater/internal/utils"
)

type Config struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group-id"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

type processor interface {
	ProcessEvent(ctx context.Context, entry tracker.KeyMemberEntry) (*pipeline.Result, error)
}

// NewReader opens a consumer-group reader on the configured topic.
func NewReader(cfg Config) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		CommitInterval: time.Second,
		StartOffset:    kafkago.FirstOffset,
	})
}

const (
	defaultAttempts = 3
	defaultBackoff  = time.Second
	maxBackoff      = 30 * time.Second
)

type Consumer struct {
	reader    messageReader
	processor processor
	validate  *validator.Validate
	attempts  int
	backoff   time.Duration
	logger    *zap.Logger
}

func New(reader messageReader, p processor, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := validator.New()
	v.SetTagName("binding")

	return &Consumer{
		reader:    reader,
		processor: p,
		validate:  v,
		attempts:  defaultAttempts,
		backoff:   defaultBackoff,
		logger:    logger.Named("consumer"),
	}
}

// Run consumes until ctx is cancelled. Messages that can never succeed (undecodable or
// invalid) are committed and dropped. A processing failure is retried in place; when the
// retries run out Run returns the error without committing, since a later commit would move
// the group offset past the message. The message is redelivered once the consumer rejoins.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("key member consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("close reader", zap.Error(err))
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("key member consumer stopped")
				return nil
			}
			c.logger.Error("fetch key member message failed", zap.Error(err))
			continue
		}

		log := c.logger.With(zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))

		if err := c.process(ctx, msg, log); err != nil {
			if ctx.Err() != nil {
				c.logger.Info("key member consumer stopped")
				return nil
			}
			return fmt.Errorf("key member message at partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit key member message failed", zap.Error(err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafkago.Message, log *zap.Logger) error {
	var err error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			delay := utils.Backoff(attempt-1, c.backoff, maxBackoff)
			log.Warn("retrying key member event", zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
			if werr := utils.WaitFor(ctx, delay); werr != nil {
				return werr
			}
		}
		if err = c.handle(ctx, msg, log); err == nil {
			return nil
		}
	}
	return err
}

// handle returns an error only for failures worth retrying.
func (c *Consumer) handle(ctx context.Context, msg kafkago.Message, log *zap.Logger) error {
	var entry tracker.KeyMemberEntry
	if err := json.Unmarshal(msg.Value, &entry); err != nil {
		log.Error("decode key member event failed, skipping", zap.Error(err))
		return nil
	}

	if err := c.validate.Struct(entry); err != nil {
		log.Warn("invalid key member event, skipping", zap.Error(apperror.MapValidationError(err)))
		return nil
	}

	res, err := c.processor.ProcessEvent(ctx, entry)
	if err != nil {
		if errors.Is(err, apperror.ErrValidation) {
			log.Warn("rejected key member event, skipping", zap.Error(err))
			return nil
		}
		log.Error("process key member event failed", zap.Error(err))
		return err
	}

	log.Info("key member event processed",
		zap.String("status", res.Status),
		zap.String("tracker_id", res.TrackerID),
	)
	return nil
}
