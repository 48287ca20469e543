// Package kafka consumes view-changed events from a Kafka topic and evicts
// the affected views from the catalog cache.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/openrasters/coverageview/internal/invalidation"
	"github.com/openrasters/coverageview/internal/observability"
)

type Config struct {
	Enabled          bool
	Brokers          []string
	Topic            string
	GroupID          string
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 10 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 3 * time.Second
	}
	if c.RebalanceTimeout <= 0 {
		c.RebalanceTimeout = 60 * time.Second
	}
	return c
}

// Invalidator is the slice of the catalog cache the runner needs.
type Invalidator interface {
	Invalidate(name string)
}

type Runner struct {
	log    *slog.Logger
	cfg    Config
	cat    Invalidator
	ver    *versionDedupe
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfg Config, cat Invalidator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		log: logger,
		cfg: cfg.withDefaults(),
		cat: cat,
		ver: newVersionDedupe(4096),
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("view invalidation runner disabled")
		return nil
	}
	if r.cat == nil {
		return errors.New("kafka runner: catalog dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{log: r.log, process: r.handleMessage}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("view invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("view invalidation runner stopped")
}

func (r *Runner) handleMessage(_ context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()

	if !msg.Timestamp.IsZero() {
		observability.SetInvalidationLagSeconds(time.Since(msg.Timestamp).Seconds())
	}

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.ObserveInvalidation("decode", err, time.Since(start).Seconds())
		return fmt.Errorf("decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		observability.ObserveInvalidation(ev.Op, err, time.Since(start).Seconds())
		return fmt.Errorf("validate: %w", err)
	}

	if !r.ver.shouldApply(ev.View, ev.Version) {
		r.log.Debug("invalidation replay skipped", "view", ev.View, "version", ev.Version)
		observability.ObserveInvalidation(ev.Op, nil, time.Since(start).Seconds())
		return nil
	}

	r.cat.Invalidate(ev.View)
	observability.ObserveInvalidation(ev.Op, nil, time.Since(start).Seconds())
	r.log.Info("view invalidated",
		"view", ev.View, "op", ev.Op, "version", ev.Version)
	return nil
}

type groupHandler struct {
	log     *slog.Logger
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			// A poison message must not wedge the partition; log and move on.
			h.log.Error("invalidation message dropped", "err", err)
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
