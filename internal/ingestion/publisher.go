package ingestion

import (
	"EscrowLedger/internal/event"
	"EscrowLedger/internal/observability"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes committed notices to NATS for downstream
// consumers (indexers, reporting, client notification fan-out). Notices are
// published after the core commits; persistence does not gate publication.
// Subjects follow the pattern: escrow.ledger.events.{notice_type}
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableNotice
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// PublishableNotice is one committed notice ready for outbound publishing.
// NoticeIndex disambiguates multiple notices from a single command so the
// JetStream msg-id dedup window suppresses redelivered duplicates.
type PublishableNotice struct {
	Sequence       int64        `json:"sequence"`
	NoticeIndex    int          `json:"notice_index"`
	NoticeType     string       `json:"notice_type"`
	IdempotencyKey string       `json:"idempotency_key"`
	Stream         string       `json:"stream"`
	StateHash      []byte       `json:"state_hash"`
	Timestamp      time.Time    `json:"timestamp"`
	Notice         event.Notice `json:"notice"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableNotice, logger zerolog.Logger, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, n); err != nil {
				op.logger.Warn().
					Err(err).
					Int64("sequence", n.Sequence).
					Str("notice_type", n.NoticeType).
					Msg("outbound publish failed")
				if op.metrics != nil {
					op.metrics.PublishErrors.Inc()
				}
				// Non-fatal: downstream consumers can query the event log directly
				continue
			}

			if op.metrics != nil {
				op.metrics.NoticesPublished.WithLabelValues(n.NoticeType).Inc()
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, n PublishableNotice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	subject := fmt.Sprintf("escrow.ledger.events.%s", n.NoticeType)
	msgID := fmt.Sprintf("%s-%d", n.IdempotencyKey, n.NoticeIndex)

	_, err = op.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID))
	return err
}
