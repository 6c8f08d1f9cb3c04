package mqhandler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	mqcontracts "github.com/mohamadsalahdarwish/notication-system/contracts/mq"
	"github.com/mohamadsalahdarwish/notication-system/internal/model"
	"github.com/mohamadsalahdarwish/notication-system/pkg/logger"
	"github.com/mohamadsalahdarwish/notication-system/pkg/metrics"
	"github.com/mohamadsalahdarwish/notication-system/pkg/util"
)

const (
	cdcQueueName   = "cdc.notifications.q"
	cdcHandlerName = "cdc_event"
)

// NotificationRouter is the synchronous routing step ingest blocks on.
type NotificationRouter interface {
	Route(ctx context.Context, ev model.NotificationEvent) error
}

// RetryCounter tracks per-event retry counts across re-deliveries.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DLQPublisher receives poison and retry-exhausted payloads.
type DLQPublisher interface {
	PublishToDLQ(routingKey string, payload []byte, originalError string) error
}

// CDCEventHandler consumes the ordered insert stream for notification rows.
// An event is acked only after routing has been attempted; failures either
// requeue the same event (transient) or divert it to the DLQ (poison,
// exhausted) so the stream always advances deliberately.
type CDCEventHandler struct {
	router     NotificationRouter
	retries    RetryCounter
	dlq        DLQPublisher
	maxRetries int64
	backoff    time.Duration
	logger     *zap.Logger
}

func NewCDCEventHandler(
	router NotificationRouter,
	retries RetryCounter,
	dlq DLQPublisher,
	maxRetries int,
	backoff time.Duration,
	log *zap.Logger,
) *CDCEventHandler {
	return &CDCEventHandler{
		router:     router,
		retries:    retries,
		dlq:        dlq,
		maxRetries: int64(maxRetries),
		backoff:    backoff,
		logger:     log,
	}
}

func (h *CDCEventHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	start := time.Now()
	defer func() {
		metrics.RecordCDCConsumeLatency(mqcontracts.RoutingKeyNotificationInserted, cdcQueueName, time.Since(start))
	}()

	log := logger.WithTrace(ctx, h.logger)

	var env mqcontracts.ChangeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Unparsable payloads reproduce the same failure on re-delivery,
		// so they go to the DLQ and the stream advances.
		log.Error("Malformed change event, diverting to DLQ", zap.Error(err))
		return h.divert(raw, err.Error())
	}

	after := env.AfterImage()
	if after == nil {
		// Deletes and updates carry no insert semantics. Not an error.
		log.Debug("Change event without after-image skipped")
		return nil
	}

	var row mqcontracts.NotificationRow
	if err := json.Unmarshal(after, &row); err != nil {
		log.Error("Unmappable after-image, diverting to DLQ", zap.Error(err))
		return h.divert(raw, err.Error())
	}

	ev := model.NotificationEvent{
		ID:        row.ID,
		UserID:    row.UserID,
		Message:   row.Message,
		CreatedAt: row.CreatedAt,
	}

	retryKey := util.FormatRetryKey(cdcHandlerName, ev.ID)

	if err := h.router.Route(ctx, ev); err != nil {
		return h.handleRoutingError(ctx, log, raw, retryKey, ev, err)
	}

	if err := h.retries.Reset(ctx, retryKey); err != nil {
		log.Warn("Failed to reset retry counter", zap.String("key", retryKey), zap.Error(err))
	}
	return nil
}

func (h *CDCEventHandler) handleRoutingError(
	ctx context.Context,
	log *zap.Logger,
	raw json.RawMessage,
	retryKey string,
	ev model.NotificationEvent,
	routeErr error,
) error {
	retryable, errType := util.IsRetryableError(routeErr)
	if !retryable {
		log.Error("Non-retryable routing failure, diverting to DLQ",
			zap.Int64("notification_id", ev.ID),
			zap.String("error_type", errType),
			zap.Error(routeErr),
		)
		return h.divert(raw, routeErr.Error())
	}

	count, err := h.retries.IncrementAndGet(ctx, retryKey)
	if err != nil {
		log.Warn("Retry counter unavailable, requeueing without count",
			zap.String("key", retryKey),
			zap.Error(err),
		)
		return routeErr
	}

	if !util.ShouldRetry(count, h.maxRetries, retryable) {
		// Retries exhausted. The event is preserved in the DLQ rather than
		// dropped, and this log line is the process-level alert.
		log.Error("Routing retries exhausted, diverting to DLQ",
			zap.Int64("notification_id", ev.ID),
			zap.Int64("attempts", count),
			zap.String("error_type", errType),
			zap.Error(routeErr),
		)
		return h.divert(raw, routeErr.Error())
	}

	log.Warn("Transient routing failure, requeueing event",
		zap.Int64("notification_id", ev.ID),
		zap.Int64("attempt", count),
		zap.String("error_type", errType),
		zap.Error(routeErr),
	)

	// Returning the error nacks with requeue; with prefetch 1 the same
	// event is re-consumed next, preserving stream order.
	time.Sleep(time.Duration(count) * h.backoff)
	return routeErr
}

// divert pushes the payload to the DLQ and acks the original, advancing
// the stream. A failed DLQ publish keeps the event requeued instead.
func (h *CDCEventHandler) divert(raw json.RawMessage, reason string) error {
	if err := h.dlq.PublishToDLQ(mqcontracts.RoutingKeyNotificationInserted, raw, reason); err != nil {
		h.logger.Error("Failed to publish to DLQ, requeueing original", zap.Error(err))
		return err
	}
	return nil
}
