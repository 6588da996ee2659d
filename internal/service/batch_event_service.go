package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/autograde-api/internal/dto"
	"github.com/noah-isme/autograde-api/internal/observability"
)

const batchEventBufferSize = 16

// BatchEventService fans batch status changes out to live subscribers.
type BatchEventService interface {
	Publish(ctx context.Context, event dto.BatchEvent)
	Subscribe(userID string) (<-chan dto.BatchEvent, func())
	Start(ctx context.Context)
}

type batchEventService struct {
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	tracer      trace.Tracer
	broker      *batchEventBroker
	nodeID      string
}

type batchEnvelope struct {
	Source string         `json:"source"`
	Event  dto.BatchEvent `json:"event"`
	SentAt time.Time      `json:"sent_at"`
}

type batchEventBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.BatchEvent]struct{}
}

// NewBatchEventService constructs the event service. natsConn may be nil for
// a single-node deployment.
func NewBatchEventService(natsConn *nats.Conn, channelBase string, logger zerolog.Logger) BatchEventService {
	subject := ""
	if channelBase != "" {
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".batches"
	}

	return &batchEventService{
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "batch_event_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/autograde-api/internal/service/batch_events"),
		broker: &batchEventBroker{
			subscribers: make(map[string]map[chan dto.BatchEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

// Start consumes events published by other nodes until ctx is done.
func (s *batchEventService) Start(ctx context.Context) {
	if s.nats == nil || s.natsSubject == "" {
		return
	}

	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats batch subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain batch nats subscription")
		}
	}()
}

func (s *batchEventService) Publish(ctx context.Context, event dto.BatchEvent) {
	_, span := s.tracer.Start(ctx, "batch_events.publish", trace.WithAttributes(
		attribute.String("batch_id", event.BatchID),
		attribute.String("status", event.Status),
	))
	defer span.End()

	s.deliver(event)

	if s.nats == nil || s.natsSubject == "" {
		return
	}
	payload, err := json.Marshal(batchEnvelope{Source: s.nodeID, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode batch event")
		return
	}
	if err := s.nats.Publish(s.natsSubject, payload); err != nil {
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("batch_id", event.BatchID).Msg("failed to publish batch event to nats")
	}
}

func (s *batchEventService) Subscribe(userID string) (<-chan dto.BatchEvent, func()) {
	channel := make(chan dto.BatchEvent, batchEventBufferSize)

	s.broker.subscribe(userID, channel)
	observability.BatchStreamClients().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(userID, channel)
			observability.BatchStreamClients().Dec()
		})
	}

	return channel, cleanup
}

func (s *batchEventService) handleEnvelope(payload []byte) {
	var envelope batchEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid batch event payload")
		return
	}
	if envelope.Source == s.nodeID {
		return
	}
	s.deliver(envelope.Event)
}

func (s *batchEventService) deliver(event dto.BatchEvent) {
	observability.BatchEventsPublished().WithLabelValues(event.Status).Inc()
	s.broker.broadcast(event.UserID, event)
}

func (b *batchEventBroker) subscribe(userID string, ch chan dto.BatchEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.BatchEvent]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *batchEventBroker) unsubscribe(userID string, ch chan dto.BatchEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

// broadcast drops the event for subscribers whose buffer is full.
func (b *batchEventBroker) broadcast(userID string, event dto.BatchEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[userID] {
		select {
		case ch <- event:
		default:
		}
	}
}
