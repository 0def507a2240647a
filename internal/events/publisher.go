package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"

	"github.com/hemiko/topup_reconciler/internal/config"
	"github.com/hemiko/topup_reconciler/internal/logging"
	"github.com/hemiko/topup_reconciler/internal/models"
)

var TransactionCompletedEventName = "transaction_completed"

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher emits transaction lifecycle events for downstream query and
// notification services.
type Publisher struct {
	writer Writer
	lg     *logging.ZapLogger
}

func NewPublisher(
	lc fx.Lifecycle,
	cfg *config.Config,
	lg *logging.ZapLogger,
	logger *logging.KafkaLogger,
	errLogger *logging.KafkaErrorLogger,
) *Publisher {
	w := &kafka.Writer{
		Addr:        kafka.TCP(cfg.KafkaBrokers...),
		Topic:       cfg.KafkaTransactionCompletedTopic,
		Balancer:    &kafka.LeastBytes{},
		Logger:      logger,
		ErrorLogger: errLogger,
	}

	lc.Append(
		fx.Hook{
			OnStop: func(ctx context.Context) error {
				return w.Close()
			},
		},
	)

	return &Publisher{writer: w, lg: lg}
}

// TransactionCompleted publishes a delivered transaction, keyed by the
// transaction id so replays of the same transaction land in one partition.
func (p *Publisher) TransactionCompleted(ctx context.Context, t *models.Transaction) error {
	e := &models.TransactionCompletedEvent{
		UUID: uuid.NewString(),
		Name: TransactionCompletedEventName,
		Meta: &models.TransactionCompletedEventMeta{
			TransactionID: t.TransactionID,
			AccountID:     t.AccountID,
			Amount:        t.CreditAmount,
			CompletedAt:   t.CompletedAt,
		},
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal transaction completed event error %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(t.TransactionID), Value: b}); err != nil {
		return fmt.Errorf("events: write transaction completed event error %w", err)
	}

	return nil
}
