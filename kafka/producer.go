package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"fileconvert/models"
)

// OperationEvent is the wire form of a terminal operation published for
// downstream consumers (billing, analytics).
type OperationEvent struct {
	OperationID  string     `json:"operation_id"`
	TraceID      string     `json:"trace_id"`
	Status       string     `json:"status"`
	ResultFileID string     `json:"result_file_id,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type Producer interface {
	PublishOperationEvent(ctx context.Context, op *models.Operation) error
	Close() error
}

type producer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducer(brokers []string, topic string) (Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, err
	}

	return &producer{producer: p, topic: topic}, nil
}

func (p *producer) PublishOperationEvent(ctx context.Context, op *models.Operation) error {
	event := OperationEvent{
		OperationID:  op.ID,
		TraceID:      op.TraceID,
		Status:       string(op.Status),
		ResultFileID: op.ResultFileID,
		CompletedAt:  op.CompletedAt,
	}
	if op.Error != nil {
		event.ErrorCode = op.Error.Code
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(op.ID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *producer) Close() error {
	return p.producer.Close()
}
