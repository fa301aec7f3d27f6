// Package kafka publishes run-completion events so downstream dashboards can
// pick up fresh verification results without polling the output directory.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/forecast-verif/internal/config"
	"github.com/couchcryptid/forecast-verif/internal/verif"
)

// RunEvent announces one completed verification run.
type RunEvent struct {
	RunID         string    `json:"run_id"`
	ForecastLabel string    `json:"forecast_label"`
	TruthLabel    string    `json:"truth_label"`
	RefTime       time.Time `json:"ref_time"`
	OutputPath    string    `json:"output_path"`
	Params        int       `json:"params"`
	Regions       []string  `json:"regions"`
	CompletedAt   time.Time `json:"completed_at"`
}

// Publisher produces run-completion events to a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a producer for the configured results topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaResultsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishRun announces a completed run. The event key is a fresh run ID so
// consumers can de-duplicate retried publishes per run.
func (p *Publisher) PublishRun(ctx context.Context, r *verif.Result, fcstLabel, truthLabel, outputPath string) error {
	event := RunEvent{
		RunID:         uuid.NewString(),
		ForecastLabel: fcstLabel,
		TruthLabel:    truthLabel,
		OutputPath:    outputPath,
		Params:        len(r.VarNames()),
		Regions:       r.Regions,
		CompletedAt:   r.CreatedAt,
	}
	if len(r.RefTimes) > 0 {
		event.RefTime = r.RefTimes[0]
	}
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	p.logger.Info("published run event", "run_id", event.RunID, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a RunEvent into a Kafka message.
func serializeToMessage(event RunEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.RunID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "forecast_label", Value: []byte(event.ForecastLabel)},
			{Key: "completed_at", Value: []byte(event.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
