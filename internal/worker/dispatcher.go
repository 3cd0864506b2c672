package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/worker/processors"

	"github.com/segmentio/kafka-go"
)

func exportEvent(runID string) processors.Event {
	return processors.Event{
		Type:      processors.EventCatalogExport,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
	}
}

// KafkaDispatcher publishes export tasks for the worker process.
type KafkaDispatcher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewKafkaDispatcher(brokers, topic string, logger *logger.Logger) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(splitBrokers(brokers)...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

func (d *KafkaDispatcher) DispatchExport(ctx context.Context, runID string) error {
	value, err := json.Marshal(exportEvent(runID))
	if err != nil {
		return fmt.Errorf("failed to marshal export task: %w", err)
	}
	if err := d.writer.WriteMessages(ctx, kafka.Message{Key: []byte(runID), Value: value}); err != nil {
		return fmt.Errorf("failed to publish export task: %w", err)
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// LocalDispatcher runs export tasks in-process on their own goroutine. It is
// used when no broker is configured.
type LocalDispatcher struct {
	processor Processor
	logger    *logger.Logger
	timeout   time.Duration
	onDone    func(runID string, err error)
}

func NewLocalDispatcher(processor Processor, logger *logger.Logger) *LocalDispatcher {
	return &LocalDispatcher{processor: processor, logger: logger, timeout: 10 * time.Minute}
}

// WithOnDone registers a hook called after each export finishes, with the
// processing error or the recovered panic.
func (d *LocalDispatcher) WithOnDone(fn func(runID string, err error)) *LocalDispatcher {
	d.onDone = fn
	return d
}

// DispatchExport returns as soon as the task is scheduled.
func (d *LocalDispatcher) DispatchExport(_ context.Context, runID string) error {
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				metrics.Exports.WithLabelValues("panic").Inc()
				err = fmt.Errorf("export panicked: %v", r)
				d.logger.Error("Export for run %s panicked: %v", runID, r)
			}
			if d.onDone != nil {
				d.onDone(runID, err)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err = d.processor.Process(ctx, exportEvent(runID)); err != nil {
			d.logger.Error("%v", err)
		}
	}()
	return nil
}
