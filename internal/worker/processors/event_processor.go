package processors

import (
	"context"
	"fmt"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
	"catalogsync/internal/worker/processors/export"
)

const EventCatalogExport = "catalog.export"

type Event struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
}

type EventProcessor struct {
	logger   *logger.Logger
	exporter *export.Exporter
}

func NewEventProcessor(exporter *export.Exporter, logger *logger.Logger) *EventProcessor {
	return &EventProcessor{
		logger:   logger,
		exporter: exporter,
	}
}

func (ep *EventProcessor) Process(ctx context.Context, event Event) error {
	ep.logger.Debug("Processing event: %+v", event)

	switch event.Type {
	case EventCatalogExport:
		manifest, err := ep.exporter.Export(ctx, event.RunID)
		if err != nil {
			metrics.Exports.WithLabelValues("failed").Inc()
			return fmt.Errorf("failed to export catalog for run %s: %w", event.RunID, err)
		}
		metrics.Exports.WithLabelValues("succeeded").Inc()
		ep.logger.Info("Catalog export for run %s written to %v", event.RunID, manifest.Locations)
		return nil
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}
}
