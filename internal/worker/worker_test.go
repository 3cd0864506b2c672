package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/testutil"
	"catalogsync/internal/worker/processors"
	"catalogsync/internal/worker/processors/export"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type finished struct {
	runID string
	err   error
}

func notifyDone(d *LocalDispatcher) chan finished {
	done := make(chan finished, 1)
	d.WithOnDone(func(runID string, err error) { done <- finished{runID, err} })
	return done
}

func waitDone(t *testing.T, done chan finished) finished {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("export did not finish")
		return finished{}
	}
}

func TestLocalDispatcherRunsExport(t *testing.T) {
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&models.Product{ID: "1", Name: "Sofa", Price: 10, Category: "Kanapé", ShowInAI: true}).Error)

	dir := t.TempDir()
	processor := processors.NewEventProcessor(export.New(db, export.NewFileSink(dir), "feeds", logger.NewNop()), logger.NewNop())
	d := NewLocalDispatcher(processor, logger.NewNop())
	done := notifyDone(d)

	require.NoError(t, d.DispatchExport(context.Background(), "run-9"))
	result := waitDone(t, done)
	require.NoError(t, result.err)
	assert.Equal(t, "run-9", result.runID)

	raw, err := os.ReadFile(filepath.Join(dir, "feeds", "catalog-run-9.json"))
	require.NoError(t, err)
	var feed export.Feed
	require.NoError(t, json.Unmarshal(raw, &feed))
	assert.Equal(t, 1, feed.Count)
}

type panickingProcessor struct{}

func (panickingProcessor) Process(context.Context, processors.Event) error {
	panic("boom")
}

func TestLocalDispatcherRecoversPanics(t *testing.T) {
	d := NewLocalDispatcher(panickingProcessor{}, logger.NewNop())
	done := notifyDone(d)

	require.NoError(t, d.DispatchExport(context.Background(), "run-1"))
	assert.ErrorContains(t, waitDone(t, done).err, "panicked")
}

type recordingProcessor struct {
	events []processors.Event
	err    error
}

func (p *recordingProcessor) Process(_ context.Context, e processors.Event) error {
	p.events = append(p.events, e)
	return p.err
}

func TestHandleDecodesEvents(t *testing.T) {
	p := &recordingProcessor{}
	w := &Worker{logger: logger.NewNop(), processor: p}

	w.handle(context.Background(), []byte(`{"type":"catalog.export","run_id":"r1"}`))
	w.handle(context.Background(), []byte(`not json`))
	p.err = errors.New("export failed")
	w.handle(context.Background(), []byte(`{"type":"catalog.export","run_id":"r2"}`))

	require.Len(t, p.events, 2)
	assert.Equal(t, "r1", p.events[0].RunID)
	assert.Equal(t, processors.EventCatalogExport, p.events[1].Type)
}

func TestProcessorRejectsUnknownEvents(t *testing.T) {
	processor := processors.NewEventProcessor(nil, logger.NewNop())
	err := processor.Process(context.Background(), processors.Event{Type: "product.deleted"})
	assert.ErrorContains(t, err, "unknown event type")
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092"))
	assert.Nil(t, splitBrokers(""))
}
