package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.NewDB(t), logger.NewNop())
}

func product(id, name string, price int64) models.Product {
	return models.Product{
		ID:           id,
		Name:         name,
		Price:        price,
		Category:     "Kanapé",
		CategoryPath: "Bútor|Kanapé",
		Images:       []string{"https://img/" + id + ".jpg"},
		Description:  "Soft sofa",
		InStock:      true,
	}
}

func searchDoc(t *testing.T, s *Store, id string) string {
	t.Helper()
	var doc models.ProductSearch
	require.NoError(t, s.db.Where("product_id = ?", id).First(&doc).Error)
	return doc.Document
}

func TestUpsertBatchInsertsAndUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res, err := s.UpsertBatch(ctx, []models.Product{product("1", "Sofa", 100), product("2", "Chair", 50)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 0, res.Updated)

	var stored models.Product
	require.NoError(t, s.db.First(&stored, "id = ?", "1").Error)
	assert.True(t, stored.ShowInAI)
	assert.Equal(t, 0, stored.Priority)
	assert.Equal(t, []string{"https://img/1.jpg"}, stored.Images)

	changed := product("1", "Sofa XL", 120)
	res, err = s.UpsertBatch(ctx, []models.Product{changed, product("3", "Lamp", 10)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Updated)

	require.NoError(t, s.db.First(&stored, "id = ?", "1").Error)
	assert.Equal(t, "Sofa XL", stored.Name)
	assert.Equal(t, int64(120), stored.Price)
	assert.Contains(t, searchDoc(t, s, "1"), "sofa xl")

	var count int64
	s.db.Model(&models.Product{}).Count(&count)
	assert.Equal(t, int64(3), count)
}

func TestUpsertPreservesControlFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.UpsertBatch(ctx, []models.Product{product("1", "Sofa", 100)})
	require.NoError(t, err)

	custom := "Hand written"
	require.NoError(t, s.db.Model(&models.Product{}).Where("id = ?", "1").
		Updates(map[string]any{"show_in_ai": false, "priority": 7, "custom_description": custom}).Error)

	incoming := product("1", "Sofa", 90)
	incoming.ShowInAI = true
	incoming.Priority = 0
	_, err = s.UpsertBatch(ctx, []models.Product{incoming})
	require.NoError(t, err)

	var stored models.Product
	require.NoError(t, s.db.First(&stored, "id = ?", "1").Error)
	assert.Equal(t, int64(90), stored.Price)
	assert.False(t, stored.ShowInAI)
	assert.Equal(t, 7, stored.Priority)
	require.NotNil(t, stored.CustomDescription)
	assert.Equal(t, custom, *stored.CustomDescription)
}

func TestUpsertIdenticalOnlyTouchesSyncTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }
	_, err := s.UpsertBatch(ctx, []models.Product{product("1", "Sofa", 100)})
	require.NoError(t, err)

	var before models.Product
	require.NoError(t, s.db.First(&before, "id = ?", "1").Error)

	second := first.Add(time.Hour)
	s.now = func() time.Time { return second }
	res, err := s.UpsertBatch(ctx, []models.Product{product("1", "Sofa", 100)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)

	var after models.Product
	require.NoError(t, s.db.First(&after, "id = ?", "1").Error)
	assert.True(t, after.LastSyncedAt.Equal(second))
	assert.True(t, after.UpdatedAt.Equal(before.UpdatedAt))
	assert.Equal(t, before.Name, after.Name)
}

func TestUpsertBatchSkipsFailingRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	require.NoError(t, s.db.Callback().Create().Before("gorm:create").Register("test:fail_bad", func(tx *gorm.DB) {
		if p, ok := tx.Statement.Dest.(*models.Product); ok && p.ID == "bad" {
			_ = tx.AddError(boom)
		}
	}))

	res, err := s.UpsertBatch(ctx, []models.Product{product("1", "Sofa", 1), product("bad", "Broken", 1), product("2", "Chair", 1)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "bad", res.Failed[0].ProductID)
	assert.ErrorIs(t, res.Failed[0], boom)

	var ids []string
	s.db.Model(&models.Product{}).Order("id").Pluck("id", &ids)
	assert.Equal(t, []string{"1", "2"}, ids)

	var docs int64
	s.db.Model(&models.ProductSearch{}).Count(&docs)
	assert.Equal(t, int64(2), docs)
}

func TestUpsertDuplicateWithinPage(t *testing.T) {
	s := newTestStore(t)

	res, err := s.UpsertBatch(context.Background(), []models.Product{product("1", "Sofa", 1), product("1", "Sofa v2", 2)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Updated)

	var stored models.Product
	require.NoError(t, s.db.First(&stored, "id = ?", "1").Error)
	assert.Equal(t, "Sofa v2", stored.Name)
}

func TestSingleUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := product("1", "Sofa", 1)
	created, err := s.Upsert(ctx, &p)
	require.NoError(t, err)
	assert.True(t, created)

	p2 := product("1", "Sofa", 2)
	created, err = s.Upsert(ctx, &p2)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "butor kanape", Fold("Bútor KANAPÉ"))
	assert.Equal(t, "arvizturo tukorfurogep", Fold("Árvíztűrő tükörfúrógép"))
}

func TestRebuildSearchIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.UpsertBatch(ctx, []models.Product{product("1", "Sofa", 1), product("2", "Chair", 1)})
	require.NoError(t, err)

	// Simulate a corrupted index: one document lost, one stale.
	require.NoError(t, s.db.Where("product_id = ?", "1").Delete(&models.ProductSearch{}).Error)
	require.NoError(t, s.db.Model(&models.ProductSearch{}).Where("product_id = ?", "2").Update("document", "garbage").Error)

	n, err := s.RebuildSearchIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, searchDoc(t, s, "1"), "sofa")
	assert.Contains(t, searchDoc(t, s, "2"), "chair")
}

func TestObserveCategories(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.ObserveCategories(ctx, []models.Product{product("1", "Sofa", 1), product("2", "Sofa", 1)}, true))

	lamp := product("3", "Lamp", 1)
	lamp.Category = "Lámpa"
	require.NoError(t, s.ObserveCategories(ctx, []models.Product{product("4", "x", 1), lamp}, false))

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)

	enabled, err := s.EnabledCategories(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "Kanapé", enabled[0].Name)
}

func TestRunLedger(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }
	stale, err := s.CreateRun(ctx)
	require.NoError(t, err)

	s.now = func() time.Time { return start.Add(time.Hour) }
	run, err := s.CreateRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusRunning, run.Status)

	closed, err := s.FailStaleRuns(ctx, run.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	require.NoError(t, s.UpdateRunProgress(ctx, run.ID, RunProgress{Fetched: 10, Added: 4, Updated: 6}))
	require.NoError(t, s.FinishRun(ctx, run.ID, models.SyncRunStatusCompleted, RunProgress{Fetched: 10, Added: 4, Updated: 6}, "", nil))

	err = s.FinishRun(ctx, run.ID, models.SyncRunStatusFailed, RunProgress{}, "", errors.New("late"))
	assert.ErrorIs(t, err, ErrRunFinalized)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusCompleted, got.Status)
	assert.Equal(t, 10, got.Fetched)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)

	old, err := s.GetRun(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusFailed, old.Status)

	missing, err := s.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	history, err := s.RunHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestFailStaleRunsSparesLiveRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }
	other, err := s.CreateRun(ctx)
	require.NoError(t, err)

	// The other process keeps reporting progress.
	s.now = func() time.Time { return start.Add(50 * time.Minute) }
	require.NoError(t, s.UpdateRunProgress(ctx, other.ID, RunProgress{Fetched: 100}))

	s.now = func() time.Time { return start.Add(time.Hour) }
	mine, err := s.CreateRun(ctx)
	require.NoError(t, err)

	closed, err := s.FailStaleRuns(ctx, mine.ID, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), closed)

	got, err := s.GetRun(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusRunning, got.Status)
}

func TestEnsureShowInAIRestoresHiddenProducts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.UpsertBatch(ctx, []models.Product{
		product("hidden", "Sofa", 100),
		product("locked", "Chair", 50),
		product("visible", "Lamp", 10),
	})
	require.NoError(t, err)

	// A previous partial run left this row hidden.
	require.NoError(t, s.db.Model(&models.Product{}).Where("id = ?", "hidden").UpdateColumn("show_in_ai", false).Error)
	found, err := s.SetShowInAI(ctx, "locked", false)
	require.NoError(t, err)
	assert.True(t, found)

	repaired, err := s.EnsureShowInAI(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), repaired)

	visibility := map[string]bool{}
	var all []models.Product
	require.NoError(t, s.db.Find(&all).Error)
	for _, p := range all {
		visibility[p.ID] = p.ShowInAI
	}
	assert.Equal(t, map[string]bool{"hidden": true, "locked": false, "visible": true}, visibility)

	found, err = s.SetShowInAI(ctx, "locked", true)
	require.NoError(t, err)
	assert.True(t, found)
	var unlocked models.Product
	require.NoError(t, s.db.First(&unlocked, "id = ?", "locked").Error)
	assert.True(t, unlocked.ShowInAI)
	assert.False(t, unlocked.ShowInAILocked)

	found, err = s.SetShowInAI(ctx, "missing", false)
	require.NoError(t, err)
	assert.False(t, found)
}
