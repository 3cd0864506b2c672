// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"catalogsync/internal/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewDB opens a migrated in-memory SQLite database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := database.New(fmt.Sprintf("sqlite://file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)

	sqlDB, err := d.DB.DB()
	require.NoError(t, err)
	// One connection serializes readers and writers on the shared cache.
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = d.Close() })
	return d.DB
}
