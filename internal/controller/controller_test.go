package controller

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"boxfarm/config"
	"boxfarm/internal/farm"
	"boxfarm/internal/models"
	"boxfarm/internal/repo"
)

// fakeFetcher подсовывает реконсилятору заранее заданный ответ фермы.
type fakeFetcher struct {
	descs []farm.Descriptor
	err   error
}

func (f *fakeFetcher) Probe(context.Context) {}

func (f *fakeFetcher) Fetch(context.Context, string) ([]farm.Descriptor, error) {
	return f.descs, f.err
}

func (f *fakeFetcher) List(context.Context, string) ([]farm.Descriptor, error) {
	return f.descs, f.err
}

func newTestStore(t *testing.T) *repo.DeviceStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Device{}))
	return repo.NewDeviceStore(db)
}

func newTestReconciler(t *testing.T, f Fetcher) (*Reconciler, *repo.DeviceStore) {
	t.Helper()
	store := newTestStore(t)
	cfg := &config.Config{}
	cfg.Farm.U2PortStart = 5001
	cfg.Farm.RPCPortStart = 11001
	cfg.Farm.PortRangeSize = 1000
	return NewReconciler(store, f, cfg), store
}

func intp(v int) *int { return &v }

func seed(t *testing.T, s *repo.DeviceStore, devices ...models.Device) {
	t.Helper()
	for i := range devices {
		require.NoError(t, s.Create(context.Background(), &devices[i]))
	}
}

func mustFind(t *testing.T, s *repo.DeviceStore, name string) *models.Device {
	t.Helper()
	d, err := s.FindByName(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, d, "device %q must exist", name)
	return d
}
