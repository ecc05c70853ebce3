package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxfarm/internal/farm"
	"boxfarm/internal/models"
)

func TestSyncNames_ValidatesHostIP(t *testing.T) {
	rec, _ := newTestReconciler(t, &fakeFetcher{})
	_, err := rec.SyncNames(context.Background(), "  ")
	require.ErrorIs(t, err, ErrValidation)
}

func TestSyncNames_FetchFailure(t *testing.T) {
	rec, _ := newTestReconciler(t, &fakeFetcher{err: farm.ErrUnreachable})
	_, err := rec.SyncNames(context.Background(), "10.0.0.5")
	require.ErrorIs(t, err, ErrFetch)
}

func TestSyncNames_EmptyListIsNotAnError(t *testing.T) {
	rec, _ := newTestReconciler(t, &fakeFetcher{})
	rep, err := rec.SyncNames(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.False(t, rep.Success)
	assert.Equal(t, 0, rep.Updated)
}

func TestSyncNames_RenamesByInstanceIndex(t *testing.T) {
	f := &fakeFetcher{descs: []farm.Descriptor{
		{Name: "phone_1_2", InstanceIndex: intp(2)},
	}}
	rec, store := newTestReconciler(t, f)
	seed(t, store, models.Device{Name: "phone_1_2_old", DeviceIP: "10.0.0.5", BoxIP: "10.0.0.5",
		InstanceIndex: intp(2), Status: models.DeviceStatusOnline})

	rep, err := rec.SyncNames(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)

	d := mustFind(t, store, "phone_1_2")
	assert.Equal(t, 2, *d.InstanceIndex)
}

func TestSyncNames_RenamesByPrefixFallback(t *testing.T) {
	// живая запись без индекса, в реестре — запись со старым суффиксом
	f := &fakeFetcher{descs: []farm.Descriptor{
		{Name: "phone_1_3"},
	}}
	rec, store := newTestReconciler(t, f)
	seed(t, store, models.Device{Name: "phone_1_7", DeviceIP: "10.0.0.5", BoxIP: "10.0.0.5",
		Status: models.DeviceStatusOffline})

	rep, err := rec.SyncNames(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.NotNil(t, mustFind(t, store, "phone_1_3"))
}

func TestSyncNames_NoMatchIsSkipped(t *testing.T) {
	f := &fakeFetcher{descs: []farm.Descriptor{
		{Name: "tablet_9_9", InstanceIndex: intp(9)},
	}}
	rec, store := newTestReconciler(t, f)
	seed(t, store, models.Device{Name: "phone_1_2", DeviceIP: "10.0.0.5", BoxIP: "10.0.0.5",
		InstanceIndex: intp(2), Status: models.DeviceStatusOnline})

	rep, err := rec.SyncNames(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Updated)
	assert.NotNil(t, mustFind(t, store, "phone_1_2"), "unmatched records stay untouched")
}

func TestSyncNames_EqualNamesNotCounted(t *testing.T) {
	f := &fakeFetcher{descs: []farm.Descriptor{
		{Name: "phone_1_2", InstanceIndex: intp(2)},
	}}
	rec, store := newTestReconciler(t, f)
	seed(t, store, models.Device{Name: "phone_1_2", DeviceIP: "10.0.0.5", BoxIP: "10.0.0.5",
		InstanceIndex: intp(2), Status: models.DeviceStatusOnline})

	rep, err := rec.SyncNames(context.Background(), "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Updated)
}

func TestNamePrefix(t *testing.T) {
	assert.Equal(t, "phone_1", namePrefix("phone_1_2"))
	assert.Equal(t, "phone", namePrefix("phone_1"))
	assert.Equal(t, "plain", namePrefix("plain"))
	assert.Equal(t, "_lead", namePrefix("_lead"))
}
