package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxfarm/internal/farm"
	"boxfarm/internal/models"
)

func TestVerify_RepairsRunningButOffline(t *testing.T) {
	rec, store := newTestReconciler(t, &fakeFetcher{})
	seed(t, store, models.Device{Name: "ghost", DeviceIP: "10.0.0.5", BoxIP: "10.0.0.5",
		Status: models.DeviceStatusOffline})

	descs := []farm.Descriptor{
		{Name: "ghost", IP: "10.0.0.5", RawStatus: "running",
			RawU2: "10.0.0.5:5555", RawRPC: "10.0.0.5:11055"},
	}
	rec.verify(context.Background(), "10.0.0.5", descs)

	d := mustFind(t, store, "ghost")
	assert.Equal(t, models.DeviceStatusOnline, d.Status)
	require.NotNil(t, d.U2Port)
	require.NotNil(t, d.RPCPort)
	assert.Equal(t, 5555, *d.U2Port)
	assert.Equal(t, 11055, *d.RPCPort)
}

func TestVerify_NoDiffLeavesStateAlone(t *testing.T) {
	rec, store := newTestReconciler(t, &fakeFetcher{})
	seed(t, store, models.Device{Name: "steady", DeviceIP: "10.0.0.5", BoxIP: "10.0.0.5",
		U2Port: intp(5555), RPCPort: intp(11055), Status: models.DeviceStatusOnline})

	descs := []farm.Descriptor{
		{Name: "steady", IP: "10.0.0.5", RawStatus: "running"},
	}
	rec.verify(context.Background(), "10.0.0.5", descs)

	d := mustFind(t, store, "steady")
	assert.Equal(t, 5555, *d.U2Port)
}

func TestVerify_MissingRecordIsLoggedOnly(t *testing.T) {
	rec, store := newTestReconciler(t, &fakeFetcher{})

	descs := []farm.Descriptor{
		{Name: "phantom", IP: "10.0.0.5", RawStatus: "running"},
	}
	// записи нет — починка невозможна, но и паники/ошибки быть не должно
	rec.verify(context.Background(), "10.0.0.5", descs)

	devices, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestVerify_UnparseablePortsKeepStoredValues(t *testing.T) {
	rec, store := newTestReconciler(t, &fakeFetcher{})
	seed(t, store, models.Device{Name: "ghost", DeviceIP: "10.0.0.5", BoxIP: "10.0.0.5",
		U2Port: intp(6000), Status: models.DeviceStatusOffline})

	descs := []farm.Descriptor{
		{Name: "ghost", IP: "10.0.0.5", RawStatus: "running", RawU2: "not-a-port"},
	}
	rec.verify(context.Background(), "10.0.0.5", descs)

	d := mustFind(t, store, "ghost")
	assert.Equal(t, models.DeviceStatusOnline, d.Status)
	assert.Equal(t, 6000, *d.U2Port)
}
