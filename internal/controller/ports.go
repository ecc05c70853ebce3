package controller

import (
	"context"
	"fmt"

	"boxfarm/internal/models"
	"boxfarm/internal/repo"
)

// Reservations — порты, выданные в рамках одного прохода синхронизации.
// Набор локален для вызова и не разделяется между вызовами: он защищает
// только от коллизий внутри одной пачки до её коммита.
type Reservations struct {
	u2  map[int]struct{}
	rpc map[int]struct{}
}

func NewReservations() *Reservations {
	return &Reservations{
		u2:  make(map[int]struct{}),
		rpc: make(map[int]struct{}),
	}
}

func (r *Reservations) set(kind models.PortKind) map[int]struct{} {
	if kind == models.PortRPC {
		return r.rpc
	}
	return r.u2
}

func (r *Reservations) Add(kind models.PortKind, port int) {
	r.set(kind)[port] = struct{}{}
}

func (r *Reservations) Has(kind models.PortKind, port int) bool {
	_, ok := r.set(kind)[port]
	return ok
}

// AllocatePort возвращает первый порт из [rangeStart, rangeEnd], не занятый
// ни в persisted, ни в reserved. Без побочных эффектов: вызывающий сам
// добавляет результат в Reservations до следующей аллокации.
func AllocatePort(rangeStart, rangeEnd int, persisted, reserved map[int]struct{}) (int, error) {
	for p := rangeStart; p <= rangeEnd; p++ {
		if _, ok := reserved[p]; ok {
			continue
		}
		if _, ok := persisted[p]; ok {
			continue
		}
		return p, nil
	}
	return 0, fmt.Errorf("%w: [%d, %d] exhausted", ErrNoPortAvailable, rangeStart, rangeEnd)
}

// allocate подбирает свободный порт kind на device_ip с учётом
// персистентных записей и резерваций текущего прохода.
func (r *Reconciler) allocate(ctx context.Context, tx *repo.DeviceStore, deviceIP string, kind models.PortKind, res *Reservations) (int, error) {
	persisted, err := tx.PortsOnHost(ctx, deviceIP, kind)
	if err != nil {
		return 0, err
	}
	start := r.u2Start
	if kind == models.PortRPC {
		start = r.rpcStart
	}
	return AllocatePort(start, start+r.rangeSize-1, persisted, res.set(kind))
}

// Доступ к полю порта по виду.
func portOf(d *models.Device, kind models.PortKind) *int {
	if kind == models.PortRPC {
		return d.RPCPort
	}
	return d.U2Port
}

func setPort(d *models.Device, kind models.PortKind, p *int) {
	if kind == models.PortRPC {
		d.RPCPort = p
	} else {
		d.U2Port = p
	}
}
