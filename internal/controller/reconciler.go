package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"boxfarm/config"
	"boxfarm/internal/farm"
	"boxfarm/internal/logs"
	"boxfarm/internal/models"
	"boxfarm/internal/repo"
)

// Fetcher — внешний источник описаний устройств (API фермы).
// Источник ненадёжный: ошибки сети и формата должны различаться.
type Fetcher interface {
	Probe(ctx context.Context)
	Fetch(ctx context.Context, ip string) ([]farm.Descriptor, error)
	List(ctx context.Context, ip string) ([]farm.Descriptor, error)
}

// Reconciler сводит живое состояние фермы с локальным реестром устройств.
type Reconciler struct {
	store   *repo.DeviceStore
	fetcher Fetcher

	u2Start   int
	rpcStart  int
	rangeSize int
}

func NewReconciler(store *repo.DeviceStore, f Fetcher, cfg *config.Config) *Reconciler {
	return &Reconciler{
		store:     store,
		fetcher:   f,
		u2Start:   cfg.Farm.U2PortStart,
		rpcStart:  cfg.Farm.RPCPortStart,
		rangeSize: cfg.Farm.PortRangeSize,
	}
}

// FetchAndSync получает живые описания устройств хоста ip и сводит их
// с реестром: статусы, порты, принадлежность хосту. Все изменения пачки
// коммитятся одной транзакцией; после коммита выполняется проверка
// running→online с best-effort починкой.
func (r *Reconciler) FetchAndSync(ctx context.Context, ip string, updateExistingOnly bool) (*Report, error) {
	if strings.TrimSpace(ip) == "" {
		return nil, fmt.Errorf("%w: host ip must not be blank", ErrValidation)
	}

	logs.Logger.Infof("starting device sync for host %s", ip)
	r.fetcher.Probe(ctx)

	descs, err := r.fetcher.Fetch(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("%w: host %s: %v", ErrFetch, ip, err)
	}

	report := &Report{Success: true, Count: len(descs)}
	for i := range descs {
		if isRunning(descs[i].RawStatus) {
			report.RunningCount++
		}
	}
	logs.Logger.Infof("host %s: %d devices fetched, %d running", ip, report.Count, report.RunningCount)

	if len(descs) > 0 {
		// Резервации портов живут ровно один проход: защищают пачку
		// от внутренних коллизий до коммита.
		res := NewReservations()

		err := r.store.Transaction(ctx, func(tx *repo.DeviceStore) error {
			for i := range descs {
				d := descs[i]
				if len(d.Name) < 3 {
					d.Name = placeholderName()
					logs.Logger.Warnf("host %s: device without usable name, generated %q", ip, d.Name)
				}
				status := models.MapStatus(d.RawStatus, d.TreatCreatedAsOnline)
				if status == models.DeviceStatusOnline && !isRunning(d.RawStatus) {
					logs.Logger.Infof("device %q is %q but treated as online per API hint", d.Name, d.RawStatus)
				}

				existing, err := tx.FindByName(ctx, d.Name)
				if err != nil {
					return err
				}
				if existing != nil {
					if err := r.updateExisting(ctx, tx, existing, &d, ip, status, res); err != nil {
						return err
					}
					report.Updated++
					continue
				}
				if updateExistingOnly {
					logs.Logger.Infof("skipping creation of %q: update_existing_only is set", d.Name)
					report.Skipped++
					continue
				}
				created, err := r.createDevice(ctx, tx, &d, ip, status, res)
				if err != nil {
					if errors.Is(err, ErrNoPortAvailable) {
						logs.Logger.Warnf("skipping device %q: %v", d.Name, err)
						report.Skipped++
						continue
					}
					return err
				}
				if created {
					report.Created++
				}
			}
			return nil
		})
		if err != nil {
			logs.Logger.Errorf("device sync for host %s rolled back: %v", ip, err)
			return nil, err
		}
		logs.Logger.Infof("host %s: committed, updated=%d created=%d skipped=%d",
			ip, report.Updated, report.Created, report.Skipped)

		// Диагностический проход после коммита; его сбои только логируются.
		r.verify(ctx, ip, descs)
	}

	report.Messages = buildMessages(descs)
	report.Message = summaryMessage(ip, report)
	return report, nil
}

// updateExisting приводит существующую запись к живому описанию.
func (r *Reconciler) updateExisting(ctx context.Context, tx *repo.DeviceStore, dev *models.Device, d *farm.Descriptor, boxIP, status string, res *Reservations) error {
	ipChanged := false
	if d.IP != "" && d.IP != dev.DeviceIP {
		logs.Logger.Infof("device %q: device_ip changing from %q to %q", dev.Name, dev.DeviceIP, d.IP)
		dev.DeviceIP = d.IP
		ipChanged = true
	}
	dev.Status = status

	var err error
	if status == models.DeviceStatusOnline {
		err = r.onlinePorts(ctx, tx, dev, d, ipChanged, res)
	} else {
		err = r.offlinePorts(ctx, tx, dev, d, res)
	}
	if err != nil {
		return err
	}

	if d.InstanceIndex != nil {
		dev.InstanceIndex = d.InstanceIndex
	}
	dev.BoxIP = boxIP
	return tx.Save(ctx, dev)
}

// onlinePorts — правила портов для online-устройства: порт из API
// предпочтителен, но чужую запись с тем же (device_ip, порт) не выселяем.
func (r *Reconciler) onlinePorts(ctx context.Context, tx *repo.DeviceStore, dev *models.Device, d *farm.Descriptor, ipChanged bool, res *Reservations) error {
	kinds := []struct {
		kind models.PortKind
		api  *int
	}{
		{models.PortU2, d.U2Port},
		{models.PortRPC, d.RPCPort},
	}
	for _, k := range kinds {
		cur := portOf(dev, k.kind)
		switch {
		case k.api != nil:
			if cur != nil && *cur == *k.api && !ipChanged {
				break // уже совпадает
			}
			inDB, err := tx.PortInUse(ctx, dev.DeviceIP, k.kind, *k.api, dev.ID)
			if err != nil {
				return err
			}
			if inDB || res.Has(k.kind, *k.api) {
				logs.Logger.Warnf("%s conflict for %q: port %d already in use on %s",
					k.kind, dev.Name, *k.api, dev.DeviceIP)
				if cur == nil {
					if err := r.allocateInto(ctx, tx, dev, k.kind, res); err != nil {
						return err
					}
				}
			} else {
				setPort(dev, k.kind, k.api)
			}
		case cur == nil:
			logs.Logger.Infof("device %q is online, API gave no %s, allocating", dev.Name, k.kind)
			if err := r.allocateInto(ctx, tx, dev, k.kind, res); err != nil {
				return err
			}
		}
		if p := portOf(dev, k.kind); p != nil {
			res.Add(k.kind, *p)
		}
	}
	return nil
}

// allocateInto выделяет свежий порт в запись; исчерпание диапазона
// не фатально — запись остаётся без порта, детали в логе.
func (r *Reconciler) allocateInto(ctx context.Context, tx *repo.DeviceStore, dev *models.Device, kind models.PortKind, res *Reservations) error {
	p, err := r.allocate(ctx, tx, dev.DeviceIP, kind, res)
	if err != nil {
		if errors.Is(err, ErrNoPortAvailable) {
			logs.Logger.Warnf("device %q: %v", dev.Name, err)
			return nil
		}
		return err
	}
	setPort(dev, kind, &p)
	return nil
}

// offlinePorts — правила портов для offline-устройства: зеркалим порты
// online-соседа по группе (device_ip, instance_index); без соседа порт из
// API принимается только если он ещё никем из активных не занят.
func (r *Reconciler) offlinePorts(ctx context.Context, tx *repo.DeviceStore, dev *models.Device, d *farm.Descriptor, res *Reservations) error {
	logs.Logger.Infof("device %q is offline according to the farm", dev.Name)

	if dev.InstanceIndex != nil && dev.DeviceIP != "" {
		sib, err := tx.OnlineSibling(ctx, dev.DeviceIP, *dev.InstanceIndex, dev.ID)
		if err != nil {
			return err
		}
		if sib != nil {
			logs.Logger.Infof("offline device %q mirrors ports of online sibling %q", dev.Name, sib.Name)
			if sib.U2Port != nil && (dev.U2Port == nil || *dev.U2Port != *sib.U2Port) {
				dev.U2Port = sib.U2Port
			}
			if sib.RPCPort != nil && (dev.RPCPort == nil || *dev.RPCPort != *sib.RPCPort) {
				dev.RPCPort = sib.RPCPort
			}
			if dev.U2Port != nil {
				res.Add(models.PortU2, *dev.U2Port)
			}
			if dev.RPCPort != nil {
				res.Add(models.PortRPC, *dev.RPCPort)
			}
			return nil
		}
	}

	kinds := []struct {
		kind models.PortKind
		api  *int
	}{
		{models.PortU2, d.U2Port},
		{models.PortRPC, d.RPCPort},
	}
	for _, k := range kinds {
		cur := portOf(dev, k.kind)
		if k.api != nil && cur == nil {
			inUse, err := tx.PortInUseOnline(ctx, dev.DeviceIP, k.kind, *k.api, dev.ID)
			if err != nil {
				return err
			}
			if !inUse && !res.Has(k.kind, *k.api) {
				setPort(dev, k.kind, k.api)
				res.Add(k.kind, *k.api)
			}
		} else if cur != nil {
			// офлайн-устройство порт не освобождает
			res.Add(k.kind, *cur)
		}
	}
	return nil
}

// createDevice создаёт запись под живое описание. Если пара
// (device_ip, порт) уже принадлежит другой записи — не создаём дубликат,
// а переписываем владельца под новое имя.
func (r *Reconciler) createDevice(ctx context.Context, tx *repo.DeviceStore, d *farm.Descriptor, boxIP, status string, res *Reservations) (bool, error) {
	deviceIP := d.IP
	if deviceIP == "" {
		deviceIP = boxIP
	}
	logs.Logger.Infof("creating device %q, status %q", d.Name, status)

	var u2, rpc *int
	if status == models.DeviceStatusOnline {
		kinds := []struct {
			kind models.PortKind
			api  *int
			dst  **int
		}{
			{models.PortU2, d.U2Port, &u2},
			{models.PortRPC, d.RPCPort, &rpc},
		}
		for _, k := range kinds {
			if k.api != nil {
				*k.dst = k.api
			} else {
				logs.Logger.Infof("new device %q is online, API gave no %s, allocating", d.Name, k.kind)
				p, err := r.allocate(ctx, tx, deviceIP, k.kind, res)
				if err != nil {
					return false, err
				}
				*k.dst = &p
			}
			res.Add(k.kind, **k.dst)
		}

		// конфликт по уже занятой паре (device_ip, порт) — принимаем
		// существующую запись за это устройство вместо создания новой
		for _, k := range kinds {
			owner, err := tx.FindByHostPort(ctx, deviceIP, k.kind, **k.dst)
			if err != nil {
				return false, err
			}
			if owner != nil {
				logs.Logger.Warnf("duplicate device_ip + %s for new device %q, adopting record %q",
					k.kind, d.Name, owner.Name)
				owner.Name = d.Name
				owner.Status = status
				if d.InstanceIndex != nil {
					owner.InstanceIndex = d.InstanceIndex
				}
				owner.BoxIP = boxIP
				return true, tx.Save(ctx, owner)
			}
		}
	}

	dev := &models.Device{
		Name:          d.Name,
		DeviceIP:      deviceIP,
		BoxIP:         boxIP,
		U2Port:        u2,
		RPCPort:       rpc,
		InstanceIndex: d.InstanceIndex,
		Status:        status,
	}
	return true, tx.Create(ctx, dev)
}

// ---- helpers ----

func isRunning(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "running")
}

func placeholderName() string {
	return "device-" + uuid.NewString()[:8]
}

func buildMessages(descs []farm.Descriptor) []string {
	msgs := make([]string, 0, len(descs))
	for i := range descs {
		d := descs[i]
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		if isRunning(d.RawStatus) {
			msgs = append(msgs, fmt.Sprintf("device %s: status %s (online)", name, d.RawStatus))
		} else {
			msgs = append(msgs, fmt.Sprintf("device %s: status %s (offline)", name, d.RawStatus))
		}
	}
	return msgs
}

func summaryMessage(ip string, rep *Report) string {
	if rep.Count == 0 {
		return fmt.Sprintf("no devices fetched from host %s", ip)
	}
	msg := fmt.Sprintf("fetched %d devices from host %s, %d running", rep.Count, ip, rep.RunningCount)
	if rep.Created > 0 || rep.Updated > 0 {
		msg += fmt.Sprintf(", %d records created/updated", rep.Created+rep.Updated)
	}
	return msg
}
