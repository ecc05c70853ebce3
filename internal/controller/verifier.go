package controller

import (
	"context"

	"boxfarm/internal/farm"
	"boxfarm/internal/logs"
	"boxfarm/internal/models"
)

// verify сверяет после коммита: каждое устройство, которое ферма видит
// как running, должно лежать в реестре как online. Расхождения чинятся
// best-effort отдельными коммитами; сбой починки только логируется и
// никогда не роняет родительскую операцию.
func (r *Reconciler) verify(ctx context.Context, ip string, descs []farm.Descriptor) {
	running := make(map[string]struct{})
	for i := range descs {
		if isRunning(descs[i].RawStatus) && descs[i].Name != "" {
			running[descs[i].Name] = struct{}{}
		}
	}

	stored, err := r.store.ListByBoxIP(ctx, ip)
	if err != nil {
		logs.Logger.Errorf("sync verify for host %s failed to load records: %v", ip, err)
		return
	}

	online := make(map[string]struct{})
	for i := range stored {
		if stored[i].Status == models.DeviceStatusOnline {
			online[stored[i].Name] = struct{}{}
		}
	}

	var missing []string
	for name := range running {
		if _, ok := online[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		logs.Logger.Infof("sync verify for host %s: all running devices are online in the registry", ip)
		return
	}

	logs.Logger.Errorf("sync verify for host %s: running in API but not online in registry: %v", ip, missing)
	for _, name := range missing {
		r.repairDevice(ctx, name, descs)
	}
}

// repairDevice принудительно возвращает запись в online по данным той же
// выборки; порты добираются из сырых адресов "ip:port", если они читаемы.
func (r *Reconciler) repairDevice(ctx context.Context, name string, descs []farm.Descriptor) {
	dev, err := r.store.FindByName(ctx, name)
	if err != nil {
		logs.Logger.Errorf("repair of %q failed to load record: %v", name, err)
		return
	}
	if dev == nil {
		logs.Logger.Errorf("repair of %q impossible: no such record in the registry", name)
		return
	}
	logs.Logger.Errorf("record %q exists with status %q, forcing online", name, dev.Status)

	var desc *farm.Descriptor
	for i := range descs {
		if descs[i].Name == name {
			desc = &descs[i]
			break
		}
	}
	if desc == nil {
		logs.Logger.Errorf("repair of %q impossible: device absent from the fetched batch", name)
		return
	}

	dev.Status = models.DeviceStatusOnline
	if p, ok := farm.ParsePort(desc.RawU2); ok {
		dev.U2Port = &p
	}
	if p, ok := farm.ParsePort(desc.RawRPC); ok {
		dev.RPCPort = &p
	}

	if err := r.store.Save(ctx, dev); err != nil {
		logs.Logger.Errorf("repair of %q failed to commit: %v", name, err)
		return
	}
	logs.Logger.Infof("repair: device %q forced back to online", name)
}
