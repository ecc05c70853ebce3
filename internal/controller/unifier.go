package controller

import (
	"context"
	"fmt"

	"boxfarm/internal/logs"
	"boxfarm/internal/models"
	"boxfarm/internal/repo"
)

type portGroup struct {
	deviceIP string
	index    int
}

// UnifyPorts выравнивает порты внутри групп (device_ip, instance_index):
// авторитетный участник — первый online с обоими портами, остальные
// зеркалят его значения. Весь проход — одна транзакция.
func (r *Reconciler) UnifyPorts(ctx context.Context) (*UnifyReport, error) {
	logs.Logger.Info("port unification: starting")

	groupCount := 0
	updatedGroups := 0

	err := r.store.Transaction(ctx, func(tx *repo.DeviceStore) error {
		devices, err := tx.ListWithInstanceIndex(ctx)
		if err != nil {
			return err
		}

		// Группируем с сохранением порядка появления — проход детерминирован.
		groups := make(map[portGroup][]*models.Device)
		var order []portGroup
		for i := range devices {
			d := &devices[i]
			key := portGroup{deviceIP: d.DeviceIP, index: *d.InstanceIndex}
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], d)
		}
		groupCount = len(order)
		logs.Logger.Infof("port unification: %d groups to process", groupCount)

		for _, key := range order {
			group := groups[key]

			var authority *models.Device
			for _, d := range group {
				if d.Status == models.DeviceStatusOnline && d.U2Port != nil && d.RPCPort != nil {
					authority = d
					break
				}
			}
			if authority == nil {
				logs.Logger.Infof("port unification: group (%s, %d) has no online member with both ports, left untouched",
					key.deviceIP, key.index)
				continue
			}

			logs.Logger.Infof("port unification: group (%s, %d) follows ports of %q",
				key.deviceIP, key.index, authority.Name)

			groupDirty := false
			for _, d := range group {
				dirty := false
				if d.U2Port == nil || *d.U2Port != *authority.U2Port {
					logs.Logger.Infof("  device %q: u2_port set to %d", d.Name, *authority.U2Port)
					d.U2Port = authority.U2Port
					dirty = true
				}
				if d.RPCPort == nil || *d.RPCPort != *authority.RPCPort {
					logs.Logger.Infof("  device %q: rpc_port set to %d", d.Name, *authority.RPCPort)
					d.RPCPort = authority.RPCPort
					dirty = true
				}
				if dirty {
					if err := tx.Save(ctx, d); err != nil {
						return err
					}
					groupDirty = true
				}
			}
			if groupDirty {
				updatedGroups++
			}
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("port unification rolled back: %v", err)
		return nil, err
	}

	if updatedGroups > 0 {
		logs.Logger.Infof("port unification: committed, %d groups updated", updatedGroups)
	} else {
		logs.Logger.Info("port unification: nothing to update")
	}

	return &UnifyReport{
		Success: true,
		Message: fmt.Sprintf("port unification finished: %d groups processed, %d updated",
			groupCount, updatedGroups),
		UpdatedGroupCount: updatedGroups,
	}, nil
}
