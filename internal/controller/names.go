package controller

import (
	"context"
	"fmt"
	"strings"

	"boxfarm/internal/logs"
	"boxfarm/internal/models"
	"boxfarm/internal/repo"
)

// SyncNames сводит имена в реестре с именами фермы для хоста ip.
// Сопоставление: сначала точный instance_index, затем эвристика по
// префиксу имени. Записи не создаются и не удаляются; несматченные
// живые имена только логируются.
func (r *Reconciler) SyncNames(ctx context.Context, ip string) (*NamesReport, error) {
	if strings.TrimSpace(ip) == "" {
		return nil, fmt.Errorf("%w: host ip must not be blank", ErrValidation)
	}

	logs.Logger.Infof("syncing device names for host %s", ip)

	live, err := r.fetcher.List(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("%w: host %s: %v", ErrFetch, ip, err)
	}
	if len(live) == 0 {
		logs.Logger.Warnf("host %s: farm returned empty device list", ip)
		return &NamesReport{Success: false, Message: "device list is empty"}, nil
	}
	logs.Logger.Infof("host %s: %d live devices", ip, len(live))

	updated := 0
	err = r.store.Transaction(ctx, func(tx *repo.DeviceStore) error {
		stored, err := tx.ListByBoxIP(ctx, ip)
		if err != nil {
			return err
		}
		logs.Logger.Infof("host %s: %d stored records", ip, len(stored))

		byIndex := make(map[int]*models.Device)
		byName := make(map[string]*models.Device, len(stored))
		var nameOrder []string
		for i := range stored {
			d := &stored[i]
			if d.InstanceIndex != nil {
				byIndex[*d.InstanceIndex] = d
			}
			byName[d.Name] = d
			nameOrder = append(nameOrder, d.Name)
		}

		for i := range live {
			entry := live[i]
			if entry.Name == "" {
				logs.Logger.Warnf("host %s: live device without name skipped", ip)
				continue
			}

			var match *models.Device
			if entry.InstanceIndex != nil {
				match = byIndex[*entry.InstanceIndex]
			}
			if match == nil {
				base := namePrefix(entry.Name)
				for _, oldName := range nameOrder {
					if strings.HasPrefix(oldName, base) || strings.HasPrefix(entry.Name, namePrefix(oldName)) {
						logs.Logger.Infof("matched by name prefix: live=%q stored=%q", entry.Name, oldName)
						match = byName[oldName]
						break
					}
				}
			}

			if match == nil {
				logs.Logger.Warnf("no stored record matches live device %q", entry.Name)
				continue
			}
			if match.Name != entry.Name {
				logs.Logger.Infof("renaming device %q -> %q", match.Name, entry.Name)
				match.Name = entry.Name
				if err := tx.Save(ctx, match); err != nil {
					return err
				}
				updated++
			}
		}
		return nil
	})
	if err != nil {
		logs.Logger.Errorf("name sync for host %s rolled back: %v", ip, err)
		return nil, err
	}

	return &NamesReport{
		Success: true,
		Message: fmt.Sprintf("synced %d device names", updated),
		Updated: updated,
	}, nil
}

// namePrefix отрезает последний "_"-суффикс имени: "phone_1_2" → "phone_1".
// Имя без разделителя возвращается целиком.
func namePrefix(name string) string {
	if i := strings.LastIndex(name, "_"); i > 0 {
		return name[:i]
	}
	return name
}
