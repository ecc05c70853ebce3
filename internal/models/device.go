package models

import (
	"strings"
	"time"
)

// Статусы устройства в реестре.
const (
	DeviceStatusOnline     = "online"
	DeviceStatusOffline    = "offline"
	DeviceStatusCreated    = "created"
	DeviceStatusRestarting = "restarting"
	DeviceStatusUnknown    = "unknown"
)

// Device — запись реестра устройств. Логический ключ — уникальное имя;
// группировка зеркальных инстансов — по (device_ip, instance_index).
type Device struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name          string `gorm:"uniqueIndex;size:100;not null" json:"name"`
	DeviceIP      string `gorm:"size:15;not null;index:idx_device_ip_status;index:idx_device_ip_instance" json:"device_ip"`
	BoxIP         string `gorm:"size:15;index:idx_box_ip_status" json:"box_ip"`
	U2Port        *int   `json:"u2_port"`
	RPCPort       *int   `json:"rpc_port"`
	InstanceIndex *int   `gorm:"index:idx_device_ip_instance" json:"instance_index"`
	Status        string `gorm:"size:20;not null;default:offline;index:idx_device_ip_status;index:idx_box_ip_status" json:"status"`

	// Профильные поля — принадлежат batch-операциям, ядро синхронизации их не трогает.
	Proxy     string `gorm:"size:100" json:"proxy"`
	Language  string `gorm:"size:10;default:en" json:"language"`
	GroupName string `gorm:"size:100" json:"group_name"`
}

// PortKind различает два управляющих порта устройства.
// Значение совпадает с именем колонки в БД.
type PortKind string

const (
	PortU2  PortKind = "u2_port"
	PortRPC PortKind = "rpc_port"
)

// Column возвращает имя колонки для запросов по портам.
func (k PortKind) Column() string { return string(k) }

// MapStatus переводит сырой статус API фермы в статус реестра.
// running → online; created/restarting → online только при явной подсказке
// API (treatCreatedAsOnline), иначе offline; всё остальное — offline.
func MapStatus(raw string, treatCreatedAsOnline bool) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running":
		return DeviceStatusOnline
	case DeviceStatusCreated, DeviceStatusRestarting:
		if treatCreatedAsOnline {
			return DeviceStatusOnline
		}
		return DeviceStatusOffline
	default:
		return DeviceStatusOffline
	}
}
