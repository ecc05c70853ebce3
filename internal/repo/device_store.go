package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"boxfarm/internal/models"
)

var ErrNotFound = errors.New("device not found")

type DeviceStore struct{ db *gorm.DB }

func NewDeviceStore(db *gorm.DB) *DeviceStore { return &DeviceStore{db: db} }

// Transaction выполняет fn в одной транзакции: все изменения внутри
// коммитятся атомарно, любая ошибка откатывает всё.
func (s *DeviceStore) Transaction(ctx context.Context, fn func(tx *DeviceStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DeviceStore{db: tx})
	})
}

// FindByName ищет устройство по точному имени; (nil, nil) если записи нет.
func (s *DeviceStore) FindByName(ctx context.Context, name string) (*models.Device, error) {
	var d models.Device
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListByBoxIP возвращает все устройства, привязанные к хосту фермы.
func (s *DeviceStore) ListByBoxIP(ctx context.Context, boxIP string) ([]models.Device, error) {
	var out []models.Device
	err := s.db.WithContext(ctx).Where("box_ip = ?", boxIP).Order("id").Find(&out).Error
	return out, err
}

// ListWithInstanceIndex возвращает устройства, пригодные для группировки
// по (device_ip, instance_index) — обе части ключа заполнены.
func (s *DeviceStore) ListWithInstanceIndex(ctx context.Context) ([]models.Device, error) {
	var out []models.Device
	err := s.db.WithContext(ctx).
		Where("device_ip IS NOT NULL AND device_ip <> ''").
		Where("instance_index IS NOT NULL").
		Order("id").
		Find(&out).Error
	return out, err
}

// List возвращает устройства, опционально отфильтрованные по box_ip.
func (s *DeviceStore) List(ctx context.Context, boxIP string) ([]models.Device, error) {
	q := s.db.WithContext(ctx).Order("id")
	if boxIP != "" {
		q = q.Where("box_ip = ?", boxIP)
	}
	var out []models.Device
	err := q.Find(&out).Error
	return out, err
}

// PortInUse — занят ли порт kind=port другой записью на device_ip.
func (s *DeviceStore) PortInUse(ctx context.Context, deviceIP string, kind models.PortKind, port int, excludeID uint) (bool, error) {
	return s.portInUse(ctx, deviceIP, kind, port, excludeID, false)
}

// PortInUseOnline — как PortInUse, но учитываются только online-записи.
func (s *DeviceStore) PortInUseOnline(ctx context.Context, deviceIP string, kind models.PortKind, port int, excludeID uint) (bool, error) {
	return s.portInUse(ctx, deviceIP, kind, port, excludeID, true)
}

func (s *DeviceStore) portInUse(ctx context.Context, deviceIP string, kind models.PortKind, port int, excludeID uint, onlineOnly bool) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("device_ip = ?", deviceIP).
		Where(kind.Column()+" = ?", port)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if onlineOnly {
		q = q.Where("status = ?", models.DeviceStatusOnline)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// PortsOnHost возвращает множество занятых портов kind на device_ip.
func (s *DeviceStore) PortsOnHost(ctx context.Context, deviceIP string, kind models.PortKind) (map[int]struct{}, error) {
	var ports []int
	err := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("device_ip = ?", deviceIP).
		Where(kind.Column() + " IS NOT NULL").
		Pluck(kind.Column(), &ports).Error
	if err != nil {
		return nil, err
	}
	set := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return set, nil
}

// FindByHostPort возвращает запись, уже владеющую парой (device_ip, порт);
// (nil, nil) если таких нет.
func (s *DeviceStore) FindByHostPort(ctx context.Context, deviceIP string, kind models.PortKind, port int) (*models.Device, error) {
	var d models.Device
	err := s.db.WithContext(ctx).
		Where("device_ip = ?", deviceIP).
		Where(kind.Column()+" = ?", port).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// OnlineSibling ищет online-участника группы (device_ip, instance_index)
// с заполненными обоими портами, исключая запись excludeID.
func (s *DeviceStore) OnlineSibling(ctx context.Context, deviceIP string, instanceIndex int, excludeID uint) (*models.Device, error) {
	var d models.Device
	err := s.db.WithContext(ctx).
		Where("device_ip = ?", deviceIP).
		Where("instance_index = ?", instanceIndex).
		Where("status = ?", models.DeviceStatusOnline).
		Where("u2_port IS NOT NULL AND rpc_port IS NOT NULL").
		Where("id <> ?", excludeID).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DeviceStore) Create(ctx context.Context, d *models.Device) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *DeviceStore) Save(ctx context.Context, d *models.Device) error {
	return s.db.WithContext(ctx).Save(d).Error
}
