package farm

import (
	"strconv"
	"strings"

	"boxfarm/internal/logs"
)

// Descriptor — типизированное описание устройства из API фермы.
// Собирается один раз на границе из сырых JSON-объектов, дальше
// по коду ходят только явные поля.
type Descriptor struct {
	Name          string
	IP            string // IP инстанса; может отличаться от IP хоста
	RawStatus     string // сырой статус API: running|created|restarting|...
	U2Port        *int
	RPCPort       *int
	InstanceIndex *int

	// Явная подсказка API: считать created/restarting онлайном.
	TreatCreatedAsOnline bool

	// Сырые значения адресов управления ("ip:port") — нужны
	// восстановительному проходу SyncVerifier.
	RawU2  string
	RawRPC string
}

// Ключи, под которыми API отдаёт одни и те же поля в разных ответах.
var (
	nameKeys   = []string{"Names", "names", "name", "device_name"}
	statusKeys = []string{"State", "state", "status"}
	indexKeys  = []string{"index", "device_index"}
	u2Keys     = []string{"ADB", "adb", "u2_port", "android_port", "adb_url"}
	rpcKeys    = []string{"RPC", "rpc", "rpc_port", "myt_rpc_port", "api_url"}
	rpcFbKeys  = []string{"webrtc", "ctr_port"}
)

// parseDescriptor превращает сырой объект устройства в Descriptor.
// hostIP — IP хоста фермы, используется как fallback для IP инстанса.
func parseDescriptor(raw map[string]any, hostIP string) Descriptor {
	d := Descriptor{IP: hostIP, RawStatus: "unknown"}

	for _, k := range nameKeys {
		if s := stringField(raw[k]); s != "" {
			d.Name = s
			break
		}
	}
	for _, k := range statusKeys {
		if s := stringField(raw[k]); s != "" {
			d.RawStatus = s
			break
		}
	}
	if ip := stringField(raw["ip"]); ip != "" {
		d.IP = ip
	}
	for _, k := range indexKeys {
		if raw[k] == nil {
			continue
		}
		if n, ok := intField(raw[k]); ok {
			d.InstanceIndex = &n
			break
		}
		logs.Logger.Warnf("device %q: index key %q has non-numeric value %v", d.Name, k, raw[k])
	}

	d.U2Port, d.RawU2 = portField(raw, u2Keys)
	d.RPCPort, d.RawRPC = portField(raw, rpcKeys)
	if d.RPCPort == nil {
		// запасные ключи RPC встречаются в старых прошивках хоста
		d.RPCPort, d.RawRPC = portField(raw, rpcFbKeys)
	}

	if hint, ok := raw["should_treat_created_as_online"].(bool); ok {
		d.TreatCreatedAsOnline = hint
	}
	return d
}

// ParsePort выделяет номер порта из значения вида "10.0.0.5:5555" или "5555".
func ParsePort(v string) (int, bool) {
	s := v
	if i := strings.LastIndex(v, ":"); i >= 0 {
		s = v[i+1:]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func portField(raw map[string]any, keys []string) (*int, string) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64: // JSON-число
			n := int(t)
			if n > 0 {
				return &n, strconv.Itoa(n)
			}
		case string:
			if t == "" {
				continue
			}
			if n, ok := ParsePort(t); ok {
				return &n, t
			}
		}
	}
	return nil, ""
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		// "Names" иногда приходит списком — берём первый элемент
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

func intField(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	}
	return 0, false
}
