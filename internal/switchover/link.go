// Package switchover — переключение на резервный опорный клок: состояние линков,
// выбор активного опорного канала и управление backup-петлями.
package switchover

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultSysNet — где ядро публикует состояние сетевых интерфейсов
const DefaultSysNet = "/sys/class/net"

// LinkEvent — изменение состояния линка
type LinkEvent struct {
	Interface string
	Up        bool
}

// LinkMonitor опрашивает carrier интерфейсов и сообщает об изменениях.
// Первый опрос сообщает состояние всех интерфейсов.
type LinkMonitor struct {
	ifaces  []string
	poll    time.Duration
	carrier func(iface string) bool
	state   map[string]bool
}

// NewLinkMonitor создаёт монитор для ifaces с периодом poll
func NewLinkMonitor(ifaces []string, poll time.Duration) *LinkMonitor {
	return NewLinkMonitorFunc(ifaces, poll, func(iface string) bool {
		return ReadCarrier(DefaultSysNet, iface)
	})
}

// NewLinkMonitorFunc — монитор с произвольным источником состояния линка
// (другой корень sysfs, стенды, тесты). carrier вызывается из горутины Run.
func NewLinkMonitorFunc(ifaces []string, poll time.Duration, carrier func(iface string) bool) *LinkMonitor {
	seen := make(map[string]bool)
	var uniq []string
	for _, i := range ifaces {
		if i == "" || seen[i] {
			continue
		}
		seen[i] = true
		uniq = append(uniq, i)
	}
	return &LinkMonitor{ifaces: uniq, poll: poll, carrier: carrier}
}

// Poll — один проход опроса; возвращает изменения с прошлого прохода
func (m *LinkMonitor) Poll() []LinkEvent {
	first := m.state == nil
	if first {
		m.state = make(map[string]bool, len(m.ifaces))
	}
	var evs []LinkEvent
	for _, i := range m.ifaces {
		up := m.carrier(i)
		if prev, ok := m.state[i]; !first && ok && prev == up {
			continue
		}
		m.state[i] = up
		evs = append(evs, LinkEvent{Interface: i, Up: up})
	}
	return evs
}

// Run опрашивает линки до отмены ctx
func (m *LinkMonitor) Run(ctx context.Context, out chan<- LinkEvent) error {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		for _, ev := range m.Poll() {
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReadCarrier читает <root>/<iface>/carrier. Ошибка чтения (интерфейс
// выключен или отсутствует) считается отсутствием линка.
func ReadCarrier(root, iface string) bool {
	b, err := os.ReadFile(filepath.Join(root, iface, "carrier"))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(b)) == "1"
}
