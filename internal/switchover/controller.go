package switchover

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shiwa/timecard-mini/spll-backup/internal/logger"
	"github.com/shiwa/timecard-mini/spll-backup/internal/spll"
	"github.com/shiwa/timecard-mini/spll-backup/pkg/config"
)

var (
	// ErrUnknownBackup — нет резервного канала с таким именем
	ErrUnknownBackup = errors.New("switchover: unknown backup")
	// ErrDuplicateChannel — опорный канал занят другим резервным или основным
	ErrDuplicateChannel = errors.New("switchover: reference channel already in use")
)

// Kind — тип события переключения
type Kind int

const (
	KindStart    Kind = iota // резервная петля начала слежение
	KindStop                 // резервная петля остановлена
	KindActivate             // резервный канал стал активным опорным
	KindRevert               // активным снова стал основной канал
	KindHoldover             // нет пригодного опорного канала
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindStop:
		return "stop"
	case KindActivate:
		return "activate"
	case KindRevert:
		return "revert"
	case KindHoldover:
		return "holdover"
	default:
		return "unknown"
	}
}

// Event — событие переключения; ID для корреляции в логах
type Event struct {
	ID         uuid.UUID
	Kind       Kind
	Name       string
	Channel    int
	PhaseShift int64 // текущий сдвиг фазы петли, единицы тегов
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s ch%d shift %d [%s]", e.Kind, e.Name, e.Channel, e.PhaseShift, e.ID)
}

// Controller управляет backup-петлями по состоянию линков.
// Не потокобезопасен: вызывается из того же цикла, что и Bank.Dispatch.
type Controller struct {
	bank     *spll.Bank
	backups  []config.BackupConfig
	election *Election
	links    map[string]bool
	active   *Candidate
	elected  bool // хотя бы раз был выбран активный канал
}

// NewController настраивает петли для включённых резервных каналов
func NewController(bank *spll.Bank, primary *config.PrimaryConfig, backups []config.BackupConfig) (*Controller, error) {
	c := &Controller{bank: bank, links: make(map[string]bool)}
	owner := make(map[int]string)
	if primary != nil && primary.Interface != "" {
		owner[primary.IDRef] = "primary"
	}
	var cands []Candidate
	for _, b := range backups {
		if b.Disable {
			continue
		}
		if other, ok := owner[b.IDRef]; ok {
			return nil, fmt.Errorf("backup %s: %w: ref %d (%s)", b.Name, ErrDuplicateChannel, b.IDRef, other)
		}
		owner[b.IDRef] = b.Name
		if _, err := bank.Init(b.IDRef, b.IDOut); err != nil {
			return nil, fmt.Errorf("backup %s: %w", b.Name, err)
		}
		c.backups = append(c.backups, b)
		cands = append(cands, Candidate{Name: b.Name, Interface: b.Interface, IDRef: b.IDRef})
	}
	var pc *Candidate
	if primary != nil && primary.Interface != "" {
		pc = &Candidate{Name: "primary", Interface: primary.Interface, IDRef: primary.IDRef, Primary: true}
	}
	c.election = NewElection(pc, cands)
	return c, nil
}

// Interfaces — интерфейсы, за линками которых нужно следить.
// Резервные каналы без интерфейса в список не входят.
func (c *Controller) Interfaces() []string {
	var out []string
	if p := c.election.primary; p != nil {
		out = append(out, p.Interface)
	}
	for _, b := range c.backups {
		if b.Interface != "" {
			out = append(out, b.Interface)
		}
	}
	return out
}

// HandleLink применяет изменение линка и возвращает порождённые события
func (c *Controller) HandleLink(ev LinkEvent) []Event {
	c.links[ev.Interface] = ev.Up
	var evs []Event
	for _, b := range c.backups {
		if b.Interface != ev.Interface {
			continue
		}
		l := c.bank.Loop(b.IDRef)
		enabled := l.Status().Enabled
		switch {
		case ev.Up && !enabled:
			l.Start()
			_ = l.SetPhaseShift(b.PhaseShiftPs)
			evs = append(evs, c.event(KindStart, b.Name, b.IDRef))
		case !ev.Up && enabled:
			l.Stop()
			evs = append(evs, c.event(KindStop, b.Name, b.IDRef))
		}
	}
	return append(evs, c.Reelect()...)
}

// Reelect повторяет выбор активного канала; событие — только при смене
func (c *Controller) Reelect() []Event {
	next := c.election.Select(c.linkUp, c.ready)
	prev := c.active
	if next == prev {
		return nil
	}
	c.active = next
	wasElected := c.elected
	if next != nil {
		c.elected = true
	}
	var ev Event
	switch {
	case next == nil:
		ev = c.event(KindHoldover, "", -1)
	case next.Primary:
		if !wasElected {
			// первый выбор основного канала — не переключение
			return nil
		}
		ev = c.event(KindRevert, next.Name, next.IDRef)
	default:
		ev = c.event(KindActivate, next.Name, next.IDRef)
	}
	return []Event{ev}
}

// SetPhaseShift задаёт сдвиг фазы резервного канала по имени
func (c *Controller) SetPhaseShift(name string, ps int32) error {
	for _, b := range c.backups {
		if b.Name == name {
			return c.bank.Loop(b.IDRef).SetPhaseShift(ps)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownBackup, name)
}

// Active — активный опорный канал или nil
func (c *Controller) Active() *Candidate {
	return c.active
}

// Backups — включённые резервные каналы
func (c *Controller) Backups() []config.BackupConfig {
	return c.backups
}

func (c *Controller) linkUp(iface string) bool {
	return c.links[iface]
}

func (c *Controller) ready(idRef int) bool {
	l := c.bank.Loop(idRef)
	if l == nil {
		return false
	}
	st := l.Status()
	return st.Enabled && !st.Busy
}

func (c *Controller) event(k Kind, name string, ch int) Event {
	ev := Event{ID: uuid.New(), Kind: k, Name: name, Channel: ch}
	if l := c.bank.Loop(ch); l != nil {
		ev.PhaseShift = l.Status().PhaseShiftCurrent
	}
	logger.Info("switchover: %s", ev)
	return ev
}
