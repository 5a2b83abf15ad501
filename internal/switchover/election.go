package switchover

// Candidate — опорный канал, который может стать активным
type Candidate struct {
	Name      string
	Interface string
	IDRef     int
	Primary   bool
}

// Election — выбор активного опорного канала: основной, пока его линк поднят,
// иначе первый готовый резервный
type Election struct {
	primary *Candidate
	backups []Candidate
	active  *Candidate
}

// NewElection создаёт выборщик; primary может быть nil
func NewElection(primary *Candidate, backups []Candidate) *Election {
	return &Election{primary: primary, backups: backups}
}

// Select выбирает активный канал. linkUp сообщает состояние линка интерфейса,
// ready — готовность резервной петли (включена и сдвиг фазы завершён).
func (e *Election) Select(linkUp func(iface string) bool, ready func(idRef int) bool) *Candidate {
	if e.primary != nil && linkUp(e.primary.Interface) {
		e.active = e.primary
		return e.active
	}
	// активный резервный канал остаётся активным, пока жив его линк
	if e.active != nil && !e.active.Primary && linkUp(e.active.Interface) {
		return e.active
	}
	for i := range e.backups {
		b := &e.backups[i]
		if linkUp(b.Interface) && ready(b.IDRef) {
			e.active = b
			return b
		}
	}
	e.active = nil
	return nil
}

// Active возвращает текущий активный канал (после Select)
func (e *Election) Active() *Candidate {
	return e.active
}
