package spll

// Константы детектора захвата (частотная ветвь main PLL, те же у backup)
const (
	DefaultLockThreshold = 1200
	DefaultLockSamples   = 1000
	DefaultDelockSamples = 100
)

// LockIndicator — источник флага захвата (для маскирования ошибки)
type LockIndicator interface {
	Locked() bool
}

// LockDetector — оконный детектор захвата, общий для main и backup петель.
// Ошибка в пределах Threshold наращивает счётчик до LockSamples (захват),
// вне порога — уменьшает до DelockSamples (срыв).
type LockDetector struct {
	Threshold     int64
	LockSamples   int
	DelockSamples int

	lockCnt int
	locked  bool
}

// Update учитывает очередную ошибку и возвращает состояние захвата
func (d *LockDetector) Update(err int64) bool {
	if err < 0 {
		err = -err
	}
	if err <= d.Threshold {
		if d.lockCnt < d.LockSamples {
			d.lockCnt++
		}
		if d.lockCnt == d.LockSamples {
			d.locked = true
		}
	} else {
		if d.lockCnt > d.DelockSamples {
			d.lockCnt--
		}
		if d.lockCnt == d.DelockSamples {
			d.lockCnt = 0
			d.locked = false
		}
	}
	return d.locked
}

// Locked возвращает текущее состояние
func (d *LockDetector) Locked() bool {
	return d.locked
}

// Reset сбрасывает счётчик и флаг, пороги сохраняются
func (d *LockDetector) Reset() {
	d.lockCnt = 0
	d.locked = false
}
