package spll

import (
	"github.com/shiwa/timecard-mini/spll-backup/internal/logger"
	"github.com/shiwa/timecard-mini/spll-backup/internal/servo"
)

// LockState — результат Update
type LockState int

const (
	Locking LockState = iota // цикл не завершён или петля не в захвате
	Locked
)

func (s LockState) String() string {
	switch s {
	case Locking:
		return "locking"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Options — чем петли семейства отличаются друг от друга.
type Options struct {
	// UseLockDetector — результат Update определяется детектором захвата.
	// У backup-петли по умолчанию выключено: в начале ошибка велика и детектор
	// показывает срыв, хотя клоки синхронны.
	UseLockDetector bool
	// Drive — петля управляет ЦАП через PI регулятор (контракт main PLL).
	Drive bool
	// MaskLock — чей флаг захвата включает маскирование ошибки; nil — свой детектор.
	MaskLock LockIndicator
}

// Status — снимок состояния петли для отчётов
type Status struct {
	Enabled           bool
	IDRef, IDOut      int
	DACIndex          int
	Locked            bool
	PhaseShiftTarget  int64
	PhaseShiftCurrent int64
	Busy              bool
	LastError         int64
	Samples           int
	Cycles            uint64
	DelockCount       int
	TagsRef, TagsOut  uint32
}

// TrackingLoop — петля слежения, управляемая тегами
type TrackingLoop interface {
	Init(idRef, idOut int)
	Start()
	Stop()
	Update(tag uint32, source int) LockState
	SetPhaseShift(ps int32) error
	ShifterBusy() bool
	Status() Status
}

// trackingLoop — общая реализация main и backup петель
type trackingLoop struct {
	name   string
	params Params
	opts   Options
	tagger Tagger
	dac    DAC
	pi     *servo.PI

	enabled  bool
	idRef    int
	idOut    int
	dacIndex int

	ref, out stream
	errD     int64
	lastErr  int64

	phaseShiftTarget  int64
	phaseShiftCurrent int64

	ld LockDetector

	seqRef, seqOut uint32
	sampleN        int
	cycles         uint64
	delockCount    int
}

// Init задаёт конфигурацию петли (в отличие от рабочих данных, сбрасываемых в Start)
func (l *trackingLoop) Init(idRef, idOut int) {
	l.enabled = false
	l.delockCount = 0
	l.sampleN = 0
	l.ld = LockDetector{
		Threshold:     DefaultLockThreshold,
		LockSamples:   DefaultLockSamples,
		DelockSamples: DefaultDelockSamples,
	}
	l.idRef = idRef
	l.idOut = idOut
	l.dacIndex = idOut - l.params.NChanRef
	if l.pi != nil {
		l.pi.Reset()
	}
	logger.Debug("[%s] ref %d out %d idx %x", l.name, l.idRef, l.idOut, l.dacIndex)
}

// Start сбрасывает рабочие счётчики и включает тегирование опорного канала.
// Backup-петля не трогает тегер выходного канала: он уже включён main PLL.
func (l *trackingLoop) Start() {
	logger.Debug("[%s] start channel %d", l.name, l.idRef)

	l.ref.reset()
	l.out.reset()
	l.seqRef, l.seqOut = 0, 0
	l.errD = 0
	l.lastErr = 0
	l.phaseShiftTarget = 0
	l.phaseShiftCurrent = 0
	l.sampleN = 0
	l.cycles = 0
	if l.opts.Drive {
		l.pi.Reset()
		l.ld.Reset()
	}
	l.enabled = true

	l.tagger.EnableTagger(l.idRef, true)
	if l.opts.Drive {
		l.tagger.EnableTagger(l.idOut, true)
	}
}

// Stop выключает тегирование опорного канала; счётчики не сбрасываются
func (l *trackingLoop) Stop() {
	l.tagger.EnableTagger(l.idRef, false)
	l.enabled = false
}

// Update обрабатывает один тег от канала source.
// Выключенная петля ничего не меняет и сообщает Locked.
func (l *trackingLoop) Update(tag uint32, source int) LockState {
	if !l.enabled {
		return Locked
	}

	if source == l.idRef {
		l.ref.tag = sample{v: tag, ok: true}
		l.seqRef++
	}
	if source == l.idOut {
		l.out.tag = sample{v: tag, ok: true}
		l.seqOut++
	}

	l.ref.accumulate(l.params.TagRange())
	l.out.accumulate(l.params.TagRange())

	if !l.ref.tag.ok || !l.out.tag.ok {
		return Locking
	}
	return l.cycle()
}

// cycle — полный цикл: есть свежие теги обоих потоков
func (l *trackingLoop) cycle() LockState {
	err := l.ref.value() - l.out.value()
	if l.maskLocked() {
		err = l.params.maskError(err)
	}

	if l.opts.Drive {
		l.dac.SetDAC(l.dacIndex, l.pi.Update(int32(err)))
	} else {
		l.trackSetpoint(err)
	}

	l.errD = err
	l.lastErr = err
	l.cycles++
	l.ref.consume()
	l.out.consume()

	if l.ref.adder > 2*TagWraparound && l.out.adder > 2*TagWraparound {
		l.ref.adder -= TagWraparound
		l.out.adder -= TagWraparound
	}

	// main PLL двигает фазу только в захвате
	if !l.opts.Drive || l.ld.Locked() {
		l.step()
	}

	if !l.opts.UseLockDetector && !l.opts.Drive {
		return Locked
	}
	l.sampleN++
	wasLocked := l.ld.Locked()
	if l.ld.Update(err) {
		return Locked
	}
	if wasLocked {
		l.delockCount++
	}
	return Locking
}

// trackSetpoint — уставка backup-петли следует за измеренной ошибкой.
// Первая ненулевая ошибка после старта и есть нужная уставка: фаза выходного
// клока уже стоит там, куда её привела основная петля.
func (l *trackingLoop) trackSetpoint(err int64) {
	if err == 0 {
		return
	}
	if l.errD == 0 && l.phaseShiftCurrent == 0 && l.ref.adder == 0 {
		l.phaseShiftTarget = -err
		l.phaseShiftCurrent = -err
		l.ref.adder = -err
		logger.Debug("[%s] initial set of setpoint %d", l.name, l.phaseShiftTarget)
		return
	}
	// Цель задаётся приращением ошибки за цикл, а не накапливается
	l.phaseShiftTarget = -(err - l.errD)
}

// step двигает текущий сдвиг на одну единицу к цели; adderRef идёт вместе с ним
func (l *trackingLoop) step() {
	switch {
	case l.phaseShiftCurrent < l.phaseShiftTarget:
		l.phaseShiftCurrent++
		l.ref.adder++
	case l.phaseShiftCurrent > l.phaseShiftTarget:
		l.phaseShiftCurrent--
		l.ref.adder--
	}
}

func (l *trackingLoop) maskLocked() bool {
	if l.opts.MaskLock != nil {
		return l.opts.MaskLock.Locked()
	}
	return l.ld.Locked()
}

// SetPhaseShift задаёт новую цель сдвига; текущий сдвиг догоняет её по единице за цикл
func (l *trackingLoop) SetPhaseShift(ps int32) error {
	l.phaseShiftTarget = int64(l.params.FromPicos(ps))
	logger.Debug("[%s] set target phaseshift %d", l.name, l.phaseShiftTarget)
	return nil
}

// ShifterBusy — сдвиг фазы ещё не дошёл до цели
func (l *trackingLoop) ShifterBusy() bool {
	return l.phaseShiftCurrent != l.phaseShiftTarget
}

// Status возвращает снимок состояния
func (l *trackingLoop) Status() Status {
	return Status{
		Enabled:           l.enabled,
		IDRef:             l.idRef,
		IDOut:             l.idOut,
		DACIndex:          l.dacIndex,
		Locked:            l.ld.Locked(),
		PhaseShiftTarget:  l.phaseShiftTarget,
		PhaseShiftCurrent: l.phaseShiftCurrent,
		Busy:              l.ShifterBusy(),
		LastError:         l.lastErr,
		Samples:           l.sampleN,
		Cycles:            l.cycles,
		DelockCount:       l.delockCount,
		TagsRef:           l.seqRef,
		TagsOut:           l.seqOut,
	}
}

// LockDetector даёт доступ к детектору (например, чтобы маскировать ошибку
// backup-петли по захвату main PLL)
func (l *trackingLoop) LockDetector() *LockDetector {
	return &l.ld
}

// BackupLoop — резервная петля: измеряет фазу резервного опорного клока
// относительно выходного, ничем не управляет.
type BackupLoop struct {
	trackingLoop
}

// NewBackupLoop создаёт backup-петлю; Drive в opts игнорируется
func NewBackupLoop(params Params, tagger Tagger, opts Options) *BackupLoop {
	opts.Drive = false
	if tagger == nil {
		tagger = NopTagger{}
	}
	return &BackupLoop{trackingLoop{name: "bpll", params: params, opts: opts, tagger: tagger}}
}

// MainLoop — петля с PI регулятором и ЦАП: контракт, которому следует backup-петля
type MainLoop struct {
	trackingLoop
}

// NewMainLoop создаёт петлю с коэффициентами main PLL
func NewMainLoop(params Params, tagger Tagger, dac DAC) *MainLoop {
	if tagger == nil {
		tagger = NopTagger{}
	}
	if dac == nil {
		dac = NopDAC{}
	}
	return &MainLoop{trackingLoop{
		name:   "mpll",
		params: params,
		opts:   Options{Drive: true, UseLockDetector: true},
		tagger: tagger,
		dac:    dac,
		pi:     servo.NewMainPI(params.PIFracBits, params.DACBits),
	}}
}

var (
	_ TrackingLoop = (*BackupLoop)(nil)
	_ TrackingLoop = (*MainLoop)(nil)
)
