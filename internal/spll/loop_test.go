package spll

import (
	"reflect"
	"testing"
)

// recordTagger запоминает запросы на тегирование
type recordTagger struct {
	calls []taggerCall
}

type taggerCall struct {
	channel int
	on      bool
}

func (r *recordTagger) EnableTagger(channel int, on bool) {
	r.calls = append(r.calls, taggerCall{channel, on})
}

// recordDAC запоминает последнее записанное слово
type recordDAC struct {
	index  int
	value  int32
	writes int
}

func (r *recordDAC) SetDAC(index int, value int32) {
	r.index, r.value = index, value
	r.writes++
}

const (
	testRef = 0
	testOut = 1
)

func newStartedLoop(t *testing.T) (*BackupLoop, *recordTagger) {
	t.Helper()
	tg := &recordTagger{}
	l := NewBackupLoop(DefaultParams(), tg, Options{})
	l.Init(testRef, testOut)
	l.Start()
	return l, tg
}

func TestInit(t *testing.T) {
	p := DefaultParams()
	p.NChanRef = 3
	tg := &recordTagger{}
	l := NewBackupLoop(p, tg, Options{})
	l.Init(2, 3)

	st := l.Status()
	if st.Enabled {
		t.Error("Init не должен включать петлю")
	}
	if st.IDRef != 2 || st.IDOut != 3 || st.DACIndex != 0 {
		t.Errorf("ids: got ref=%d out=%d dac=%d", st.IDRef, st.IDOut, st.DACIndex)
	}
	if l.ld.Threshold != 1200 || l.ld.LockSamples != 1000 || l.ld.DelockSamples != 100 {
		t.Errorf("пороги детектора: %+v", l.ld)
	}
	if len(tg.calls) != 0 {
		t.Errorf("Init не должен трогать тегер, вызовы: %v", tg.calls)
	}
}

func TestStartStop(t *testing.T) {
	l, tg := newStartedLoop(t)
	if !l.enabled {
		t.Fatal("после Start петля должна быть включена")
	}
	want := []taggerCall{{testRef, true}}
	if !reflect.DeepEqual(tg.calls, want) {
		t.Errorf("Start: вызовы тегера %v, ожидали %v (только опорный канал)", tg.calls, want)
	}

	l.Update(100, testRef)
	l.Update(80, testOut)
	l.Stop()
	if l.enabled {
		t.Error("после Stop петля должна быть выключена")
	}
	want = append(want, taggerCall{testRef, false})
	if !reflect.DeepEqual(tg.calls, want) {
		t.Errorf("Stop: вызовы тегера %v, ожидали %v", tg.calls, want)
	}
	if l.phaseShiftCurrent != -20 {
		t.Errorf("Stop не должен сбрасывать счётчики, current=%d", l.phaseShiftCurrent)
	}

	// Повторный Start сбрасывает всё
	l.Start()
	if l.phaseShiftCurrent != 0 || l.phaseShiftTarget != 0 || l.ref.adder != 0 || l.errD != 0 {
		t.Errorf("Start должен сбросить рабочие счётчики: %+v", l.Status())
	}
	if l.ref.tagD.ok || l.out.tagD.ok || l.ref.tag.ok || l.out.tag.ok {
		t.Error("Start должен сбросить теги в «нет»")
	}
}

func TestWraparoundAccumulation(t *testing.T) {
	l, _ := newStartedLoop(t)

	l.Update(5, testRef)
	if l.ref.adder != 0 {
		t.Fatalf("первый тег не может быть переполнением, adder=%d", l.ref.adder)
	}
	l.Update(3, testRef)
	if l.ref.adder != 1<<22 {
		t.Errorf("adder: ожидали %d, получили %d", 1<<22, l.ref.adder)
	}
	if !l.ref.tagD.ok || l.ref.tagD.v != 3 {
		t.Errorf("предыдущий тег: ожидали 3, получили %+v", l.ref.tagD)
	}

	// Выходной поток считается независимо
	l.Update(10, testOut)
	if l.out.adder != 0 {
		t.Errorf("adderOut должен остаться 0, получили %d", l.out.adder)
	}
}

func TestSentinelIndependence(t *testing.T) {
	l, _ := newStartedLoop(t)

	for _, tag := range []uint32{10, 20, 30} {
		if st := l.Update(tag, testRef); st != Locking {
			t.Errorf("только опорный тег: ожидали Locking, получили %v", st)
		}
	}
	if l.out.tag.ok {
		t.Error("tagOut должен оставаться пустым")
	}
	if !l.ref.tag.ok || l.ref.tag.v != 30 {
		t.Errorf("tagRef: ожидали 30, получили %+v", l.ref.tag)
	}
	if l.errD != 0 || l.lastErr != 0 || l.phaseShiftTarget != 0 {
		t.Error("без выходного тега ошибка не должна вычисляться")
	}
}

func TestRebasingPreservesDifference(t *testing.T) {
	l, _ := newStartedLoop(t)
	l.ref.adder = 2*TagWraparound + 1
	l.out.adder = 2*TagWraparound + 1
	before := l.ref.adder - l.out.adder

	l.Update(7, testRef)
	if st := l.Update(7, testOut); st != Locked {
		t.Fatalf("полный цикл: ожидали Locked, получили %v", st)
	}
	if got := l.ref.adder - l.out.adder; got != before {
		t.Errorf("разность adder изменилась: было %d, стало %d", before, got)
	}
	if l.ref.adder != TagWraparound+1 || l.out.adder != TagWraparound+1 {
		t.Errorf("ожидали ребазирование на %d: ref=%d out=%d", TagWraparound, l.ref.adder, l.out.adder)
	}
}

func TestNoRebaseBelowThreshold(t *testing.T) {
	l, _ := newStartedLoop(t)
	l.ref.adder = 2 * TagWraparound
	l.out.adder = 3 * TagWraparound

	l.Update(7, testRef)
	l.Update(7, testOut)
	if l.out.adder != 3*TagWraparound {
		t.Errorf("ребазирование требует, чтобы оба adder превысили порог; out=%d", l.out.adder)
	}
}

func TestColdStartSnap(t *testing.T) {
	l, _ := newStartedLoop(t)

	if st := l.Update(100, testRef); st != Locking {
		t.Fatalf("ожидали Locking, получили %v", st)
	}
	if st := l.Update(80, testOut); st != Locked {
		t.Fatalf("ожидали Locked, получили %v", st)
	}
	if l.phaseShiftTarget != -20 || l.phaseShiftCurrent != -20 || l.ref.adder != -20 {
		t.Errorf("target=%d current=%d adderRef=%d, ожидали -20", l.phaseShiftTarget, l.phaseShiftCurrent, l.ref.adder)
	}
	if l.errD != 20 {
		t.Errorf("errD: ожидали 20, получили %d", l.errD)
	}
	if l.ref.tag.ok || l.out.tag.ok {
		t.Error("теги должны быть использованы")
	}
	if l.ShifterBusy() {
		t.Error("после начальной установки сдвигатель свободен")
	}
}

func TestErrorDeltaSetsTarget(t *testing.T) {
	l, _ := newStartedLoop(t)
	l.Update(100, testRef)
	l.Update(80, testOut) // err=20, snap к -20; adderRef=-20

	// Следующий цикл: выходной клок ушёл на 5 единиц
	l.Update(200, testRef)
	l.Update(175, testOut) // err = -20+200-175 = 5
	if l.errD != 5 {
		t.Fatalf("errD: ожидали 5, получили %d", l.errD)
	}
	// Цель = -(5-20) = 15, текущий сдвиг сделал шаг от -20 к 15
	if l.phaseShiftTarget != 15 {
		t.Errorf("target: ожидали 15, получили %d", l.phaseShiftTarget)
	}
	if l.phaseShiftCurrent != -19 || l.ref.adder != -19 {
		t.Errorf("current=%d adderRef=%d, ожидали -19", l.phaseShiftCurrent, l.ref.adder)
	}
}

func TestRateLimitedConvergence(t *testing.T) {
	l, _ := newStartedLoop(t)
	p := DefaultParams()

	ps := int32(49) // 49 пс → 50 единиц при 16000 пс и HPLLN=14
	if got := p.FromPicos(ps); got != 50 {
		t.Fatalf("FromPicos(%d) = %d, ожидали 50", ps, got)
	}
	if err := l.SetPhaseShift(ps); err != nil {
		t.Fatalf("SetPhaseShift: %v", err)
	}
	if l.phaseShiftCurrent != 0 || !l.ShifterBusy() {
		t.Fatal("SetPhaseShift меняет только цель")
	}

	// Выходной клок следует за сдвигом (как при работающей main PLL): ошибка 0
	const refTag = 1000
	for i := 1; i <= 50; i++ {
		l.Update(refTag, testRef)
		l.Update(uint32(refTag+l.phaseShiftCurrent), testOut)
		if l.phaseShiftCurrent != int64(i) {
			t.Fatalf("цикл %d: current=%d", i, l.phaseShiftCurrent)
		}
		if i < 50 && !l.ShifterBusy() {
			t.Fatalf("цикл %d: сдвигатель должен быть занят", i)
		}
	}
	if l.ShifterBusy() {
		t.Error("после достижения цели сдвигатель должен освободиться")
	}

	// Без перерегулирования
	l.Update(refTag, testRef)
	l.Update(uint32(refTag+l.phaseShiftCurrent), testOut)
	if l.phaseShiftCurrent != 50 || l.phaseShiftTarget != 50 {
		t.Errorf("current=%d target=%d, ожидали 50", l.phaseShiftCurrent, l.phaseShiftTarget)
	}
}

func TestShifterStepsDown(t *testing.T) {
	l, _ := newStartedLoop(t)
	l.phaseShiftTarget = -3
	for i := 1; i <= 5; i++ {
		// опорный тег растёт, пока сдвиг уходит вниз: ошибка 0 и без переполнений
		l.Update(uint32(500-l.phaseShiftCurrent), testRef)
		l.Update(500, testOut)
	}
	if l.phaseShiftCurrent != -3 || l.ref.adder != -3 {
		t.Errorf("current=%d adderRef=%d, ожидали -3", l.phaseShiftCurrent, l.ref.adder)
	}
}

func TestDisabledLoopIsNoop(t *testing.T) {
	tg := &recordTagger{}
	l := NewBackupLoop(DefaultParams(), tg, Options{})
	l.Init(testRef, testOut)
	l.Start()
	l.Update(100, testRef)
	l.Update(80, testOut)
	l.Update(3, testRef)
	l.Stop()

	before := *l
	for _, tc := range []struct {
		tag    uint32
		source int
	}{{0, testRef}, {1 << 21, testOut}, {12345, 6}} {
		if st := l.Update(tc.tag, tc.source); st != Locked {
			t.Errorf("Update(%d, %d) на выключенной петле: ожидали Locked, получили %v", tc.tag, tc.source, st)
		}
	}
	if !reflect.DeepEqual(before, *l) {
		t.Errorf("выключенная петля изменилась:\nдо    %+v\nпосле %+v", before.Status(), l.Status())
	}
}

func TestNeverStartedLoopReportsLocked(t *testing.T) {
	l := NewBackupLoop(DefaultParams(), nil, Options{})
	l.Init(testRef, testOut)
	if st := l.Update(1, testRef); st != Locked {
		t.Errorf("ожидали Locked, получили %v", st)
	}
}

func TestLockWindowMasking(t *testing.T) {
	ld := &LockDetector{}
	ld.locked = true
	tg := &recordTagger{}
	l := NewBackupLoop(DefaultParams(), tg, Options{MaskLock: ld})
	l.Init(testRef, testOut)
	l.Start()

	// Ошибка 2^14 + 3 после маски становится 3
	l.Update(1<<14+3, testRef)
	l.Update(0, testOut)
	if l.lastErr != 3 {
		t.Errorf("маска: ожидали 3, получили %d", l.lastErr)
	}

	// Без захвата маски нет
	ld.locked = false
	l.Start()
	l.Update(1<<14+3, testRef)
	l.Update(0, testOut)
	if l.lastErr != 1<<14+3 {
		t.Errorf("без захвата: ожидали %d, получили %d", 1<<14+3, l.lastErr)
	}
}

func TestLockDetectorOption(t *testing.T) {
	tg := &recordTagger{}
	l := NewBackupLoop(DefaultParams(), tg, Options{UseLockDetector: true})
	l.Init(testRef, testOut)
	l.Start()

	var st LockState
	for i := 0; i < DefaultLockSamples; i++ {
		l.Update(1000, testRef)
		st = l.Update(1000, testOut)
		if i < DefaultLockSamples-1 && st != Locking {
			t.Fatalf("цикл %d: детектор ещё не набрал выборку, получили %v", i, st)
		}
	}
	if st != Locked {
		t.Errorf("после %d циклов с нулевой ошибкой ожидали Locked, получили %v", DefaultLockSamples, st)
	}
	if l.Status().Samples != DefaultLockSamples {
		t.Errorf("Samples: ожидали %d, получили %d", DefaultLockSamples, l.Status().Samples)
	}
}

func TestMainLoopDrivesDAC(t *testing.T) {
	tg := &recordTagger{}
	dac := &recordDAC{}
	p := DefaultParams()
	l := NewMainLoop(p, tg, dac)
	l.Init(testRef, testOut)
	l.Start()

	want := []taggerCall{{testRef, true}, {testOut, true}}
	if !reflect.DeepEqual(tg.calls, want) {
		t.Errorf("main PLL включает оба тегера: %v", tg.calls)
	}

	l.Update(100, testRef)
	if st := l.Update(100, testOut); st != Locking {
		t.Errorf("детектор не набрал выборку: ожидали Locking, получили %v", st)
	}
	if dac.writes != 1 || dac.index != 0 || dac.value != 65000 {
		t.Errorf("ЦАП: %+v", dac)
	}

	// Без захвата сдвиг не двигается
	l.SetPhaseShift(49)
	l.Update(200, testRef)
	l.Update(200, testOut)
	if l.phaseShiftCurrent != 0 {
		t.Errorf("main PLL двигает фазу только в захвате, current=%d", l.phaseShiftCurrent)
	}
}
