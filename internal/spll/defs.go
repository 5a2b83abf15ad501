// Package spll — ядро SoftPLL: петли слежения за фазой по DDMTD-тегам.
//
// Backup-петля повторяет внешнее поведение основной петли (статус захвата,
// уставка сдвига фазы) по вторичному потоку тегов резервного опорного
// канала, чтобы при переключении на резерв протокол верхнего уровня не
// увидел разрыва. Все константы платы передаются явно через Params.
package spll

import (
	"errors"
	"fmt"
)

// Значения по умолчанию (spll_defs.h, должны совпадать с generics HDL wr_softpll_ng)
const (
	DefaultClockFreq  = 62500000 // частота опорного клока, Гц
	DefaultTagBits    = 22       // ширина тегов DDMTD
	DefaultHPLLN      = 14       // делитель helper PLL: смещение частоты 2^-N
	DefaultPIFracBits = 12       // дробные биты коэффициентов PI
	DefaultDACBits    = 16
	MaxChanRef        = 7
	MaxChanOut        = 1
)

// TagWraparound — константа ребазирования аккумуляторов (MPLL_TAG_WRAPAROUND).
// Не зависит от TagBits; много больше любого приращения за цикл.
const TagWraparound = 100000000

// ErrParams — недопустимые параметры платы
var ErrParams = errors.New("spll: invalid params")

// Params — неизменяемые параметры платы/HDL
type Params struct {
	ClockFreq     int64 // Гц
	TagBits       uint
	HPLLN         uint
	PIFracBits    uint
	DACBits       uint
	NChanRef      int // число опорных каналов; выходные каналы идут после них
	NChanOut      int
	DivideDMTDBy2 bool // DDMTD-клоки поделены на 2
}

// DefaultParams возвращает параметры из spll_defs.h
func DefaultParams() Params {
	return Params{
		ClockFreq:  DefaultClockFreq,
		TagBits:    DefaultTagBits,
		HPLLN:      DefaultHPLLN,
		PIFracBits: DefaultPIFracBits,
		DACBits:    DefaultDACBits,
		NChanRef:   1,
		NChanOut:   1,
	}
}

// Validate проверяет согласованность параметров
func (p Params) Validate() error {
	switch {
	case p.ClockFreq <= 0 || p.ClockFreq > 1e12:
		return fmt.Errorf("%w: clock_freq %d", ErrParams, p.ClockFreq)
	case p.TagBits == 0 || p.TagBits > 30:
		return fmt.Errorf("%w: tag_bits %d", ErrParams, p.TagBits)
	case p.HPLLN == 0 || p.HPLLN > p.TagBits:
		return fmt.Errorf("%w: hpll_n %d", ErrParams, p.HPLLN)
	case p.DACBits == 0 || p.DACBits > 31:
		return fmt.Errorf("%w: dac_bits %d", ErrParams, p.DACBits)
	case p.NChanRef < 1 || p.NChanRef > MaxChanRef:
		return fmt.Errorf("%w: n_chan_ref %d", ErrParams, p.NChanRef)
	case p.NChanOut < 1 || p.NChanOut > MaxChanOut:
		return fmt.Errorf("%w: n_chan_out %d", ErrParams, p.NChanOut)
	}
	return nil
}

// ClockPeriodPs — период опорного клока в пикосекундах (16000 для 62.5 МГц)
func (p Params) ClockPeriodPs() int64 {
	return 1000000000000 / p.ClockFreq
}

// TagRange — 2^TagBits, величина одного переполнения тега
func (p Params) TagRange() int64 {
	return int64(1) << p.TagBits
}

// FromPicos переводит сдвиг в пикосекундах в единицы тегов.
//
// Считается по модулю и знак восстанавливается после деления: усечение к
// нулю одинаково для обеих ветвей. Отрицательная ветвь умножает в 32 битах,
// как прошивка, поэтому при |ps| > 2^31/2^HPLLN результат переполняется.
func (p Params) FromPicos(ps int32) int32 {
	period := uint64(p.ClockPeriodPs())
	var units int32
	if ps >= 0 {
		ups := uint64(ps) * (uint64(1) << p.HPLLN)
		units = int32(ups / period)
	} else {
		ups := uint64(int64(-ps * (int32(1) << p.HPLLN)))
		ups /= period
		units = int32(-ups)
	}
	if p.DivideDMTDBy2 {
		units /= 2
	}
	return units
}

// ToPicos — обратное преобразование для отчётов (статус, метрики, логи)
func (p Params) ToPicos(units int64) int64 {
	ps := units * p.ClockPeriodPs() / (int64(1) << p.HPLLN)
	if p.DivideDMTDBy2 {
		ps *= 2
	}
	return ps
}

// maskError оставляет младшие HPLLN бит ошибки с расширением знака от бита HPLLN-1.
// Эвристика: при сдвиге фазы через границу периода один из тегов
// переворачивается раньше другого и ошибка прыгает на 2^HPLLN.
// Правильное решение — порядковые номера тегов.
func (p Params) maskError(err int64) int64 {
	mask := int64(1)<<p.HPLLN - 1
	err &= mask
	if err&(int64(1)<<(p.HPLLN-1)) != 0 {
		err |= ^mask
	}
	return err
}
