// Package servo — регуляторы для петель SoftPLL в фиксированной точке.
package servo

// Controller — регулятор петли: ошибка в единицах тегов → слово ЦАП
type Controller interface {
	Update(x int32) int32
	Reset()
}

// PI — PI регулятор в фиксированной точке (spll_pi_t).
// y = ((integrator*Ki + x*Kp) >> FracBits) + Bias, с ограничением [YMin, YMax].
// При AntiWindup интегратор останавливается, если выход упёрся в границу
// и продолжает от неё удаляться.
type PI struct {
	Kp, Ki     int32
	FracBits   uint
	YMin, YMax int32
	Bias       int32
	AntiWindup bool

	Integrator int64
	X, Y       int32
}

// NewMainPI создаёт PI с коэффициентами main PLL (mpll_init) для ЦАП шириной dacBits
func NewMainPI(fracBits, dacBits uint) *PI {
	pi := &PI{
		Kp:         1100,
		Ki:         30,
		FracBits:   fracBits,
		YMin:       5,
		YMax:       int32(1)<<dacBits - 5,
		Bias:       65000,
		AntiWindup: true,
	}
	pi.Reset()
	return pi
}

// Update возвращает новое управляющее слово
func (pi *PI) Update(x int32) int32 {
	pi.X = x
	iNew := pi.Integrator + int64(x)
	y := int32((iNew*int64(pi.Ki)+int64(x)*int64(pi.Kp))>>pi.FracBits) + pi.Bias

	switch {
	case y < pi.YMin:
		y = pi.YMin
		if !pi.AntiWindup || iNew > pi.Integrator {
			pi.Integrator = iNew
		}
	case y > pi.YMax:
		y = pi.YMax
		if !pi.AntiWindup || iNew < pi.Integrator {
			pi.Integrator = iNew
		}
	default:
		pi.Integrator = iNew
	}
	pi.Y = y
	return y
}

// Reset обнуляет интегратор, выход возвращается к Bias (pi_init)
func (pi *PI) Reset() {
	pi.Integrator = 0
	pi.Y = pi.Bias
}
