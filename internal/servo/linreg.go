package servo

// LinRegWindow — размер окна линейной регрессии
const LinRegWindow = 64

// LinReg — оценка ухода фаз двух клоков: линейная регрессия ошибки по номеру цикла.
// x — позиция цикла в окне (0 — самый старый), y — ошибка в единицах тегов;
// slope — уход в единицах за цикл. Используется для наблюдения, не для управления.
type LinReg struct {
	ys    [LinRegWindow]float64
	n     int
	idx   int // куда пишется следующая точка
	slope float64
}

// NewLinReg создаёт оценщик
func NewLinReg() *LinReg {
	return &LinReg{}
}

// Update добавляет ошибку очередного цикла и возвращает текущий наклон.
// Пока в окне меньше 4 точек, наклон 0.
func (l *LinReg) Update(err int64) float64 {
	l.ys[l.idx] = float64(err)
	l.idx = (l.idx + 1) % LinRegWindow
	if l.n < LinRegWindow {
		l.n++
	}
	if l.n < 4 {
		return 0
	}
	oldest := (l.idx - l.n + LinRegWindow) % LinRegWindow
	// y центрируется по первой точке окна, x ограничен размером окна
	y0 := l.ys[oldest]
	n := float64(l.n)
	var sumX, sumY, sumXY, sumX2 float64
	for i := 0; i < l.n; i++ {
		x := float64(i)
		y := l.ys[(oldest+i)%LinRegWindow] - y0
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return l.slope
	}
	l.slope = (n*sumXY - sumX*sumY) / denom
	return l.slope
}

// Slope возвращает последний вычисленный наклон
func (l *LinReg) Slope() float64 {
	return l.slope
}

// Reset сбрасывает окно
func (l *LinReg) Reset() {
	*l = LinReg{}
}
