package spll

// sample — сырой тег одного потока; ok == false означает «тега нет в этом цикле»
type sample struct {
	v  uint32
	ok bool
}

// stream — аккумулятор одного потока тегов (опорного или выходного).
// adder копит поправки на переполнение, так что adder+tag растёт без ограничения.
type stream struct {
	tag   sample
	tagD  sample
	adder int64
}

// reset возвращает поток в начальное состояние (bpll_start)
func (s *stream) reset() {
	*s = stream{}
}

// accumulate проверяет переполнение: предыдущий тег больше нового — счётчик перевалил через 2^TagBits.
// Свежий тег всегда запоминается как предыдущий.
func (s *stream) accumulate(tagRange int64) {
	if !s.tag.ok {
		return
	}
	if s.tagD.ok && s.tagD.v > s.tag.v {
		s.adder += tagRange
	}
	s.tagD = s.tag
}

// value — развёрнутая фаза потока
func (s *stream) value() int64 {
	return s.adder + int64(s.tag.v)
}

// consume помечает текущий тег использованным
func (s *stream) consume() {
	s.tag = sample{}
}
