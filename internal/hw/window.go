package hw

// EnableTagger включает/выключает тегер канала (spll.Tagger).
// Каналы с номером >= nChanRef — выходные (OCER).
func (w *Window) EnableTagger(channel int, on bool) {
	w.enableTagger(channel, on)
}

// SetDAC пишет слово в ЦАП (spll.DAC)
func (w *Window) SetDAC(index int, value int32) {
	w.setDAC(index, value)
}

// PopTag забирает слово из FIFO тегов; ok == false — FIFO пуста
func (w *Window) PopTag() (word uint32, ok bool) {
	return w.popTag()
}
