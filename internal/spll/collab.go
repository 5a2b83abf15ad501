package spll

// Tagger — включение/выключение тегирования канала в HDL (spll_enable_tagger).
// Запрос без ответа: результат не проверяется.
type Tagger interface {
	EnableTagger(channel int, on bool)
}

// DAC — запись управляющего слова в ЦАП генератора
type DAC interface {
	SetDAC(index int, value int32)
}

// NopTagger — заглушка, когда тегированием управляет кто-то другой
type NopTagger struct{}

// EnableTagger ничего не делает
func (NopTagger) EnableTagger(int, bool) {}

// NopDAC — заглушка ЦАП
type NopDAC struct{}

// SetDAC ничего не делает
func (NopDAC) SetDAC(int, int32) {}
