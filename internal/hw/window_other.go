//go:build !linux

package hw

// Window — заглушка на не-Linux
type Window struct {
	bank
}

// Open — на не-Linux отображение /dev/mem недоступно
func Open(devMem string, base int64, nChanRef int) (*Window, error) {
	_, _, _ = devMem, base, nChanRef
	return nil, ErrUnsupported
}

// Close — заглушка
func (w *Window) Close() error {
	return nil
}
