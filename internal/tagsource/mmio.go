package tagsource

import (
	"context"
	"fmt"
	"time"

	"github.com/shiwa/timecard-mini/spll-backup/internal/hw"
	"github.com/shiwa/timecard-mini/spll-backup/internal/logger"
	"github.com/shiwa/timecard-mini/spll-backup/internal/spll"
)

// tagPopper — FIFO тегов (hw.Window)
type tagPopper interface {
	PopTag() (uint32, bool)
}

// MMIO — FIFO тегов SoftPLL через окно регистров /dev/mem.
// Опрос по таймеру: за тик FIFO вычерпывается целиком.
type MMIO struct {
	win     *hw.Window
	fifo    tagPopper
	name    string
	tagBits uint
	poll    time.Duration
}

// NewMMIO отображает регистры по адресу base
func NewMMIO(devMem string, base int64, params spll.Params, poll time.Duration) (*MMIO, error) {
	w, err := hw.Open(devMem, base, params.NChanRef)
	if err != nil {
		return nil, err
	}
	return &MMIO{
		win:     w,
		fifo:    w,
		name:    fmt.Sprintf("mmio:%#x", base),
		tagBits: params.TagBits,
		poll:    poll,
	}, nil
}

// Name возвращает имя источника
func (m *MMIO) Name() string {
	return m.name
}

// Protocol возвращает протокол
func (m *MMIO) Protocol() string {
	return "mmio"
}

// Window — окно регистров; через него же включаются тегеры и пишется ЦАП
func (m *MMIO) Window() *hw.Window {
	return m.win
}

// Run опрашивает FIFO до отмены ctx
func (m *MMIO) Run(ctx context.Context, out chan<- Tag) error {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		if err := m.drain(ctx, out); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *MMIO) drain(ctx context.Context, out chan<- Tag) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		w, ok := m.fifo.PopTag()
		if !ok {
			return nil
		}
		tw := hw.DecodeTagWord(w, m.tagBits)
		if tw.Disc {
			logger.Debug("%s: tag FIFO overflow on channel %d", m.name, tw.Channel)
			continue
		}
		if err := send(ctx, out, Tag{Channel: tw.Channel, Value: tw.Value}); err != nil {
			return err
		}
	}
}

// Close снимает отображение
func (m *MMIO) Close() error {
	if m.win == nil {
		return nil
	}
	return m.win.Close()
}
