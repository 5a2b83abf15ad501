package spll

import (
	"errors"
	"fmt"
)

// ErrChannelRange — id опорного канала вне [0, NChanRef)
var ErrChannelRange = errors.New("spll: channel id out of range")

// Bank — набор backup-петель, индексированный id опорного канала.
// Память выделяется один раз; блокировок нет — вызывающий сериализует доступ.
type Bank struct {
	params Params
	loops  [MaxChanRef]BackupLoop
	used   [MaxChanRef]bool
}

// NewBank создаёт пустой набор; все петли получают общий tagger и opts
func NewBank(params Params, tagger Tagger, opts Options) *Bank {
	b := &Bank{params: params}
	for i := range b.loops {
		b.loops[i] = *NewBackupLoop(params, tagger, opts)
	}
	return b
}

// Init настраивает петлю опорного канала idRef с выходным каналом idOut
func (b *Bank) Init(idRef, idOut int) (*BackupLoop, error) {
	if idRef < 0 || idRef >= b.params.NChanRef || idRef >= len(b.loops) {
		return nil, fmt.Errorf("%w: ref %d (n_chan_ref %d)", ErrChannelRange, idRef, b.params.NChanRef)
	}
	if idOut < b.params.NChanRef || idOut >= b.params.NChanRef+b.params.NChanOut {
		return nil, fmt.Errorf("%w: out %d", ErrChannelRange, idOut)
	}
	l := &b.loops[idRef]
	l.Init(idRef, idOut)
	b.used[idRef] = true
	return l, nil
}

// Loop возвращает петлю канала или nil, если она не настроена
func (b *Bank) Loop(idRef int) *BackupLoop {
	if idRef < 0 || idRef >= len(b.loops) || !b.used[idRef] {
		return nil
	}
	return &b.loops[idRef]
}

// Channels — id настроенных опорных каналов по возрастанию
func (b *Bank) Channels() []int {
	var out []int
	for i, u := range b.used {
		if u {
			out = append(out, i)
		}
	}
	return out
}

// Dispatch передаёт тег всем петлям, которым он адресован: опорный тег —
// своей петле, выходной — всем петлям с этим выходным каналом.
// fn, если задан, вызывается для каждой обновлённой петли.
func (b *Bank) Dispatch(tag uint32, source int, fn func(idRef int, st LockState)) {
	for i := range b.loops {
		if !b.used[i] {
			continue
		}
		l := &b.loops[i]
		if source != l.idRef && source != l.idOut {
			continue
		}
		st := l.Update(tag, source)
		if fn != nil {
			fn(i, st)
		}
	}
}
