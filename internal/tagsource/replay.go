package tagsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Replay — теги из текстовой записи: строка "<канал> <тег>", '#' — комментарий.
// Используется для отладки петель без платы.
type Replay struct {
	name     string
	tagBits  uint
	r        io.Reader
	c        io.Closer
	interval time.Duration
}

// OpenReplay открывает файл записи; interval — пауза между тегами (0 — без пауз).
// Теги шире tagBits считаются ошибкой записи.
func OpenReplay(path string, interval time.Duration, tagBits uint) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return &Replay{name: "replay:" + path, tagBits: tagBits, r: f, c: f, interval: interval}, nil
}

// NewReplay — запись из произвольного потока
func NewReplay(name string, r io.Reader, interval time.Duration, tagBits uint) *Replay {
	return &Replay{name: "replay:" + name, tagBits: tagBits, r: r, interval: interval}
}

// Name возвращает имя источника
func (r *Replay) Name() string {
	return r.name
}

// Protocol возвращает протокол
func (r *Replay) Protocol() string {
	return "replay"
}

// Run отдаёт теги по порядку; по концу записи возвращает io.EOF
func (r *Replay) Run(ctx context.Context, out chan<- Tag) error {
	var tick <-chan time.Time
	if r.interval > 0 {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		tick = t.C
	}
	sc := bufio.NewScanner(r.r)
	line := 0
	for sc.Scan() {
		line++
		t, ok, err := ParseLine(sc.Text())
		if err != nil {
			return fmt.Errorf("%s:%d: %w", r.name, line, err)
		}
		if !ok {
			continue
		}
		if uint64(t.Value) >= uint64(1)<<r.tagBits {
			return fmt.Errorf("%s:%d: tag %#x wider than %d bits", r.name, line, t.Value, r.tagBits)
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		if err := send(ctx, out, t); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	return io.EOF
}

// ParseLine разбирает строку записи; ok == false — пустая строка или комментарий
func ParseLine(s string) (t Tag, ok bool, err error) {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Tag{}, false, nil
	}
	if len(fields) != 2 {
		return Tag{}, false, fmt.Errorf("want \"<channel> <tag>\", got %q", s)
	}
	ch, err := strconv.Atoi(fields[0])
	if err != nil || ch < 0 {
		return Tag{}, false, fmt.Errorf("bad channel %q", fields[0])
	}
	v, err := strconv.ParseUint(fields[1], 0, 32)
	if err != nil {
		return Tag{}, false, fmt.Errorf("bad tag %q", fields[1])
	}
	return Tag{Channel: ch, Value: uint32(v)}, true, nil
}

// Close закрывает файл
func (r *Replay) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
