// Package backupd — запуск backup-петель SoftPLL: источник тегов, набор петель,
// переключение по линкам и метрики. Используется из cmd/spll-backupd.
package backupd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shiwa/timecard-mini/spll-backup/internal/logger"
	"github.com/shiwa/timecard-mini/spll-backup/internal/metrics"
	"github.com/shiwa/timecard-mini/spll-backup/internal/servo"
	"github.com/shiwa/timecard-mini/spll-backup/internal/spll"
	"github.com/shiwa/timecard-mini/spll-backup/internal/switchover"
	"github.com/shiwa/timecard-mini/spll-backup/internal/tagsource"
	"github.com/shiwa/timecard-mini/spll-backup/pkg/config"
)

// LoopReport — состояние одной backup-петли для статуса и /api/status
type LoopReport struct {
	Name         string  `json:"name"`
	Channel      int     `json:"channel"`
	Enabled      bool    `json:"enabled"`
	Locked       bool    `json:"locked"`
	Busy         bool    `json:"busy"`
	Target       int64   `json:"phase_shift_target"`
	Current      int64   `json:"phase_shift_current"`
	CurrentPs    int64   `json:"phase_shift_current_ps"`
	Error        int64   `json:"error"`
	Cycles       uint64  `json:"cycles"`
	WanderSlope  float64 `json:"wander_slope"`
	TagsRef      uint32  `json:"tags_ref"`
	TagsOut      uint32  `json:"tags_out"`
	ActiveSource bool    `json:"active"`
}

type shiftRequest struct {
	name  string
	ps    int32
	reply chan error
}

// Daemon — владелец набора петель. Петли, контроллер и метрики трогаются
// только из горутины Run.
type Daemon struct {
	cfg     *config.Config
	params  spll.Params
	src     tagsource.Source
	closers []io.Closer
	bank    *spll.Bank
	ctrl    *switchover.Controller
	links   *switchover.LinkMonitor
	metrics *metrics.Metrics

	names  map[int]string
	wander map[int]*servo.LinReg
	cycles map[int]uint64
	state  map[int]spll.LockState

	shifts chan shiftRequest
	report atomic.Pointer[[]LoopReport]
}

// New собирает демон по конфигу; метрики регистрируются в reg (nil — DefaultRegisterer)
func New(cfg *config.Config, reg prometheus.Registerer) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("backupd: nil config")
	}
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	src, err := tagsource.NewFromConfig(cfg.Feed, params)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	d := &Daemon{
		cfg:     cfg,
		params:  params,
		src:     src,
		closers: []io.Closer{src},
		names:   make(map[int]string),
		wander:  make(map[int]*servo.LinReg),
		cycles:  make(map[int]uint64),
		state:   make(map[int]spll.LockState),
		shifts:  make(chan shiftRequest),
	}
	tagger, err := d.openTagger()
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.bank = spll.NewBank(params, tagger, spll.Options{UseLockDetector: cfg.SoftPLL.UseLockDetector})
	d.ctrl, err = switchover.NewController(d.bank, &cfg.Primary, cfg.Backups)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	for _, b := range d.ctrl.Backups() {
		d.names[b.IDRef] = b.Name
		d.wander[b.IDRef] = servo.NewLinReg()
	}
	if ifaces := d.ctrl.Interfaces(); len(ifaces) > 0 {
		d.links = switchover.NewLinkMonitor(ifaces, config.ParseDuration(cfg.LinkPoll, 200*time.Millisecond))
	}
	d.metrics = metrics.New(reg)
	return d, nil
}

// openTagger выбирает, кто включает тегеры: тот же канал связи с платой, что и feed
func (d *Daemon) openTagger() (spll.Tagger, error) {
	proto := d.cfg.TaggerProtocol()
	switch proto {
	case "none":
		return spll.NopTagger{}, nil
	case "serial":
		if s, ok := d.src.(*tagsource.Serial); ok {
			return s.Port(), nil
		}
	case "mmio":
		if m, ok := d.src.(*tagsource.MMIO); ok {
			return m.Window(), nil
		}
	default:
		return nil, fmt.Errorf("tagger: %w: %q", tagsource.ErrUnsupported, proto)
	}
	return nil, fmt.Errorf("tagger %s requires feed protocol %s, got %s", proto, proto, d.cfg.Feed.Protocol)
}

// Run обрабатывает теги и события линков до отмены ctx или конца записи (replay)
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tags := make(chan tagsource.Tag, 64)
	srcErr := make(chan error, 1)
	go func() { srcErr <- d.src.Run(ctx, tags) }()

	linkEvents := make(chan switchover.LinkEvent, 8)
	if d.links != nil {
		go func() { _ = d.links.Run(ctx, linkEvents) }()
	}

	logger.Info("backupd: feed %s, %d backup loop(s), n_chan_ref %d, use_lock_detector %v",
		d.src.Name(), len(d.names), d.params.NChanRef, d.cfg.SoftPLL.UseLockDetector)

	// резервные каналы без интерфейса считаются всегда подключёнными
	d.handleLink(switchover.LinkEvent{Interface: "", Up: true})
	d.publish()

	statusEvery := config.ParseDuration(d.cfg.StatusInterval, 10*time.Second)
	ticker := time.NewTicker(statusEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// источник может держать отображённые регистры: Close только после его выхода
			<-srcErr
			d.publish()
			return ctx.Err()
		case err := <-srcErr:
			d.drain(tags)
			d.publish()
			d.logStatus()
			if errors.Is(err, io.EOF) {
				logger.Info("backupd: %s: end of feed", d.src.Name())
				return nil
			}
			return err
		case t := <-tags:
			d.dispatch(t)
		case ev := <-linkEvents:
			d.handleLink(ev)
		case req := <-d.shifts:
			req.reply <- d.ctrl.SetPhaseShift(req.name, req.ps)
		case <-ticker.C:
			d.observeSwitchover(d.ctrl.Reelect())
			d.publish()
			d.logStatus()
		}
	}
}

// drain дообрабатывает теги, уже прочитанные источником
func (d *Daemon) drain(tags <-chan tagsource.Tag) {
	for {
		select {
		case t := <-tags:
			d.dispatch(t)
		default:
			return
		}
	}
}

func (d *Daemon) dispatch(t tagsource.Tag) {
	d.bank.Dispatch(t.Value, t.Channel, func(idRef int, st spll.LockState) {
		s := d.bank.Loop(idRef).Status()
		if !s.Enabled {
			return
		}
		d.metrics.ObserveTag(idRef, t.Channel)
		if s.Cycles == d.cycles[idRef] {
			return
		}
		// состояние захвата имеет смысл только на завершённом цикле
		d.cycles[idRef] = s.Cycles
		d.state[idRef] = st
		slope := d.wander[idRef].Update(s.LastError)
		d.metrics.ObserveLoop(s, st == spll.Locked, slope)
	})
}

func (d *Daemon) handleLink(ev switchover.LinkEvent) {
	if ev.Interface != "" {
		logger.Info("backupd: link %s up=%v", ev.Interface, ev.Up)
	}
	evs := d.ctrl.HandleLink(ev)
	for _, e := range evs {
		if e.Kind == switchover.KindStart {
			d.wander[e.Channel].Reset()
			d.cycles[e.Channel] = 0
		}
	}
	d.observeSwitchover(evs)
}

func (d *Daemon) observeSwitchover(evs []switchover.Event) {
	for _, e := range evs {
		d.metrics.ObserveSwitchover(e.Kind.String())
	}
}

// SetPhaseShift передаёт новый сдвиг фазы резервного канала в цикл Run
func (d *Daemon) SetPhaseShift(ctx context.Context, name string, ps int32) error {
	req := shiftRequest{name: name, ps: ps, reply: make(chan error, 1)}
	select {
	case d.shifts <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publish строит отчёт по петлям; читать его можно из любой горутины
func (d *Daemon) publish() {
	active := d.ctrl.Active()
	var out []LoopReport
	for _, ch := range d.bank.Channels() {
		s := d.bank.Loop(ch).Status()
		r := LoopReport{
			Name:        d.names[ch],
			Channel:     ch,
			Enabled:     s.Enabled,
			Locked:      d.state[ch] == spll.Locked && s.Enabled,
			Busy:        s.Busy,
			Target:      s.PhaseShiftTarget,
			Current:     s.PhaseShiftCurrent,
			CurrentPs:   d.params.ToPicos(s.PhaseShiftCurrent),
			Error:       s.LastError,
			Cycles:      s.Cycles,
			WanderSlope: d.wander[ch].Slope(),
			TagsRef:     s.TagsRef,
			TagsOut:     s.TagsOut,
		}
		r.ActiveSource = active != nil && !active.Primary && active.IDRef == ch
		d.metrics.ObserveLoop(s, r.Locked, r.WanderSlope)
		out = append(out, r)
	}
	d.report.Store(&out)
}

// Report — последний опубликованный отчёт
func (d *Daemon) Report() []LoopReport {
	if p := d.report.Load(); p != nil {
		return *p
	}
	return nil
}

func (d *Daemon) logStatus() {
	active := "none"
	if a := d.ctrl.Active(); a != nil {
		active = a.Name
	}
	logger.Info("backupd: active reference %s", active)
	for _, r := range d.Report() {
		logger.Info("backupd: [%s ch%d] enabled=%v locked=%v busy=%v current=%d (%d ps) target=%d err=%d wander=%.3f",
			r.Name, r.Channel, r.Enabled, r.Locked, r.Busy, r.Current, r.CurrentPs, r.Target, r.Error, r.WanderSlope)
	}
}

// Close освобождает источник тегов и связанные с ним устройства
func (d *Daemon) Close() error {
	var errs []error
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunDaemon собирает демон и запускает его до отмены ctx.
// При заданном metrics_listen поднимает HTTP с /metrics и /api/status.
func RunDaemon(ctx context.Context, cfg *config.Config, quiet bool) error {
	logger.Quiet = quiet
	reg := prometheus.NewRegistry()
	d, err := New(cfg, reg)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.MetricsListen != "" {
		serveHTTP(ctx, cfg.MetricsListen, reg, d)
	}
	return d.Run(ctx)
}
