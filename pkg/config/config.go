// Package config — конфигурация spll-backupd (YAML).
// Неизвестные ключи игнорируются; пустые поля получают значения по умолчанию.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shiwa/timecard-mini/spll-backup/internal/spll"
)

// Config — конфигурация демона backup-петель
type Config struct {
	SoftPLL SoftPLLConfig  `yaml:"softpll"`
	Feed    FeedConfig     `yaml:"feed"`
	Tagger  TaggerConfig   `yaml:"tagger"`
	Primary PrimaryConfig  `yaml:"primary"`
	Backups []BackupConfig `yaml:"backups"`

	LinkPoll       string `yaml:"link_poll"`       // период опроса линков, например "200ms"
	StatusInterval string `yaml:"status_interval"` // период вывода статуса
	MetricsListen  string `yaml:"metrics_listen"`  // адрес /metrics, пусто — не поднимать
}

// SoftPLLConfig — параметры платы (spll_defs.h); должны совпадать с HDL
type SoftPLLConfig struct {
	ClockFreq       int64 `yaml:"clock_freq"`
	TagBits         uint  `yaml:"tag_bits"`
	HPLLN           uint  `yaml:"hpll_n"`
	PIFracBits      uint  `yaml:"pi_fracbits"`
	DACBits         uint  `yaml:"dac_bits"`
	NChanRef        int   `yaml:"n_chan_ref"`
	NChanOut        int   `yaml:"n_chan_out"`
	DivideDMTDBy2   bool  `yaml:"divide_dmtd_by_2"`
	UseLockDetector bool  `yaml:"use_lock_detector"` // по умолчанию детектор захвата не влияет на статус
}

// FeedConfig — откуда берутся теги
type FeedConfig struct {
	Protocol     string `yaml:"protocol"` // serial, mmio, replay
	Device       string `yaml:"device"`   // serial: /dev/ttyUSB0; mmio: /dev/mem
	Baud         int    `yaml:"baud"`
	BaseAddr     int64  `yaml:"base_addr"` // mmio: физический адрес SoftPLL
	PollInterval string `yaml:"poll_interval"`
	File         string `yaml:"file"`     // replay
	Interval     string `yaml:"interval"` // replay: пауза между тегами
}

// TaggerConfig — кто включает тегеры
type TaggerConfig struct {
	Protocol string `yaml:"protocol"` // serial, mmio, none; пусто — как feed
}

// PrimaryConfig — активный опорный порт (его тегами управляет main PLL)
type PrimaryConfig struct {
	Interface string `yaml:"interface"`
	IDRef     int    `yaml:"id_ref"`
}

// BackupConfig — один резервный порт
type BackupConfig struct {
	Name         string `yaml:"name"`
	Interface    string `yaml:"interface"`
	IDRef        int    `yaml:"id_ref"`
	IDOut        int    `yaml:"id_out"`
	PhaseShiftPs int32  `yaml:"phase_shift_ps"`
	Disable      bool   `yaml:"disable"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	return &Config{
		SoftPLL: SoftPLLConfig{
			ClockFreq:  spll.DefaultClockFreq,
			TagBits:    spll.DefaultTagBits,
			HPLLN:      spll.DefaultHPLLN,
			PIFracBits: spll.DefaultPIFracBits,
			DACBits:    spll.DefaultDACBits,
			NChanRef:   1,
			NChanOut:   1,
		},
		Feed: FeedConfig{
			Protocol:     "serial",
			Device:       "/dev/ttyUSB0",
			Baud:         115200,
			PollInterval: "1ms",
		},
		LinkPoll:       "200ms",
		StatusInterval: "10s",
	}
}

// Load читает конфиг из YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML и подставляет значения по умолчанию
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&c)
	return &c, nil
}

// Params переводит секцию softpll в параметры ядра
func (c *Config) Params() (spll.Params, error) {
	p := spll.Params{
		ClockFreq:     c.SoftPLL.ClockFreq,
		TagBits:       c.SoftPLL.TagBits,
		HPLLN:         c.SoftPLL.HPLLN,
		PIFracBits:    c.SoftPLL.PIFracBits,
		DACBits:       c.SoftPLL.DACBits,
		NChanRef:      c.SoftPLL.NChanRef,
		NChanOut:      c.SoftPLL.NChanOut,
		DivideDMTDBy2: c.SoftPLL.DivideDMTDBy2,
	}
	if err := p.Validate(); err != nil {
		return spll.Params{}, fmt.Errorf("softpll: %w", err)
	}
	return p, nil
}

// TaggerProtocol — протокол тегера с учётом умолчания (как у feed, кроме replay)
func (c *Config) TaggerProtocol() string {
	if c.Tagger.Protocol != "" {
		return c.Tagger.Protocol
	}
	if c.Feed.Protocol == "replay" {
		return "none"
	}
	return c.Feed.Protocol
}

// ParseDuration парсит длительность из конфига; пусто или ошибка — defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func applyDefaults(c *Config) {
	d := Default()
	sp := &c.SoftPLL
	if sp.ClockFreq == 0 {
		sp.ClockFreq = d.SoftPLL.ClockFreq
	}
	if sp.TagBits == 0 {
		sp.TagBits = d.SoftPLL.TagBits
	}
	if sp.HPLLN == 0 {
		sp.HPLLN = d.SoftPLL.HPLLN
	}
	if sp.PIFracBits == 0 {
		sp.PIFracBits = d.SoftPLL.PIFracBits
	}
	if sp.DACBits == 0 {
		sp.DACBits = d.SoftPLL.DACBits
	}
	if sp.NChanOut == 0 {
		sp.NChanOut = d.SoftPLL.NChanOut
	}
	// n_chan_ref по умолчанию — столько, чтобы вместить все упомянутые опорные каналы
	if sp.NChanRef == 0 {
		sp.NChanRef = c.Primary.IDRef + 1
		for _, b := range c.Backups {
			if b.IDRef+1 > sp.NChanRef {
				sp.NChanRef = b.IDRef + 1
			}
		}
	}
	if c.Feed.Protocol == "" {
		c.Feed.Protocol = d.Feed.Protocol
	}
	if c.Feed.Protocol == "serial" {
		if c.Feed.Device == "" {
			c.Feed.Device = d.Feed.Device
		}
		if c.Feed.Baud == 0 {
			c.Feed.Baud = d.Feed.Baud
		}
	}
	if c.Feed.PollInterval == "" {
		c.Feed.PollInterval = d.Feed.PollInterval
	}
	if c.LinkPoll == "" {
		c.LinkPoll = d.LinkPoll
	}
	if c.StatusInterval == "" {
		c.StatusInterval = d.StatusInterval
	}
	// выходной канал по умолчанию — первый после опорных
	for i := range c.Backups {
		b := &c.Backups[i]
		if b.IDOut == 0 {
			b.IDOut = sp.NChanRef
		}
		if b.Name == "" {
			b.Name = fmt.Sprintf("backup%d", b.IDRef)
		}
	}
}
