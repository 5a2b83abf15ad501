// spll-backupd — резервные петли SoftPLL: следит за фазой резервных опорных
// клоков относительно выходного и готовит переключение при потере основного линка.
//
// Использование:
//
//	spll-backupd -config spll-backupd.yml          — демон с платой по конфигу
//	spll-backupd -device /dev/ttyUSB1              — то же, порт платы из командной строки
//	spll-backupd -config cfg.yml -replay tags.txt  — прогон записанных тегов и выход
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shiwa/timecard-mini/spll-backup/internal/logger"
	"github.com/shiwa/timecard-mini/spll-backup/pkg/backupd"
	"github.com/shiwa/timecard-mini/spll-backup/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию spll-backupd.yml)")
	device := flag.String("device", "", "последовательный порт платы (переопределяет feed.device)")
	replay := flag.String("replay", "", "файл записи тегов вместо платы")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	verbose := flag.Bool("v", false, "трассировка петель")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *device != "" {
		cfg.Feed.Protocol = "serial"
		cfg.Feed.Device = *device
	}
	if *replay != "" {
		cfg.Feed.Protocol = "replay"
		cfg.Feed.File = *replay
		cfg.Tagger.Protocol = "none"
	}

	logger.Verbose = *verbose
	if err := runDaemonWithShutdown(cfg, *quiet); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// loadConfig читает конфиг; без явного пути и без файла по умолчанию — Default()
func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = "spll-backupd.yml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return config.Default(), nil
	}
	return config.Load(path)
}

// runDaemonWithShutdown запускает backupd.RunDaemon с контекстом;
// по SIGINT/SIGTERM контекст отменяется, источник тегов закрывается.
func runDaemonWithShutdown(cfg *config.Config, quiet bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("получен сигнал %v, завершение...", sig)
		cancel()
	}()

	if err := backupd.RunDaemon(ctx, cfg, quiet); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
