package tagsource

import (
	"fmt"
	"time"

	"github.com/shiwa/timecard-mini/spll-backup/internal/spll"
	"github.com/shiwa/timecard-mini/spll-backup/pkg/config"
)

// NewFromConfig создаёт источник тегов по секции feed
func NewFromConfig(c config.FeedConfig, params spll.Params) (Source, error) {
	switch c.Protocol {
	case "serial":
		dev := c.Device
		if dev == "" {
			dev = "/dev/ttyUSB0"
		}
		baud := c.Baud
		if baud == 0 {
			baud = 115200
		}
		s, err := NewSerial(dev, baud, params.TagBits)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mmio":
		if c.BaseAddr == 0 {
			return nil, fmt.Errorf("mmio: base_addr required")
		}
		poll := config.ParseDuration(c.PollInterval, time.Millisecond)
		m, err := NewMMIO(c.Device, c.BaseAddr, params, poll)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "replay":
		if c.File == "" {
			return nil, fmt.Errorf("replay: file required")
		}
		r, err := OpenReplay(c.File, config.ParseDuration(c.Interval, 0), params.TagBits)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, c.Protocol)
	}
}
