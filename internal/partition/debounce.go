package partition

import (
	"log/slog"
	"sync"
	"time"
)

// configSaveDebouncer coalesces scheduleSaveConfigs calls: a trigger while
// a save is pending restarts its timer, so one save covers them all; a
// trigger while a save is in flight only marks a rerun, and once that save
// completes exactly one new save is scheduled.
type configSaveDebouncer struct {
	mu        sync.Mutex
	window    time.Duration
	timer     *time.Timer
	running   bool
	rerun     bool
	log       *slog.Logger
	saveFn    func() error
}

func newConfigSaveDebouncer(window time.Duration, saveFn func() error, log *slog.Logger) *configSaveDebouncer {
	return &configSaveDebouncer{window: window, saveFn: saveFn, log: log}
}

// Schedule requests a config save within window. Concurrent calls while a
// timer is pending or a save is in flight coalesce onto the same outcome.
func (d *configSaveDebouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		d.rerun = true
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *configSaveDebouncer) fire() {
	d.mu.Lock()
	d.running = true
	d.timer = nil
	d.mu.Unlock()

	err := d.saveFn()
	if err != nil && d.log != nil {
		d.log.Warn("debounced config save failed", slog.Any("error", err))
	}

	d.mu.Lock()
	d.running = false
	again := d.rerun
	d.rerun = false
	d.mu.Unlock()

	if again {
		d.Schedule()
	}
}
