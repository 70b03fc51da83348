package hand

import (
	"log/slog"
	"time"
)

// poller periodically asks the controller for all-channel feedback. The
// hardware only replies when spoken to, so this is what turns the feedback
// caches into continuous telemetry.
//
// The poller borrows the manager rather than owning it; the manager stops
// and joins the poller before tearing itself down. Neither stop nor join
// may be called from the poll goroutine.
type poller struct {
	mgr    *Manager
	period time.Duration
	log    *slog.Logger
	stopCh chan struct{}
	done   chan struct{}
}

func newPoller(mgr *Manager, period time.Duration, log *slog.Logger) *poller {
	return &poller{
		mgr:    mgr,
		period: period,
		log:    log,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (p *poller) start() {
	go p.run()
}

// stop flags the poller down and wakes it.
func (p *poller) stop() {
	close(p.stopCh)
}

// join blocks until the poll goroutine has terminated.
func (p *poller) join() {
	<-p.done
}

func (p *poller) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if !p.mgr.IsConnected() {
				p.log.Warn("feedback poll while hand is not connected")
				continue
			}
			if err := p.mgr.ctrl.RequestFeedbackAll(); err != nil {
				p.log.Warn("feedback poll failed", "err", err)
			}
		}
	}
}
