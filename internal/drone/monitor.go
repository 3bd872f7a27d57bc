package drone

import "time"

// ArmMonitor starts the periodic housekeeping queries. Every interval
// the monitor sends a battery query and a clock query without awaiting
// their replies individually; the replies flow back through the normal
// datagram classification path. Arming twice is a no-op.
func (l *Link) ArmMonitor(interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.monitor != nil || l.closed {
		return
	}

	stop := make(chan struct{})
	l.monitor = stop

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.sendRaw("battery?")
				l.sendRaw("time?")
			case <-stop:
				return
			}
		}
	}()

	l.log.Info().Dur("interval", interval).Msg("Telemetry monitor armed")
}

// DisarmMonitor stops the housekeeping queries. Disarming an unarmed
// monitor is a no-op.
func (l *Link) DisarmMonitor() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.monitor == nil {
		return
	}
	close(l.monitor)
	l.monitor = nil

	l.log.Info().Msg("Telemetry monitor disarmed")
}

// sendRaw fires a datagram without arming a reply handler. Used by the
// monitor, whose replies are telemetry-shaped and classified as such.
func (l *Link) sendRaw(cmd string) {
	if _, err := l.conn.Write([]byte(cmd)); err != nil {
		l.log.Error().Err(err).Str("command", cmd).Msg("Monitor send failed")
	}
}
