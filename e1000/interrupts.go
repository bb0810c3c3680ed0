package e1000

import "time"

// reportLSC, reportRXT0 etc. set their cause bit unconditionally and then
// re-evaluate whether a host interrupt is warranted (§4.5 "Report
// helpers").

func (d *Device) reportLSC() {
	d.icr |= icrLSC
	d.evaluateInterrupt()
}

func (d *Device) reportRXT0() {
	d.icr |= icrRXT0
	d.evaluateInterrupt()
}

func (d *Device) reportMDAC() {
	d.icr |= icrMDAC
	d.evaluateInterrupt()
}

// reportTXDrainResult reports TXDW+TXQE when any descriptor in the drain
// requested status, or TXQE alone otherwise (§4.3). After a drain the TX
// queue is always empty in this model, so TXQE is always appropriate.
func (d *Device) reportTXDrainResult(anyStatusRequested bool) {
	d.icr |= icrTXQE
	if anyStatusRequested {
		d.icr |= icrTXDW
	}
	d.evaluateInterrupt()
}

// evaluateInterrupt runs the cause/mask/mitigation state machine of §4.5.
// It is the sole path by which the core ever calls host.TriggerInterrupt.
func (d *Device) evaluateInterrupt() {
	if d.icr&d.ims == 0 {
		return
	}

	if !d.mitigateInterrupts || d.itr == 0 {
		d.host.TriggerInterrupt()
		return
	}

	now := d.now()

	if d.mitigation != nil && !d.mitigation.expiration.After(now) {
		// Mitigation expired but the record is still present: treat as
		// if absent, tidying up a racing timer first.
		if d.mitigation.interruptAfter {
			d.host.DeleteTimer()
			d.timerArmed = false
		}
		d.mitigation = nil
	}

	if d.mitigation == nil {
		d.host.TriggerInterrupt()
		d.mitigation = &mitigationRecord{
			expiration:     now.Add(d.itrInterval()),
			interruptAfter: false,
		}
		return
	}

	// Mitigation active and not yet expired: suppress, arming the
	// deferred-fire timer on first suppression of this window.
	if !d.mitigation.interruptAfter {
		d.host.SetTimer(d.mitigation.expiration.Sub(now))
		d.timerArmed = true
		d.mitigation.interruptAfter = true
	}
}

// itrInterval converts the 16-bit ITR register (256 ns units) into a
// time.Duration.
func (d *Device) itrInterval() time.Duration {
	return time.Duration(d.itr) * 256 * time.Nanosecond
}

// TimerElapsed is the callback the host invokes when the one-shot timer it
// was asked to arm fires (§4.5). Preconditions are checked with warnings,
// not failures, since spurious or racing callbacks must be tolerated.
func (d *Device) TimerElapsed() {
	d.timerArmed = false

	if d.mitigation == nil {
		d.log.Warn("e1000: timer_elapsed with no mitigation record")
		return
	}
	if !d.mitigation.interruptAfter {
		d.log.Warn("e1000: timer_elapsed with interrupt_after=false")
	}
	if d.mitigation.expiration.After(d.now()) {
		d.log.Warn("e1000: timer_elapsed before mitigation window expiration")
	}

	d.mitigation = nil
	d.evaluateInterrupt()
}
