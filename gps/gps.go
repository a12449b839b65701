// Package gps drives a MediaTek GPS module over a hal.Transport using the
// PMTK command protocol, including the LOCUS flash logger. Everything here
// is written against the hal contracts only, so the same driver runs on the
// board UART and on the simulated transport.
package gps

import (
	"tracklog-go/errcode"
	"tracklog-go/hal"
	"tracklog-go/x/conv"
)

// Timing and retry budgets, in microsecond ticks. These come from observed
// module behaviour: replies are slow and the line is noisy until NMEA
// output is disabled, so retrying on protocol noise is expected.
const (
	maxCmdTries       = 5
	maxCmdTriesNMEAOn = 20

	readTimeout  = hal.Ticks(500_000)
	writeTimeout = hal.Ticks(50_000)
	retryDelay   = hal.Ticks(80_000)
	pollStep     = hal.Ticks(100)

	maxReadErrorsOnBoot   = 50
	maxSpuriousBeforeBoot = 1000
	// The module emits a burst of undocumented sentences right after the
	// documented boot indicators; give the ready probe extra tries.
	maxSpuriousAfterBoot = 20
	readyProbeDelay      = hal.Ticks(50_000)

	maxSentence = 256
	// Basic mode: up to 12 points per PMTKLOX data packet.
	maxPointsPerDataPacket = 12
)

// Driver owns the module's half of a transport. It is not safe for
// concurrent use; the control loop is its only caller.
type Driver struct {
	port    hal.Transport
	clock   hal.Clock
	nmeaOff bool
	pending []byte // received but not yet consumed
}

// New returns a driver. Pass nmeaAlreadyOff when the module is known to
// have its periodic NMEA output disabled (saves one command on first use).
func New(port hal.Transport, clock hal.Clock, nmeaAlreadyOff bool) *Driver {
	return &Driver{port: port, clock: clock, nmeaOff: nmeaAlreadyOff}
}

// -----------------------------------------------------------------------------
// Logger operations
// -----------------------------------------------------------------------------

// ConfigureLogInterval sets the LOCUS interval-mode period in seconds.
func (d *Driver) ConfigureLogInterval(secs uint32) error {
	// PMTK_LOCUS_CONFIG
	var buf [10]byte
	return d.sendCmd("187", "1", string(conv.Utoa(buf[:], uint64(secs))))
}

// EraseLogs clears the LOCUS flash.
func (d *Driver) EraseLogs() error {
	// PMTK_LOCUS_ERASE_FLASH
	println("Info: erasing logs")
	return d.sendCmd("184", "1")
}

// StartLogging turns the LOCUS logger on.
func (d *Driver) StartLogging() error {
	// PMTK_LOCUS_STOP_LOGGER, 0 = start
	println("Info: starting logging")
	return d.sendCmd("185", "0")
}

// StopLogging turns the LOCUS logger off.
func (d *Driver) StopLogging() error {
	// PMTK_LOCUS_STOP_LOGGER, 1 = stop
	println("Info: stopping logging")
	return d.sendCmd("185", "1")
}

// LoggerStatus queries the LOCUS logger state.
func (d *Driver) LoggerStatus() (LoggerStatus, error) {
	// PMTK_LOCUS_QUERY_STATUS; interval mode is bit 3 of the mode field.
	fields, err := d.sendCmdForReply("183", nil, "PMTKLOG", 10)
	if err != nil {
		return LoggerStatus{}, err
	}

	interval, err := IntegerField(fields[4])
	if err != nil {
		return LoggerStatus{}, err
	}
	// LOCUS status: 0 = logging, 1 = stopped.
	on, err := BoolField(fields[7], "0", "1")
	if err != nil {
		return LoggerStatus{}, err
	}
	count, err := IntegerField(fields[8])
	if err != nil {
		return LoggerStatus{}, err
	}
	percent, err := PercentField(fields[9])
	if err != nil {
		return LoggerStatus{}, err
	}

	return LoggerStatus{
		Interval:    interval,
		On:          on,
		RecordCount: count,
		PercentFull: percent,
	}, nil
}

// ReadLogs dumps the whole LOCUS flash. onPoint is called per record with a
// point-count estimate derived from the announced packet count. No retries:
// a full dump is expensive and the caller decides whether to rerun it.
func (d *Driver) ReadLogs(onPoint func(estimate int, p LoggedPoint)) error {
	println("Info: reading logs")

	if err := d.EnsureNMEAOff(); err != nil {
		return err
	}

	// PMTK_Q_LOCUS_DATA, 0 = full dump.
	if err := d.writeCmd("PMTK622", "0"); err != nil {
		return err
	}

	start, err := d.readReply("PMTKLOX", 2)
	if err != nil {
		return err
	}
	if start[0] != "0" {
		println("Error: expected LOCUS start packet")
		return errcode.Protocol
	}
	packetCount, err := IntegerField(start[1])
	if err != nil {
		return err
	}
	estimate := int(packetCount) * maxPointsPerDataPacket

	for n := uint32(0); n < packetCount; n++ {
		data, err := d.readReply("PMTKLOX", 2)
		if err != nil {
			return err
		}
		if data[0] != "1" {
			println("Error: expected LOCUS data packet")
			return errcode.Protocol
		}
		seq, err := IntegerField(data[1])
		if err != nil {
			return err
		}
		if seq != n {
			println("Error: LOCUS data packet out of sequence")
			return errcode.Protocol
		}
		if err := ParsePointFields(data[2:], func(p LoggedPoint) {
			onPoint(estimate, p)
		}); err != nil {
			return err
		}
	}

	end, err := d.readReply("PMTKLOX", 2)
	if err != nil {
		return err
	}
	if end[0] != "2" {
		println("Error: expected LOCUS end packet")
		return errcode.Protocol
	}
	return nil
}

// -----------------------------------------------------------------------------
// Restarts and readiness
// -----------------------------------------------------------------------------

// HotRestart restarts keeping all saved data.
func (d *Driver) HotRestart() error { return d.sendRebootCmd("PMTK101") }

// WarmRestart restarts keeping everything but ephemeris.
func (d *Driver) WarmRestart() error { return d.sendRebootCmd("PMTK102") }

// ColdRestart restarts keeping everything but time, position, almanacs and
// ephemeris.
func (d *Driver) ColdRestart() error { return d.sendRebootCmd("PMTK103") }

// FactoryReset is a cold restart that additionally clears configuration.
func (d *Driver) FactoryReset() error { return d.sendRebootCmd("PMTK104") }

// EnsureReady makes the module answer commands: NMEA output off, then a
// cheap version probe until it acks.
func (d *Driver) EnsureReady() error {
	if err := d.EnsureNMEAOff(); err != nil {
		return err
	}
	return d.checkReady(maxCmdTries)
}

func (d *Driver) sendRebootCmd(name string) error {
	println("Info: rebooting gps with", name)
	_, err := d.withRetries(maxCmdTries, func() error {
		d.nmeaOff = false
		if err := d.writeCmd(name); err != nil {
			return err
		}
		if err := d.waitForBoot(); err != nil {
			return err
		}
		return d.EnsureNMEAOff()
	})
	if err != nil {
		println("Error: reboot failed:", err.Error())
	}
	return err
}

func (d *Driver) waitForBoot() error {
	// After a restart the module emits both "$PMTK010,001*2E" and
	// "$PMTK011,MTKGPS*08" once boot completes, interleaved with
	// undocumented traffic.
	var seenSysMsg, seenMTKGPS bool
	readErrors, spurious := 0, 0
	for !(seenSysMsg && seenMTKGPS) {
		if readErrors > maxReadErrorsOnBoot || spurious > maxSpuriousBeforeBoot {
			return errcode.BootFailed
		}
		name, fields, err := d.readCmd()
		if err != nil {
			readErrors++
			continue
		}
		switch {
		case name == "PMTK010" && len(fields) == 1 && fields[0] == "001":
			seenSysMsg = true
		case name == "PMTK011" && len(fields) == 1 && fields[0] == "MTKGPS":
			seenMTKGPS = true
		default:
			spurious++
		}
	}
	println("Info: gps booted")

	hal.Sleep(d.clock, readyProbeDelay)
	d.FlushRx()

	// Retrying the probe here also chews through the undocumented
	// post-boot messages, so later replies are clean.
	return d.checkReady(maxSpuriousAfterBoot)
}

// checkReady sends a cheap version query and waits for the reply. This is
// relatively expensive; for cheap commands we just retry the command itself.
func (d *Driver) checkReady(maxTries int) error {
	_, err := d.withRetries(maxTries, func() error {
		// PMTK_Q_RELEASE
		if err := d.writeCmd("PMTK605"); err != nil {
			return err
		}
		// PMTK_DT_RELEASE
		fields, err := d.readReply("PMTK705", 2)
		if err != nil {
			return err
		}
		println("Info: gps ready, firmware", fields[0], "build", fields[1])
		return nil
	})
	return err
}

// -----------------------------------------------------------------------------
// Command plumbing
// -----------------------------------------------------------------------------

// EnsureNMEAOff disables the periodic NMEA sentences once per session.
// Until it succeeds the line is noisy, so it gets a bigger retry budget.
func (d *Driver) EnsureNMEAOff() error {
	if d.nmeaOff {
		return nil
	}
	// PMTK_API_SET_NMEA_OUTPUT, all sentence types zeroed.
	fields := []string{
		"0", "0", "0", "0", "0", "0", "0", "0", "0", "0",
		"0", "0", "0", "0", "0", "0", "0", "0", "0",
	}
	if err := d.sendCmdRaw("314", fields, maxCmdTriesNMEAOn); err != nil {
		return err
	}
	d.nmeaOff = true
	return nil
}

// sendCmd writes PMTK<num> and waits for its ack.
func (d *Driver) sendCmd(num string, fields ...string) error {
	if err := d.EnsureNMEAOff(); err != nil {
		return err
	}
	return d.sendCmdRaw(num, fields, maxCmdTries)
}

func (d *Driver) sendCmdRaw(num string, fields []string, maxTries int) error {
	_, err := d.withRetries(maxTries, func() error {
		if err := d.writeCmd("PMTK"+num, fields...); err != nil {
			return err
		}
		return d.readAck(num)
	})
	return err
}

// sendCmdForReply writes PMTK<num> and waits for a named reply instead of a
// plain ack.
func (d *Driver) sendCmdForReply(num string, fields []string, replyName string, minFields int) ([]string, error) {
	if err := d.EnsureNMEAOff(); err != nil {
		return nil, err
	}
	var reply []string
	_, err := d.withRetries(maxCmdTries, func() error {
		if err := d.writeCmd("PMTK"+num, fields...); err != nil {
			return err
		}
		got, err := d.readReply(replyName, minFields)
		if err != nil {
			return err
		}
		reply = got
		return nil
	})
	return reply, err
}

// readAck consumes a PMTK001 ack for command num.
func (d *Driver) readAck(num string) error {
	fields, err := d.readReply("PMTK001", 2)
	if err != nil {
		return err
	}
	if fields[0] != num {
		// Ack for something else; the retry loop handles it.
		return errcode.Protocol
	}
	switch fields[1] {
	case "0":
		return errcode.InvalidCommand
	case "1":
		return errcode.UnsupportedCommand
	case "2":
		return errcode.ActionFailed
	case "3":
		return nil
	}
	return errcode.Protocol
}

// readReply reads the next sentence and requires its name and a minimum
// field count. A different name is common when the module is mid-burst, so
// it is only a retryable protocol error.
func (d *Driver) readReply(name string, minFields int) ([]string, error) {
	gotName, fields, err := d.readCmd()
	if err != nil {
		return nil, err
	}
	if gotName != name {
		return nil, errcode.Protocol
	}
	if len(fields) < minFields {
		println("Error: short reply", gotName)
		return nil, errcode.Protocol
	}
	return fields, nil
}

func (d *Driver) writeCmd(name string, fields ...string) error {
	cmd := Serialize(nil, name, fields...)
	deadline := d.clock.Now() + writeTimeout
	for {
		err := d.port.Send(cmd)
		if err == nil {
			return nil
		}
		if errcode.Of(err) != errcode.Busy {
			return err
		}
		if d.clock.Now() >= deadline {
			return errcode.WriteTimeout
		}
		hal.Sleep(d.clock, pollStep)
	}
}

func (d *Driver) readCmd() (string, []string, error) {
	raw, err := d.readSentence()
	if err != nil {
		return "", nil, err
	}
	return Parse(raw)
}

// readSentence accumulates bytes until a CRLF-terminated sentence is
// complete, resyncing on '$' and timing out against the clock.
func (d *Driver) readSentence() ([]byte, error) {
	deadline := d.clock.Now() + readTimeout
	var cmd []byte
	lastCR := false
	for {
		if len(d.pending) == 0 {
			var rb [64]byte
			n, err := d.port.TryRecv(rb[:])
			if err != nil {
				return nil, err
			}
			if n == 0 {
				if d.clock.Now() >= deadline {
					return nil, errcode.ReadTimeout
				}
				hal.Sleep(d.clock, pollStep)
				continue
			}
			d.pending = append(d.pending, rb[:n]...)
		}

		b := d.pending[0]
		d.pending = d.pending[1:]

		switch {
		case b == '$' && len(cmd) > 0:
			// Resync on a fresh start marker.
			cmd = append(cmd[:0], b)
			lastCR = false
		case b == '\n' && lastCR:
			return append(cmd, b), nil
		default:
			if len(cmd) >= maxSentence {
				cmd = cmd[:0]
			}
			lastCR = b == '\r'
			cmd = append(cmd, b)
		}
	}
}

// FlushRx discards everything received so far.
func (d *Driver) FlushRx() {
	d.pending = d.pending[:0]
	var rb [64]byte
	for {
		n, err := d.port.TryRecv(rb[:])
		if n == 0 || err != nil {
			return
		}
	}
}

// withRetries runs op until it succeeds, pausing retryDelay between tries.
// op runs at most maxTries+1 times; the final error is returned as-is.
func (d *Driver) withRetries(maxTries int, op func() error) (int, error) {
	tries := 0
	for {
		tries++
		err := op()
		if err == nil {
			return tries, nil
		}
		if tries > maxTries {
			return tries, err
		}
		hal.Sleep(d.clock, retryDelay)
	}
}
