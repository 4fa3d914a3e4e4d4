package clock

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"epochcal/internal/config"
	"epochcal/internal/timeconv"
)

// DS1672 register map. The chip keeps a plain 32-bit seconds counter, so
// no BCD calendar decoding is needed:
//   - 0x00..0x03: counter, least significant byte first
//   - 0x04:       control, bit 7 (EOSC) set = oscillator stopped
const (
	regCounter  = 0x00
	regControl  = 0x04
	controlEOSC = 0x80
)

// txer is the subset of *i2c.Dev used by the RTC reader.
type txer interface {
	Tx(w, r []byte) error
}

type opener func(busName string, addr uint16) (txer, io.Closer, error)

// rtcSource talks to a DS1672 over I2C. The bus is opened per read and
// closed again, so no handle is held between samples.
type rtcSource struct {
	busName string
	addr    uint16
	open    opener
}

// NewRTCSource constructs an I2C-backed Source.
//
//   - busName: periph.io bus name ("" for default, typically /dev/i2c-1 on Raspberry Pi)
//   - addr:    7-bit I2C address (0x68 for the DS1672)
//
// No hardware is touched until Now is called.
func NewRTCSource(busName string, addr uint16) Source {
	return &rtcSource{
		busName: busName,
		addr:    addr,
		open:    openI2C,
	}
}

func (r *rtcSource) Name() string { return config.ClockRTC }

func (r *rtcSource) Now(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dev, closer, err := r.open(r.busName, r.addr)
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	// One burst read covers the counter and the control register.
	buf := make([]byte, regControl+1)
	if err := dev.Tx([]byte{regCounter}, buf); err != nil {
		return 0, fmt.Errorf("clock: rtc read at 0x%02x: %w", r.addr, err)
	}
	if buf[regControl]&controlEOSC != 0 {
		return 0, ErrOscillatorStopped
	}

	secs := binary.LittleEndian.Uint32(buf[regCounter : regCounter+4])
	return uint64(secs) * timeconv.MillisecondsPerSecond, nil
}

func openI2C(busName string, addr uint16) (txer, io.Closer, error) {
	if runtime.GOOS != "linux" {
		return nil, nil, errors.New("clock: i2c rtc unavailable on this platform")
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("clock: periph host init failed: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("clock: open i2c bus %q: %w", busName, err)
	}
	return &i2c.Dev{Bus: bus, Addr: addr}, bus, nil
}
