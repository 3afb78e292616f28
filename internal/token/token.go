// Copyright 2026 The Armored Token authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package token drives the AES-128 token core through its GPIO handshake.
//
// Data moves 16 bits at a time. Towards the core (DTO) software presents a
// chunk together with DTO data ready and waits for DTO done reading to rise
// and fall again; from the core (DTI) hardware presents a chunk together with
// DTI data ready and software acknowledges it with DTI done reading.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/usbarmory/tamago/bits"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-token/api"
	"github.com/transparency-dev/armored-token/gpio"
	"github.com/transparency-dev/armored-token/internal/metrics"
	"github.com/transparency-dev/armored-token/internal/poll"
)

// DefaultSettleDelay is the time given to the core to come out of reset.
const DefaultSettleDelay = 10 * time.Millisecond

// ErrNotReady is returned when the core does not report ready at one of the
// points where the protocol requires it.
var ErrNotReady = errors.New("encryption engine is NOT ready")

// ErrNotReadyAfterRun is the ErrNotReady raised once the ciphertext has been
// read back, the ciphertext returned with it is complete.
var ErrNotReadyAfterRun = fmt.Errorf("%w after readback", ErrNotReady)

// TimeoutError is returned when a status signal does not reach the expected
// level within the wait policy.
type TimeoutError struct {
	Signal string
	Want   bool
	Polls  uint64
	// Step describes what the driver was doing.
	Step string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out waiting for %s=%d after %d polls", e.Step, e.Signal, b2i(e.Want), e.Polls)
}

// Unwrap allows errors.Is(err, poll.ErrTimeout).
func (e *TimeoutError) Unwrap() error {
	return poll.ErrTimeout
}

// Config controls the handshake timing and reporting.
type Config struct {
	// ControlMask is OR-ed into every control register write.
	ControlMask uint32
	// SettleDelay is the pause after reset, DefaultSettleDelay if zero.
	SettleDelay time.Duration
	// Poll bounds every status wait, the zero value waits forever.
	Poll poll.Policy
	// WaitFinalDataReady keeps the wait for DTI data ready to rise again
	// after the last ciphertext chunk.
	WaitFinalDataReady bool

	// Metrics, if set, records handshake counters.
	Metrics *metrics.Handshake
	// OnChunk, if set, is called just after a chunk has been transferred.
	OnChunk func(stage Stage, index int)
}

// Validate checks that the control mask leaves the handshake alone.
func (c Config) Validate() error {
	if c.ControlMask&api.DATA_MASK != 0 {
		return fmt.Errorf("control mask %#08x overlaps the data payload", c.ControlMask)
	}

	if c.ControlMask&api.CONTROL_FLAGS != 0 {
		return fmt.Errorf("control mask %#08x overlaps control flags", c.ControlMask)
	}

	return nil
}

// signal is a status register bit waited upon.
type signal struct {
	name string
	pos  int
}

var (
	ready          = signal{"ready", api.STATUS_READY}
	dtoDoneReading = signal{"dto_done_reading", api.STATUS_DTO_DONE_READING}
	dtiDataReady   = signal{"dti_data_ready", api.STATUS_DTI_DATA_READY}
)

// Driver runs encryptions on a token core.
type Driver struct {
	ch  gpio.Channel
	cfg Config
}

// New returns a driver for the core behind ch.
func New(ch gpio.Channel, cfg Config) (*Driver, error) {
	if ch == nil {
		return nil, errors.New("no channel set")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	if !cfg.Poll.Bounded() {
		klog.Warning("status waits are unbounded, an unresponsive core will hang until cancelled")
	}

	return &Driver{
		ch:  ch,
		cfg: cfg,
	}, nil
}

// control writes the control register with the base mask applied.
func (d *Driver) control(val uint32) {
	d.ch.WriteControl(d.cfg.ControlMask | val)
}

// pulse asserts a control flag and clears it on the next write.
func (d *Driver) pulse(pos int) {
	var val uint32

	bits.Set(&val, pos)
	d.control(val)
	d.control(0)
}

func (d *Driver) isSet(pos int) bool {
	status := d.ch.ReadStatus()
	return bits.Get(&status, pos, 1) == 1
}

// wait polls the status register until s equals want.
func (d *Driver) wait(ctx context.Context, s signal, want bool, step string) error {
	polls, err := poll.Until(ctx, d.cfg.Poll, func() bool {
		return d.isSet(s.pos) == want
	})

	timedOut := errors.Is(err, poll.ErrTimeout)
	d.cfg.Metrics.Waited(s.name, polls, timedOut)

	switch {
	case timedOut:
		return &TimeoutError{
			Signal: s.name,
			Want:   want,
			Polls:  polls,
			Step:   step,
		}
	case err != nil:
		return fmt.Errorf("%s: %w", step, err)
	}

	return nil
}

// Reset pulses the core reset and waits for it to settle. The core only
// accepts a new key immediately after a reset.
func (d *Driver) Reset(ctx context.Context) error {
	d.pulse(api.CTRL_RESET)

	t := time.NewTimer(d.cfg.SettleDelay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	return nil
}

// Encrypt loads plaintext and key into the core, runs it and reads back the
// ciphertext.
//
// When the core does not report ready after the readback the ciphertext is
// returned together with ErrNotReadyAfterRun. Any other error leaves the
// ciphertext zero.
func (d *Driver) Encrypt(ctx context.Context, key Block, plaintext Block) (ciphertext Block, err error) {
	start := time.Now()

	defer func() {
		d.cfg.Metrics.Run(result(err), time.Since(start))
	}()

	if err = d.Reset(ctx); err != nil {
		return
	}

	klog.Info("******* Starting Encryption Engine")

	if !d.isSet(api.STATUS_READY) {
		return ciphertext, fmt.Errorf("%w before load", ErrNotReady)
	}

	klog.Info("HARDWARE IS READY!")

	// rewind the core write pointer
	d.pulse(api.CTRL_DTO_RESTART)

	if err = d.load(ctx, StagePlaintext, &plaintext); err != nil {
		return
	}

	if err = d.load(ctx, StageKey, &key); err != nil {
		return
	}

	d.pulse(api.CTRL_START_ENCRYPTION)

	if err = d.wait(ctx, ready, true, "encryption"); err != nil {
		return
	}

	// rewind the core read pointer
	d.pulse(api.CTRL_DTI_RESTART)

	if err = d.read(ctx, &ciphertext); err != nil {
		return
	}

	klog.Info("******* Waiting for Encryption Engine to finish")

	if !d.isSet(api.STATUS_READY) {
		return ciphertext, ErrNotReadyAfterRun
	}

	klog.Info("Encryption FINISHED!")

	return
}

// load moves a block to the core.
func (d *Driver) load(ctx context.Context, stage Stage, b *Block) error {
	for i, chunk := range b.Chunks() {
		var val uint32

		klog.V(1).Infof("loading %s chunk %d: %04X", stage, i, chunk)

		// 1) present the chunk with data ready asserted
		bits.Set(&val, api.CTRL_DTO_DATA_READY)
		bits.SetN(&val, 0, api.DATA_MASK, uint32(chunk))
		d.control(val)

		// 2) the core latches it and raises done reading
		if err := d.wait(ctx, dtoDoneReading, true, fmt.Sprintf("%s chunk %d latch", stage, i)); err != nil {
			return err
		}

		// 3) withdraw data ready and the chunk
		d.control(0)

		// 4) the core drops done reading, ready for the next chunk
		if err := d.wait(ctx, dtoDoneReading, false, fmt.Sprintf("%s chunk %d release", stage, i)); err != nil {
			return err
		}

		d.cfg.Metrics.ChunkWritten(stage.String())

		if d.cfg.OnChunk != nil {
			d.cfg.OnChunk(stage, i)
		}
	}

	return nil
}

// read moves the ciphertext from the core.
func (d *Driver) read(ctx context.Context, b *Block) error {
	if err := d.wait(ctx, dtiDataReady, true, "ciphertext available"); err != nil {
		return err
	}

	for i := 0; i < ChunksPerBlock; i++ {
		var val uint32

		status := d.ch.ReadStatus()
		chunk := uint16(bits.Get(&status, 0, api.DATA_MASK))
		b.SetChunk(i, chunk)

		klog.V(1).Infof("read ciphertext chunk %d: %04X", i, chunk)

		// 1) acknowledge the chunk
		bits.Set(&val, api.CTRL_DTI_DONE_READING)
		d.control(val)

		// 2) the core withdraws data ready
		if err := d.wait(ctx, dtiDataReady, false, fmt.Sprintf("ciphertext chunk %d acknowledge", i)); err != nil {
			return err
		}

		// 3) withdraw done reading
		d.control(0)

		d.cfg.Metrics.ChunkRead()

		if d.cfg.OnChunk != nil {
			d.cfg.OnChunk(StageCiphertext, i)
		}

		if i == ChunksPerBlock-1 && !d.cfg.WaitFinalDataReady {
			break
		}

		// 4) the core presents the next chunk
		if err := d.wait(ctx, dtiDataReady, true, fmt.Sprintf("ciphertext chunk %d release", i)); err != nil {
			return err
		}
	}

	return nil
}

func result(err error) string {
	var te *TimeoutError

	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.As(err, &te):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}

	return "error"
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
