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

// Package testonly provides a simulated token core for driver tests.
package testonly

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/transparency-dev/armored-token/api"
)

// Words is the number of 16-bit chunks the core accepts: plaintext then key.
const Words = 16

// transition is a status change not yet visible to software.
type transition struct {
	// reads is the number of status reads still hiding the change.
	reads int
	apply func()
}

// Engine is an in-memory model of the AES core control state machine. It
// implements gpio.Channel.
//
// Every status change caused by a control write becomes visible after
// Latency further status reads, so a driver which does not wait for a
// signal observes the old value.
type Engine struct {
	// Latency is the number of status reads hiding each status change.
	Latency int

	// NeverReady keeps the ready bit low after reset.
	NeverReady bool
	// NotReadyAfterRun drops the ready bit once the last ciphertext chunk
	// has been consumed.
	NotReadyAfterRun bool
	// StallLatch prevents DTO done reading from ever rising.
	StallLatch bool
	// NoFinalDataReady leaves DTI data ready low after the last ciphertext
	// chunk has been consumed.
	NoFinalDataReady bool

	// Writes records every control register write.
	Writes []uint32
	// Reads counts status register reads.
	Reads int
	// Chunks records every chunk latched since the last reset.
	Chunks []uint16
	// Violations records handshake protocol errors made by software.
	Violations []string

	// OnWrite is called just after a control write has been handled.
	OnWrite func(val uint32)

	ctrl    uint32
	pending []transition

	ready          bool
	dtoDoneReading bool
	dtiDataReady   bool

	keyWritable bool
	words       [Words]uint16
	dtoPtr      int

	computed   bool
	ciphertext [16]byte
	dtiPtr     int
}

// NewEngine creates a simulated core with the given status latency, powered
// up but not yet reset.
func NewEngine(t *testing.T, latency int) *Engine {
	t.Helper()
	return &Engine{Latency: latency}
}

// ReadStatus returns the status register as visible to software.
func (e *Engine) ReadStatus() uint32 {
	e.Reads++

	var keep []transition

	for _, tr := range e.pending {
		if tr.reads == 0 {
			tr.apply()
			continue
		}

		tr.reads--
		keep = append(keep, tr)
	}

	e.pending = keep

	var s uint32

	if e.ready {
		s |= 1 << api.STATUS_READY
	}

	if e.dtoDoneReading {
		s |= 1 << api.STATUS_DTO_DONE_READING
	}

	if e.dtiDataReady {
		s |= 1 << api.STATUS_DTI_DATA_READY

		if e.dtiPtr < len(e.ciphertext)/2 {
			s |= uint32(binary.LittleEndian.Uint16(e.ciphertext[e.dtiPtr*2:]))
		}
	}

	return s
}

// WriteControl handles a control register write.
func (e *Engine) WriteControl(val uint32) {
	prev := e.ctrl
	e.ctrl = val
	e.Writes = append(e.Writes, val)

	rise := func(pos int) bool { return val&(1<<pos) != 0 && prev&(1<<pos) == 0 }
	fall := func(pos int) bool { return val&(1<<pos) == 0 && prev&(1<<pos) != 0 }
	high := func(pos int) bool { return val&(1<<pos) != 0 }

	switch {
	case rise(api.CTRL_RESET):
		e.reset()
	case high(api.CTRL_RESET):
		e.violation("reset held across writes")
	}

	if rise(api.CTRL_DTO_RESTART) {
		e.dtoPtr = 0
	}

	if rise(api.CTRL_DTO_DATA_READY) {
		e.latch(val)
	} else if high(api.CTRL_DTO_DATA_READY) && (val^prev)&api.DATA_MASK != 0 {
		e.violation("chunk changed while data ready held")
	}

	if fall(api.CTRL_DTO_DATA_READY) {
		if !e.dtoDoneReading {
			e.violation("data ready withdrawn before the chunk was latched")
		}

		e.later(func() { e.dtoDoneReading = false })
	}

	if rise(api.CTRL_START_ENCRYPTION) {
		e.start()
	}

	if rise(api.CTRL_DTI_RESTART) {
		e.dtiPtr = 0

		if e.computed {
			e.later(func() { e.dtiDataReady = true })
		} else {
			e.violation("read pointer restarted before encryption")
		}
	}

	if rise(api.CTRL_DTI_DONE_READING) {
		if !e.dtiDataReady {
			e.violation(fmt.Sprintf("ciphertext chunk %d acknowledged while not ready", e.dtiPtr))
		}

		e.later(func() {
			e.dtiDataReady = false
			e.dtiPtr++

			if e.dtiPtr == len(e.ciphertext)/2 && e.NotReadyAfterRun {
				e.ready = false
			}
		})
	}

	if fall(api.CTRL_DTI_DONE_READING) {
		if e.dtiDataReady {
			e.violation(fmt.Sprintf("done reading withdrawn before ciphertext chunk %d was released", e.dtiPtr))
		}

		e.later(func() {
			if e.dtiPtr < len(e.ciphertext)/2 || !e.NoFinalDataReady {
				e.dtiDataReady = true
			}
		})
	}

	if e.OnWrite != nil {
		e.OnWrite(val)
	}
}

// Plaintext returns the plaintext loaded since the last reset.
func (e *Engine) Plaintext() (b [16]byte) {
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], e.words[i])
	}
	return
}

// Key returns the key loaded since the last reset.
func (e *Engine) Key() (b [16]byte) {
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], e.words[8+i])
	}
	return
}

// Ciphertext returns the result of the last encryption.
func (e *Engine) Ciphertext() [16]byte {
	return e.ciphertext
}

func (e *Engine) violation(msg string) {
	e.Violations = append(e.Violations, fmt.Sprintf("write %d: %s", len(e.Writes)-1, msg))
}

// later schedules a status change after Latency status reads.
func (e *Engine) later(apply func()) {
	e.pending = append(e.pending, transition{
		reads: e.Latency,
		apply: apply,
	})
}

func (e *Engine) reset() {
	e.pending = nil
	e.ready = !e.NeverReady
	e.dtoDoneReading = false
	e.dtiDataReady = false
	e.keyWritable = true
	e.words = [Words]uint16{}
	e.dtoPtr = 0
	e.Chunks = nil
	e.computed = false
	e.ciphertext = [16]byte{}
	e.dtiPtr = 0
}

func (e *Engine) latch(val uint32) {
	if e.dtoDoneReading {
		e.violation("data ready asserted before the previous chunk was released")
		return
	}

	if !e.keyWritable {
		e.violation("chunk written without a reset")
		return
	}

	if e.dtoPtr >= Words {
		e.violation("more than 16 chunks written")
		return
	}

	chunk := uint16(val & api.DATA_MASK)

	e.words[e.dtoPtr] = chunk
	e.dtoPtr++
	e.Chunks = append(e.Chunks, chunk)

	if !e.StallLatch {
		e.later(func() { e.dtoDoneReading = true })
	}
}

func (e *Engine) start() {
	if e.dtoPtr != Words {
		e.violation(fmt.Sprintf("encryption started with %d chunks loaded", e.dtoPtr))
	}

	key := e.Key()
	plaintext := e.Plaintext()

	block, err := aes.NewCipher(key[:])

	if err != nil {
		panic(err)
	}

	block.Encrypt(e.ciphertext[:], plaintext[:])

	e.computed = true
	e.keyWritable = false
	e.ready = false

	e.later(func() { e.ready = !e.NeverReady })
}
