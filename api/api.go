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

// Package api describes the GPIO register interface exposed by the AES token
// core, as implemented by its VHDL control state machine.
package api

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// GPIO 0
const (
	GPIO_0_BASE_ADDR = 0x41200000

	// Status register (hardware to software), 32-bit
	STATUS_OFFSET = 0x0
	// Control register (software to hardware), 32-bit
	CONTROL_OFFSET = 0x8
)

// Control register bits, written by software.
const (
	CTRL_DTI_RESTART      = 16
	CTRL_DTI_DONE_READING = 17
	CTRL_DTO_VEC_LOADED   = 18
	CTRL_DTO_RESTART      = 19
	CTRL_DTO_DATA_READY   = 20
	CTRL_START_ENCRYPTION = 22
	CTRL_HANDSHAKE        = 24
	CTRL_RESET            = 31
)

// Status register bits, written by hardware.
const (
	STATUS_HANDSHAKE        = 28
	STATUS_DTO_DONE_READING = 29
	STATUS_DTI_DATA_READY   = 30
	STATUS_READY            = 31
)

const (
	// DATA_MASK selects the 16-bit payload carried in the low order bits of
	// both registers.
	DATA_MASK = 0xffff

	// CONTROL_FLAGS covers every control bit with a meaning to the core.
	CONTROL_FLAGS = 1<<CTRL_DTI_RESTART |
		1<<CTRL_DTI_DONE_READING |
		1<<CTRL_DTO_VEC_LOADED |
		1<<CTRL_DTO_RESTART |
		1<<CTRL_DTO_DATA_READY |
		1<<CTRL_START_ENCRYPTION |
		1<<CTRL_HANDSHAKE |
		1<<CTRL_RESET
)

// Report summarizes a single encryption run.
type Report struct {
	Revision   string
	Build      string
	Version    string
	Plaintext  []byte
	Key        []byte
	Ciphertext []byte
	Verified   *bool
	Duration   time.Duration
}

// HexHighToLow formats a buffer most significant byte first, the order
// expected by external AES reference calculators.
func HexHighToLow(buf []byte) string {
	var s strings.Builder

	for i := len(buf) - 1; i >= 0; i-- {
		fmt.Fprintf(&s, "%02X", buf[i])
	}

	return s.String()
}

// Print returns the run report in textual format.
func (p *Report) Print() string {
	var status bytes.Buffer

	status.WriteString("---------------------------------------------------------- AES token ----\n")
	status.WriteString(fmt.Sprintf("Revision ...............: %s\n", p.Revision))
	status.WriteString(fmt.Sprintf("Build ..................: %s\n", p.Build))
	status.WriteString(fmt.Sprintf("Version ................: %s\n", p.Version))
	status.WriteString(fmt.Sprintf("PlainText ..............: %s\n", HexHighToLow(p.Plaintext)))
	status.WriteString(fmt.Sprintf("Key ....................: %s\n", HexHighToLow(p.Key)))
	status.WriteString(fmt.Sprintf("Ciphertext .............: %s\n", HexHighToLow(p.Ciphertext)))

	if p.Verified != nil {
		status.WriteString(fmt.Sprintf("Verified ...............: %v\n", *p.Verified))
	}

	status.WriteString(fmt.Sprintf("Duration ...............: %v", p.Duration))

	return status.String()
}
