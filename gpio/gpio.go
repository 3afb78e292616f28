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

// Package gpio provides access to the register pair shared between software
// and the AES token core.
//
// On Linux the registers are reached by mapping the AXI GPIO block through
// /dev/mem, which requires root privileges (or CAP_SYS_RAWIO) and a kernel
// built without STRICT_DEVMEM restrictions on the GPIO range.
package gpio

import (
	"errors"
	"fmt"
)

// DefaultDevice is the physical memory device used to map the registers.
const DefaultDevice = "/dev/mem"

// Channel represents the control/status register pair. Software is the only
// writer of the control register, hardware the only writer of the status
// register.
type Channel interface {
	// ReadStatus returns the current value of the status register.
	ReadStatus() uint32
	// WriteControl sets the control register.
	WriteControl(val uint32)
}

// Config describes where the register pair lives in physical memory.
type Config struct {
	// Device is the memory device to map, /dev/mem unless testing.
	Device string
	// Base is the physical address of the GPIO block.
	Base int64
	// StatusOffset is the byte offset of the status register from Base.
	StatusOffset int
	// ControlOffset is the byte offset of the control register from Base.
	ControlOffset int
}

// Validate checks that both registers are word aligned and fit in the page
// mapped at the page aligned Base.
func (c Config) Validate(pageSize int) error {
	if len(c.Device) == 0 {
		return errors.New("no device set")
	}

	if c.Base < 0 {
		return fmt.Errorf("invalid base address %#x", c.Base)
	}

	off := int(c.Base & int64(pageSize-1))

	for _, r := range []struct {
		name   string
		offset int
	}{
		{"status", c.StatusOffset},
		{"control", c.ControlOffset},
	} {
		if r.offset < 0 || (off+r.offset)%4 != 0 {
			return fmt.Errorf("%s register offset %#x is not word aligned", r.name, r.offset)
		}

		if off+r.offset+4 > pageSize {
			return fmt.Errorf("%s register offset %#x exceeds page size %d", r.name, r.offset, pageSize)
		}
	}

	if c.StatusOffset == c.ControlOffset {
		return errors.New("status and control registers overlap")
	}

	return nil
}
