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

//go:build linux

package gpio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// DevMem is a Channel backed by a shared mapping of a physical memory page.
type DevMem struct {
	f   *os.File
	mem []byte

	status  *uint32
	control *uint32
}

// Open maps the page containing the register pair described by cfg.
func Open(cfg Config) (d *DevMem, err error) {
	pageSize := os.Getpagesize()

	if err = cfg.Validate(pageSize); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cfg.Device, os.O_RDWR|os.O_SYNC, 0)

	if err != nil {
		return nil, fmt.Errorf("could not open %s, %w", cfg.Device, err)
	}

	page := cfg.Base &^ int64(pageSize-1)
	off := int(cfg.Base - page)

	mem, err := unix.Mmap(int(f.Fd()), page, pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)

	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not map %s at %#x, %w", cfg.Device, page, err)
	}

	klog.V(2).Infof("mapped %s page %#x (%d bytes)", cfg.Device, page, pageSize)

	d = &DevMem{
		f:       f,
		mem:     mem,
		status:  (*uint32)(unsafe.Pointer(&mem[off+cfg.StatusOffset])),
		control: (*uint32)(unsafe.Pointer(&mem[off+cfg.ControlOffset])),
	}

	return
}

// ReadStatus returns the current value of the status register.
func (d *DevMem) ReadStatus() uint32 {
	return atomic.LoadUint32(d.status)
}

// WriteControl sets the control register.
func (d *DevMem) WriteControl(val uint32) {
	atomic.StoreUint32(d.control, val)
}

// ReadControl returns the last value written to the control register.
func (d *DevMem) ReadControl() uint32 {
	return atomic.LoadUint32(d.control)
}

// Close releases the mapping and the underlying device.
func (d *DevMem) Close() (err error) {
	if d.mem != nil {
		err = unix.Munmap(d.mem)
		d.mem = nil
		d.status = nil
		d.control = nil
	}

	if cerr := d.f.Close(); err == nil {
		err = cerr
	}

	return
}
