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
// +build linux

package gpio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// memFile creates a file standing in for physical memory, with numPages
// zeroed pages.
func memFile(t *testing.T, numPages int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "mem")
	if err := os.WriteFile(p, make([]byte, numPages*os.Getpagesize()), 0o600); err != nil {
		t.Fatalf("Failed to create memory file: %v", err)
	}
	return p
}

func TestDevMem(t *testing.T) {
	pageSize := os.Getpagesize()

	for _, test := range []struct {
		name string
		base int64
	}{
		{
			name: "page aligned",
			base: 0,
		}, {
			name: "second page",
			base: int64(pageSize),
		}, {
			name: "offset into page",
			base: int64(pageSize) + 0x100,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := memFile(t, 2)

			// Preload the status register as hardware would.
			buf, err := os.ReadFile(p)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			binary.NativeEndian.PutUint32(buf[test.base:], 0x8000beef)
			if err := os.WriteFile(p, buf, 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			d, err := Open(Config{
				Device:        p,
				Base:          test.base,
				StatusOffset:  0,
				ControlOffset: 8,
			})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}

			if got, want := d.ReadStatus(), uint32(0x8000beef); got != want {
				t.Errorf("Got status %#x, want %#x", got, want)
			}

			d.WriteControl(0x00101234)

			if got, want := d.ReadControl(), uint32(0x00101234); got != want {
				t.Errorf("Got control %#x, want %#x", got, want)
			}

			if err := d.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			buf, err = os.ReadFile(p)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}

			if got, want := binary.NativeEndian.Uint32(buf[test.base+8:]), uint32(0x00101234); got != want {
				t.Errorf("Got control in memory %#x, want %#x", got, want)
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	pageSize := os.Getpagesize()
	p := memFile(t, 1)

	for _, test := range []struct {
		name string
		cfg  Config
	}{
		{
			name: "no device",
			cfg:  Config{ControlOffset: 8},
		}, {
			name: "missing device",
			cfg:  Config{Device: filepath.Join(t.TempDir(), "missing"), ControlOffset: 8},
		}, {
			name: "unaligned status",
			cfg:  Config{Device: p, StatusOffset: 2, ControlOffset: 8},
		}, {
			name: "control past page",
			cfg:  Config{Device: p, ControlOffset: pageSize},
		}, {
			name: "overlapping registers",
			cfg:  Config{Device: p, StatusOffset: 8, ControlOffset: 8},
		}, {
			name: "negative base",
			cfg:  Config{Device: p, Base: -4096, ControlOffset: 8},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			d, err := Open(test.cfg)
			if err == nil {
				d.Close()
				t.Fatal("Open succeeded, want error")
			}
		})
	}
}
