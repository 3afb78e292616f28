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

//go:build !linux

package gpio

import (
	"errors"
)

// DevMem is only available on Linux.
type DevMem struct{}

// Open always fails, physical memory mapping requires Linux.
func Open(_ Config) (*DevMem, error) {
	return nil, errors.New("physical memory mapping is only supported on linux")
}

func (d *DevMem) ReadStatus() uint32 { return 0 }

func (d *DevMem) WriteControl(_ uint32) {}

func (d *DevMem) ReadControl() uint32 { return 0 }

func (d *DevMem) Close() error { return nil }
