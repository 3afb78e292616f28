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

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/transparency-dev/armored-token/api"
	"github.com/transparency-dev/armored-token/internal/config"
	"github.com/transparency-dev/armored-token/internal/poll"
	"github.com/transparency-dev/armored-token/internal/token"
	"github.com/transparency-dev/armored-token/internal/token/testonly"
)

func testConfig() token.Config {
	c := config.Default().Token()
	c.SettleDelay = time.Microsecond
	c.Poll = poll.Policy{MaxPolls: 100}
	return c
}

func TestRun(t *testing.T) {
	e := testonly.NewEngine(t, 1)

	ct, err := run(context.Background(), e, testConfig(), defaultKey, defaultPlaintext)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	ok, err := check(defaultKey, defaultPlaintext, *ct)
	if !ok || err != nil {
		t.Fatalf("Ciphertext %s failed verification: %v", api.HexHighToLow(ct[:]), err)
	}
	if len(e.Violations) != 0 {
		t.Fatalf("Got protocol violations: %q", e.Violations)
	}

	// Power-on reset followed by the reset preceding the key load.
	resets := 0
	for _, w := range e.Writes {
		if w&(1<<api.CTRL_RESET) != 0 {
			resets++
		}
	}
	if resets != 2 {
		t.Fatalf("Got %d resets, want 2", resets)
	}
}

func TestRunFailures(t *testing.T) {
	t.Run("not ready before load", func(t *testing.T) {
		e := testonly.NewEngine(t, 0)
		e.NeverReady = true

		ct, err := run(context.Background(), e, testConfig(), defaultKey, defaultPlaintext)
		if !errors.Is(err, token.ErrNotReady) {
			t.Fatalf("Got %v, want %v", err, token.ErrNotReady)
		}
		if ct != nil {
			t.Fatalf("Got ciphertext %x without a readback", *ct)
		}
	})

	t.Run("not ready after readback", func(t *testing.T) {
		e := testonly.NewEngine(t, 0)
		e.NotReadyAfterRun = true

		ct, err := run(context.Background(), e, testConfig(), defaultKey, defaultPlaintext)
		if !errors.Is(err, token.ErrNotReady) {
			t.Fatalf("Got %v, want %v", err, token.ErrNotReady)
		}
		if ct == nil {
			t.Fatal("Got no ciphertext after a complete readback")
		}
	})

	t.Run("stalled core", func(t *testing.T) {
		e := testonly.NewEngine(t, 0)
		e.StallLatch = true

		_, err := run(context.Background(), e, testConfig(), defaultKey, defaultPlaintext)
		if !errors.Is(err, poll.ErrTimeout) {
			t.Fatalf("Got %v, want %v", err, poll.ErrTimeout)
		}
	})

	t.Run("bad control mask", func(t *testing.T) {
		c := testConfig()
		c.ControlMask = 1 << api.CTRL_START_ENCRYPTION

		if _, err := run(context.Background(), testonly.NewEngine(t, 0), c, defaultKey, defaultPlaintext); err == nil {
			t.Fatal("run accepted a control mask overlapping the handshake")
		}
	})
}

func TestCheckArgs(t *testing.T) {
	for _, test := range []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "none"},
		{name: "empty", args: []string{}},
		{name: "positional", args: []string{"foo"}, wantErr: true},
		{name: "several", args: []string{"foo", "bar"}, wantErr: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			if gotErr := checkArgs(test.args) != nil; gotErr != test.wantErr {
				t.Fatalf("checkArgs(%q): gotErr %t, wantErr %t", test.args, gotErr, test.wantErr)
			}
		})
	}
}

func TestEncryptOpenFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Device = filepath.Join(t.TempDir(), "missing")

	r := &api.Report{}
	if err := encrypt(cfg, r, defaultKey, defaultPlaintext); err == nil {
		t.Fatal("encrypt succeeded without a device")
	}
	if r.Ciphertext != nil {
		t.Fatalf("Got ciphertext %x without a device", r.Ciphertext)
	}
	if _, err := os.Stat(cfg.Device); !os.IsNotExist(err) {
		t.Fatalf("encrypt created %s: %v", cfg.Device, err)
	}
}

func TestVectors(t *testing.T) {
	key, plaintext, err := vectors("", "")
	if err != nil {
		t.Fatalf("vectors: %v", err)
	}
	if key != defaultKey || plaintext != defaultPlaintext {
		t.Fatalf("Got %x/%x, want built-in vectors", key, plaintext)
	}

	key, plaintext, err = vectors("000102030405060708090a0b0c0d0e0f", "00112233445566778899aabbccddeeff")
	if err != nil {
		t.Fatalf("vectors: %v", err)
	}
	if key[15] != 0x0f || plaintext[15] != 0xff {
		t.Fatalf("Got %x/%x, want overrides", key, plaintext)
	}

	if _, _, err := vectors("00", ""); err == nil {
		t.Fatal("Accepted short key")
	}
	if _, _, err := vectors("", "xyz"); err == nil {
		t.Fatal("Accepted invalid plaintext")
	}
}

func TestCheck(t *testing.T) {
	// FIPS-197 appendix C.1
	key, _ := token.ParseBlock("000102030405060708090a0b0c0d0e0f")
	plaintext, _ := token.ParseBlock("00112233445566778899aabbccddeeff")
	ciphertext, _ := token.ParseBlock("69c4e0d86a7b0430d8cdb78070b4c55a")

	if ok, err := check(key, plaintext, ciphertext); !ok || err != nil {
		t.Fatalf("check: %v", err)
	}

	ciphertext[0] ^= 1
	if ok, err := check(key, plaintext, ciphertext); ok || err == nil {
		t.Fatal("check accepted a corrupted ciphertext")
	}
}

func TestParseVersion(t *testing.T) {
	for _, test := range []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "devel"},
		{in: "v1.2.3", want: "1.2.3"},
		{in: "0.4.0-rc1", want: "0.4.0-rc1"},
		{in: "latest", wantErr: true},
	} {
		got, err := parseVersion(test.in)
		if gotErr := err != nil; gotErr != test.wantErr {
			t.Fatalf("parseVersion(%q): got %v, wantErr %t", test.in, err, test.wantErr)
		}
		if got != test.want {
			t.Fatalf("parseVersion(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	var out bytes.Buffer

	p := newProgressBar(&out)
	for _, s := range []token.Stage{token.StagePlaintext, token.StageKey, token.StageCiphertext} {
		for i := 0; i < token.ChunksPerBlock; i++ {
			p.Chunk(s, i)
		}
	}
	p.Finish()

	if got, want := p.bar.Current(), int64(totalChunks); got != want {
		t.Fatalf("Got %d chunks, want %d", got, want)
	}
	if !bytes.Contains(out.Bytes(), []byte("ciphertext")) {
		t.Fatalf("Progress output missing stage:\n%s", out.String())
	}
}
