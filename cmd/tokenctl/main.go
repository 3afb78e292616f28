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
//
// The tokenctl tool runs a single ECB encryption on the AES token core,
// printing key, plaintext and ciphertext for comparison with a reference
// AES calculator.
package main

import (
	"bytes"
	"context"
	"crypto/aes"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-token/api"
	"github.com/transparency-dev/armored-token/gpio"
	"github.com/transparency-dev/armored-token/internal/config"
	"github.com/transparency-dev/armored-token/internal/metrics"
	"github.com/transparency-dev/armored-token/internal/token"
)

// initialized at compile time (see Makefile)
var (
	Build    string
	Revision string
	Version  string
)

var (
	defaultKey       = token.Block{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}
	defaultPlaintext = token.Block([]byte("Wenjie is GREAT\x00"))
)

var (
	configFile   = flag.String("config", "", "YAML file overriding the default register layout and handshake timing.")
	keyHex       = flag.String("key", "", "AES-128 key as 32 hex digits, first byte first. Defaults to the built-in test key.")
	plaintextHex = flag.String("plaintext", "", "Plaintext as 32 hex digits, first byte first. Defaults to the built-in test plaintext.")
	verify       = flag.Bool("verify", false, "Check the ciphertext against a software AES-128-ECB computation.")
	metricsFile  = flag.String("metrics_file", "", "File to write handshake metrics to, in Prometheus text format.")
	progress     = flag.Bool("progress", term.IsTerminal(int(os.Stderr.Fd())), "Show a transfer progress bar.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	if err := checkArgs(flag.Args()); err != nil {
		klog.Exitf("ERROR: %v", err)
	}

	version, err := parseVersion(Version)

	if err != nil {
		klog.Exitf("Invalid build version %q: %v", Version, err)
	}

	klog.Infof("%s/%s (%s) • AES token ECB encryption • %s %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version(),
		Revision, Build)

	cfg, err := config.Load(*configFile)

	if err != nil {
		klog.Exitf("Failed to load configuration: %v", err)
	}

	key, plaintext, err := vectors(*keyHex, *plaintextHex)

	if err != nil {
		klog.Exitf("Invalid test vector: %v", err)
	}

	r := &api.Report{
		Revision:  Revision,
		Build:     Build,
		Version:   version,
		Plaintext: plaintext[:],
		Key:       key[:],
	}

	// klog.Exitf skips deferred calls, encrypt releases the device itself.
	if err := encrypt(cfg, r, key, plaintext); err != nil {
		klog.Exitf("ERROR: %v", err)
	}
}

// checkArgs rejects positional arguments, only flags are accepted.
func checkArgs(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments %q, tokenctl takes no positional arguments", args)
	}

	return nil
}

// encrypt opens the device and runs one encryption, printing r once the run
// has ended.
func encrypt(cfg config.Config, r *api.Report, key, plaintext token.Block) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()

	tc := cfg.Token()
	tc.Metrics = metrics.New(reg)

	dev, err := gpio.Open(cfg.GPIO())

	if err != nil {
		return err
	}

	defer dev.Close()

	var bar *progressBar

	if *progress {
		bar = newProgressBar(os.Stderr)
		tc.OnChunk = bar.Chunk
	}

	start := time.Now()
	ciphertext, err := run(ctx, dev, tc, key, plaintext)
	r.Duration = time.Since(start)

	if bar != nil {
		bar.Finish()
	}

	if *metricsFile != "" {
		if err := metrics.WriteFile(reg, *metricsFile); err != nil {
			klog.Errorf("Failed to write metrics: %v", err)
		}
	}

	if ciphertext != nil {
		r.Ciphertext = ciphertext[:]
	}

	if err == nil && *verify {
		var ok bool
		ok, err = check(key, plaintext, *ciphertext)
		r.Verified = &ok
	}

	fmt.Println(r.Print())

	return err
}

// run resets the core and performs one encryption. A ciphertext is returned
// whenever the readback completed, even if the core was not ready afterwards.
func run(ctx context.Context, ch gpio.Channel, cfg token.Config, key, plaintext token.Block) (*token.Block, error) {
	fmt.Printf("ECB-BASED ENCRYPTION EXAMPLE:\tUSER-SPECIFIED KEY\n\n")
	fmt.Printf("PlainText (high order to low order as needed by website version):\n\t%s\n", api.HexHighToLow(plaintext[:]))
	fmt.Printf("KEY (high order to low order as needed by website version):\n\t%s\n\n", api.HexHighToLow(key[:]))

	d, err := token.New(ch, cfg)

	if err != nil {
		return nil, err
	}

	// power-on reset, Encrypt resets again before loading the key
	if err = d.Reset(ctx); err != nil {
		return nil, err
	}

	ciphertext, err := d.Encrypt(ctx, key, plaintext)

	if err != nil && !errors.Is(err, token.ErrNotReadyAfterRun) {
		return nil, err
	}

	fmt.Printf("Ciphertext (high order to low order as needed by website version):\n\t%s\n\n", api.HexHighToLow(ciphertext[:]))

	return &ciphertext, err
}

// vectors returns the key and plaintext to use, the built-in ones unless
// overridden.
func vectors(keyHex string, plaintextHex string) (key token.Block, plaintext token.Block, err error) {
	key, plaintext = defaultKey, defaultPlaintext

	if len(keyHex) > 0 {
		if key, err = token.ParseBlock(keyHex); err != nil {
			return key, plaintext, fmt.Errorf("key: %w", err)
		}
	}

	if len(plaintextHex) > 0 {
		if plaintext, err = token.ParseBlock(plaintextHex); err != nil {
			return key, plaintext, fmt.Errorf("plaintext: %w", err)
		}
	}

	return
}

// check compares a hardware ciphertext with AES-128-ECB in software.
func check(key, plaintext, ciphertext token.Block) (bool, error) {
	c, err := aes.NewCipher(key[:])

	if err != nil {
		return false, err
	}

	var want token.Block
	c.Encrypt(want[:], plaintext[:])

	if !bytes.Equal(want[:], ciphertext[:]) {
		return false, fmt.Errorf("ciphertext mismatch, hardware %s, software %s",
			api.HexHighToLow(ciphertext[:]), api.HexHighToLow(want[:]))
	}

	return true, nil
}

func parseVersion(s string) (string, error) {
	if len(s) == 0 {
		return "devel", nil
	}

	v, err := semver.NewVersion(strings.TrimPrefix(s, "v"))

	if err != nil {
		return "", err
	}

	return v.String(), nil
}
