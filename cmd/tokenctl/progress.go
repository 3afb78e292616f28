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
	"io"

	"github.com/cheggaaa/pb/v3"

	"github.com/transparency-dev/armored-token/internal/token"
)

// totalChunks counts plaintext, key and ciphertext transfers.
const totalChunks = 3 * token.ChunksPerBlock

const progressTemplate pb.ProgressBarTemplate = `{{string . "stage"}} {{counters . }} {{bar . }} {{percent . }}`

type progressBar struct {
	bar *pb.ProgressBar
}

func newProgressBar(w io.Writer) *progressBar {
	bar := progressTemplate.New(totalChunks)
	bar.SetWriter(w)
	bar.Set("stage", token.StagePlaintext.String())
	bar.Start()

	return &progressBar{bar: bar}
}

// Chunk advances the bar, it has the signature of token.Config.OnChunk.
func (p *progressBar) Chunk(stage token.Stage, _ int) {
	p.bar.Set("stage", stage.String())
	p.bar.Increment()
}

func (p *progressBar) Finish() {
	p.bar.Finish()
}
