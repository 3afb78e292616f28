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

package token

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	// BlockSize is the size in bytes of keys, plaintexts and ciphertexts.
	BlockSize = 16
	// ChunkSize is the number of bytes moved by a single handshake.
	ChunkSize = 2
	// ChunksPerBlock is the number of handshakes needed for a Block.
	ChunksPerBlock = BlockSize / ChunkSize
)

// Block is a 128-bit AES key, plaintext or ciphertext in memory order.
type Block [BlockSize]byte

// ParseBlock decodes 32 hex digits, first byte first.
func ParseBlock(s string) (b Block, err error) {
	buf, err := hex.DecodeString(s)

	if err != nil {
		return
	}

	if len(buf) != BlockSize {
		return b, fmt.Errorf("got %d bytes, want %d", len(buf), BlockSize)
	}

	copy(b[:], buf)

	return
}

// Chunk returns the ith 16-bit transfer word, low order byte first.
func (b *Block) Chunk(i int) uint16 {
	return binary.LittleEndian.Uint16(b[i*ChunkSize:])
}

// SetChunk stores the ith 16-bit transfer word, low order byte first.
func (b *Block) SetChunk(i int, v uint16) {
	binary.LittleEndian.PutUint16(b[i*ChunkSize:], v)
}

// Chunks returns the transfer words of the block in transfer order.
func (b *Block) Chunks() (c [ChunksPerBlock]uint16) {
	for i := range c {
		c[i] = b.Chunk(i)
	}

	return
}

// Stage identifies one of the three vectors moved across the handshake.
type Stage int

const (
	StagePlaintext Stage = iota
	StageKey
	StageCiphertext
)

func (s Stage) String() string {
	switch s {
	case StagePlaintext:
		return "plaintext"
	case StageKey:
		return "key"
	case StageCiphertext:
		return "ciphertext"
	}
	panic(fmt.Errorf("Unknown Stage %d", int(s)))
}
