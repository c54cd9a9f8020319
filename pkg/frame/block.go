/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package frame

import (
	"fmt"
	"hash/crc32"
)

// Word layout (64 bits, as carried by the 64 lines):
// bits  0..31  Value    payload word
// bits 32..47  Index    position of Value in the transfer
// bits 48..63  Checksum Checksum(Value, Index)
const (
	StartMagic uint64 = 0xBEEFC0DE00000001
	EndMagic   uint64 = 0xBEEFC0DE00000002

	// MaxBlocks is the size of the 16-bit index space.
	MaxBlocks = 1 << 16

	checksumSeed uint32 = 0x5596A0B1
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Block is one payload word with its position and checksum.
type Block struct {
	Value    uint32
	Index    uint16
	Checksum uint16
}

// NewBlock returns a block with its checksum filled in.
func NewBlock(value uint32, index uint16) Block {
	return Block{Value: value, Index: index, Checksum: Checksum(value, index)}
}

// UnpackBlock splits a raw word into block fields without validating it.
func UnpackBlock(w uint64) Block {
	return Block{
		Value:    uint32(w),
		Index:    uint16(w >> 32),
		Checksum: uint16(w >> 48),
	}
}

// Pack returns the raw word.
func (b Block) Pack() uint64 {
	return uint64(b.Value) | uint64(b.Index)<<32 | uint64(b.Checksum)<<48
}

// Valid reports whether the stored checksum matches the fields.
func (b Block) Valid() bool {
	return b.Checksum == Checksum(b.Value, b.Index)
}

func (b Block) String() string {
	return fmt.Sprintf("block{index=%d value=%#08x checksum=%#04x}", b.Index, b.Value, b.Checksum)
}

// Checksum is one CRC-32C step (the SSE4.2 crc32 instruction, no inversion)
// seeded with a fixed constant over index XOR the 16-bit sum of the two
// halves of value, folded to 16 bits.
func Checksum(value uint32, index uint16) uint16 {
	d := index ^ (uint16(value) + uint16(value>>16))
	buf := [2]byte{byte(d), byte(d >> 8)}
	// crc32.Update inverts on entry and exit, undo both
	crc := ^crc32.Update(^checksumSeed, castagnoli, buf[:])
	return uint16(crc>>16) ^ uint16(crc)
}

// Kind tells what a raw word carries.
type Kind uint8

const (
	KindBlock Kind = iota
	KindStart
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Word is a classified raw word: a sentinel or a block.
type Word struct {
	Kind  Kind
	Block Block
}

// Classify decodes a raw word once into its shape. Sentinels are matched
// exactly; everything else is a block, valid or not.
func Classify(w uint64) Word {
	switch w {
	case StartMagic:
		return Word{Kind: KindStart}
	case EndMagic:
		return Word{Kind: KindEnd}
	default:
		return Word{Kind: KindBlock, Block: UnpackBlock(w)}
	}
}

// Pack returns the raw word.
func (w Word) Pack() uint64 {
	switch w.Kind {
	case KindStart:
		return StartMagic
	case KindEnd:
		return EndMagic
	default:
		return w.Block.Pack()
	}
}
