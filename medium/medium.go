// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package medium defines the contract between the SSC command core and the storage engine that
// holds tape images, plus in-memory and file-backed engines.
package medium

import (
	"github.com/pkg/errors"
)

type BlockType int

const (
	BLOCK_DATA BlockType = iota
	BLOCK_FILEMARK
	BLOCK_EOD
)

func (t BlockType) String() string {
	switch t {
	case BLOCK_DATA:
		return "data"
	case BLOCK_FILEMARK:
		return "filemark"
	case BLOCK_EOD:
		return "end of data"
	}

	return "unknown"
}

type SpaceCode uint8

const (
	SPACE_BLOCKS    SpaceCode = 0
	SPACE_FILEMARKS SpaceCode = 1
	SPACE_SEQ_FM    SpaceCode = 2
	SPACE_EOD       SpaceCode = 3
)

var (
	ErrNoMedium     = errors.New("no medium loaded")
	ErrCorruptImage = errors.New("tape image is corrupt")
	ErrUnsupported  = errors.New("operation not supported by medium")
)

// Encryption holds the key material a block was written with, or the key an initiator configured
// for decryption.
type Encryption struct {
	Key  []byte
	UKAD []byte
	AKAD []byte
}

// Position describes the block under the head. Encryption is the key material that block was
// written with, or nil if it is not encrypted.
type Position struct {
	Block      uint64
	Type       BlockType
	Encryption *Encryption
}

func (p Position) Encrypted() bool {
	return p.Encryption != nil
}

// Transfer reports the bytes moved between the initiator and the engine (Bytes) and between the
// engine and the medium (MediumBytes). They differ when compression is active.
type Transfer struct {
	Bytes       int
	MediumBytes int
}

// Engine is a tape medium storage engine. Engines report conditions that map to specific sense
// data by returning a scsi.Sense as the error.
type Engine interface {
	// Load mounts the medium and returns its auxiliary memory.
	Load() (*MAM, error)
	Unload() error
	Loaded() bool
	MAM() *MAM
	RewriteMAM() error

	Position() Position
	TapeOffset() uint64

	ReadBlock(buf []byte, sili bool) (Transfer, error)
	WriteBlock(data []byte, compression int, enc *Encryption) (Transfer, error)
	WriteFilemarks(count uint32) error

	Rewind() error
	Seek(block uint64) error
	Space(count int32, code SpaceCode) error
	Format() error
}
