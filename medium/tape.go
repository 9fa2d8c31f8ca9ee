// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package medium

import (
	"bytes"
	"compress/zlib"

	"github.com/dswarbrick/vtape/scsi"
)

type record struct {
	typ     BlockType
	size    int
	medSize int
	enc     *Encryption
	data    []byte // MemoryTape only
	off     int64  // FileTape only: offset of the record header
}

// tape holds the block index and head position shared by the engines.
type tape struct {
	mam     MAM
	records []record
	pos     int
	loaded  bool
}

func (t *tape) Loaded() bool {
	return t.loaded
}

func (t *tape) MAM() *MAM {
	return &t.mam
}

func (t *tape) Position() Position {
	p := Position{Block: uint64(t.pos), Type: BLOCK_EOD}

	if t.pos < len(t.records) {
		p.Type = t.records[t.pos].typ
		p.Encryption = t.records[t.pos].enc
	}

	return p
}

// TapeOffset returns the number of medium bytes before the head.
func (t *tape) TapeOffset() uint64 {
	var off uint64

	for _, r := range t.records[:t.pos] {
		off += uint64(r.medSize)
	}

	return off
}

func (t *tape) Rewind() error {
	if !t.loaded {
		return ErrNoMedium
	}

	t.pos = 0
	return nil
}

// Seek positions the head before block. Seeking past end of data leaves the head at end of data.
func (t *tape) Seek(block uint64) error {
	if !t.loaded {
		return ErrNoMedium
	}

	if block > uint64(len(t.records)) {
		t.pos = len(t.records)
		return scsi.NewSense(scsi.BLANK_CHECK, scsi.ASC_END_OF_DATA_DETECTED)
	}

	t.pos = int(block)
	return nil
}

func (t *tape) Space(count int32, code SpaceCode) error {
	if !t.loaded {
		return ErrNoMedium
	}

	switch code {
	case SPACE_BLOCKS:
		if count < 0 {
			return t.spaceBlocksReverse(uint32(-count))
		}
		return t.spaceBlocks(uint32(count))
	case SPACE_FILEMARKS:
		if count < 0 {
			return t.spaceFilemarksReverse(uint32(-count))
		}
		return t.spaceFilemarks(uint32(count))
	case SPACE_EOD:
		t.pos = len(t.records)
		return nil
	}

	return ErrUnsupported
}

func residual(key uint8, asc uint16, n uint32) scsi.Sense {
	s := scsi.NewSense(key, asc)
	s.SetInfo(n)
	return s
}

func (t *tape) spaceBlocks(n uint32) error {
	for i := uint32(0); i < n; i++ {
		if t.pos >= len(t.records) {
			return residual(scsi.BLANK_CHECK, scsi.ASC_END_OF_DATA_DETECTED, n-i)
		}

		t.pos++
		if t.records[t.pos-1].typ == BLOCK_FILEMARK {
			s := residual(scsi.NO_SENSE, scsi.ASC_FILEMARK_DETECTED, n-i)
			s.Filemark = true
			return s
		}
	}

	return nil
}

func (t *tape) spaceBlocksReverse(n uint32) error {
	for i := uint32(0); i < n; i++ {
		if t.pos == 0 {
			s := residual(scsi.NO_SENSE, scsi.ASC_BOP_BOM_DETECTED, n-i)
			s.EOM = true
			return s
		}

		t.pos--
		if t.records[t.pos].typ == BLOCK_FILEMARK {
			s := residual(scsi.NO_SENSE, scsi.ASC_FILEMARK_DETECTED, n-i)
			s.Filemark = true
			return s
		}
	}

	return nil
}

func (t *tape) spaceFilemarks(n uint32) error {
	for found := uint32(0); found < n; {
		if t.pos >= len(t.records) {
			return residual(scsi.BLANK_CHECK, scsi.ASC_END_OF_DATA_DETECTED, n-found)
		}

		if t.records[t.pos].typ == BLOCK_FILEMARK {
			found++
		}
		t.pos++
	}

	return nil
}

func (t *tape) spaceFilemarksReverse(n uint32) error {
	for found := uint32(0); found < n; {
		if t.pos == 0 {
			s := residual(scsi.NO_SENSE, scsi.ASC_BOP_BOM_DETECTED, n-found)
			s.EOM = true
			return s
		}

		t.pos--
		if t.records[t.pos].typ == BLOCK_FILEMARK {
			found++
		}
	}

	return nil
}

// readRecord returns the record under the head, or the sense data for end of data or a filemark.
// Crossing a filemark advances the head past it.
func (t *tape) readRecord() (*record, error) {
	if !t.loaded {
		return nil, ErrNoMedium
	}

	if t.pos >= len(t.records) {
		return nil, scsi.NewSense(scsi.BLANK_CHECK, scsi.ASC_END_OF_DATA_DETECTED)
	}

	r := &t.records[t.pos]
	t.pos++

	if r.typ == BLOCK_FILEMARK {
		s := scsi.NewSense(scsi.NO_SENSE, scsi.ASC_FILEMARK_DETECTED)
		s.Filemark = true
		return nil, s
	}

	return r, nil
}

// finishRead copies a block payload to buf and reports an incorrect length unless suppressed.
func finishRead(buf, data []byte, medSize int, sili bool) (Transfer, error) {
	n := copy(buf, data)
	xfer := Transfer{Bytes: n, MediumBytes: medSize}

	if len(data) != len(buf) && !sili {
		s := scsi.NewSense(scsi.NO_SENSE, scsi.ASC_NO_ADDITIONAL_SENSE)
		s.ILI = true
		s.SetInfo(uint32(int32(len(buf) - len(data))))
		return xfer, s
	}

	return xfer, nil
}

// truncate discards everything from the head onwards, as any write on tape does.
func (t *tape) truncate() {
	t.records = t.records[:t.pos]
	t.updateRemaining()
}

func (t *tape) updateRemaining() {
	var used uint64

	for _, r := range t.records {
		used += uint64(r.medSize)
	}

	if used >= t.mam.MaxCapacity {
		t.mam.RemainingCapacity = 0
	} else {
		t.mam.RemainingCapacity = t.mam.MaxCapacity - used
	}
}

// checkOverflow reports end of medium once the written data exceeds the medium capacity.
func (t *tape) checkOverflow() error {
	if t.TapeOffset() > t.mam.MaxCapacity {
		s := scsi.NewSense(scsi.VOLUME_OVERFLOW, scsi.ASC_EOP_EOM_DETECTED)
		s.EOM = true
		return s
	}

	return nil
}

// mediumSize returns the number of bytes data occupies on the medium at the given zlib
// compression level, or uncompressed when level is zero.
func mediumSize(data []byte, level int) int {
	if level <= 0 {
		return len(data)
	}

	if level > zlib.BestCompression {
		level = zlib.BestCompression
	}

	var buf bytes.Buffer

	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return len(data)
	}

	w.Write(data)
	w.Close()

	if buf.Len() < len(data) {
		return buf.Len()
	}

	return len(data)
}

func copyEncryption(enc *Encryption) *Encryption {
	if enc == nil {
		return nil
	}

	return &Encryption{
		Key:  append([]byte(nil), enc.Key...),
		UKAD: append([]byte(nil), enc.UKAD...),
		AKAD: append([]byte(nil), enc.AKAD...),
	}
}
