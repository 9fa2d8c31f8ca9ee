// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package medium

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v2"
)

const (
	fileMagic     = "VTAPE001"
	mamAreaSize   = 4096
	recHeaderSize = 16

	recFlagEncrypted = 0x01
)

// FileTape is an Engine backed by a single image file. The image starts with a fixed size area
// holding the YAML encoded MAM, followed by records of the form:
//
//	type (1) | flags (1) | key length (2) | size (4) | medium size (4) | reserved (4) | data | key
//
// The file is held under an exclusive flock while open.
type FileTape struct {
	tape
	f    *os.File
	fd   int
	path string
}

// CreateFileTape creates a blank tape image at path.
func CreateFileTape(path string, mam MAM) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrap(err, "cannot create tape image")
	}

	defer f.Close()

	if err := writeMAM(int(f.Fd()), &mam); err != nil {
		return err
	}

	return unix.Fsync(int(f.Fd()))
}

// OpenFileTape opens and locks an existing tape image. The medium is not loaded until Load is
// called.
func OpenFileTape(path string) (*FileTape, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open tape image")
	}

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "tape image %s is in use", path)
	}

	return &FileTape{f: f, fd: fd, path: path}, nil
}

// Close releases the image lock.
func (ft *FileTape) Close() error {
	unix.Flock(ft.fd, unix.LOCK_UN)
	return ft.f.Close()
}

func writeMAM(fd int, mam *MAM) error {
	enc, err := yaml.Marshal(mam)
	if err != nil {
		return errors.Wrap(err, "cannot encode MAM")
	}

	if len(enc) > mamAreaSize-12 {
		return errors.Errorf("encoded MAM too large: %d bytes", len(enc))
	}

	buf := make([]byte, mamAreaSize)
	copy(buf, fileMagic)
	binary.BigEndian.PutUint32(buf[8:], uint32(len(enc)))
	copy(buf[12:], enc)

	if _, err := unix.Pwrite(fd, buf, 0); err != nil {
		return errors.Wrap(err, "cannot write MAM")
	}

	return nil
}

func (ft *FileTape) readMAM() error {
	buf := make([]byte, mamAreaSize)

	if n, err := unix.Pread(ft.fd, buf, 0); err != nil {
		return errors.Wrap(err, "cannot read MAM")
	} else if n < mamAreaSize || !bytes.Equal(buf[:8], []byte(fileMagic)) {
		return ErrCorruptImage
	}

	l := binary.BigEndian.Uint32(buf[8:])
	if l > mamAreaSize-12 {
		return ErrCorruptImage
	}

	var mam MAM
	if err := yaml.Unmarshal(buf[12:12+l], &mam); err != nil {
		return errors.Wrap(ErrCorruptImage, err.Error())
	}

	ft.mam = mam
	return nil
}

// scan rebuilds the block index from the record headers.
func (ft *FileTape) scan() error {
	var st unix.Stat_t

	if err := unix.Fstat(ft.fd, &st); err != nil {
		return errors.Wrap(err, "cannot stat tape image")
	}

	ft.records = ft.records[:0]
	hdr := make([]byte, recHeaderSize)

	for off := int64(mamAreaSize); off < st.Size; {
		if n, err := unix.Pread(ft.fd, hdr, off); err != nil {
			return errors.Wrapf(err, "cannot read record at %d", off)
		} else if n < recHeaderSize {
			return ErrCorruptImage
		}

		r := record{
			typ:     BlockType(hdr[0]),
			size:    int(binary.BigEndian.Uint32(hdr[4:])),
			medSize: int(binary.BigEndian.Uint32(hdr[8:])),
			off:     off,
		}
		keyLen := int(binary.BigEndian.Uint16(hdr[2:]))

		if r.typ != BLOCK_DATA && r.typ != BLOCK_FILEMARK {
			return ErrCorruptImage
		}

		if hdr[1]&recFlagEncrypted != 0 {
			key := make([]byte, keyLen)
			if _, err := unix.Pread(ft.fd, key, off+recHeaderSize+int64(r.size)); err != nil {
				return errors.Wrap(err, "cannot read block key")
			}
			r.enc = &Encryption{Key: key}
		}

		ft.records = append(ft.records, r)
		off += recHeaderSize + int64(r.size) + int64(keyLen)
	}

	return nil
}

func (ft *FileTape) Load() (*MAM, error) {
	if err := ft.readMAM(); err != nil {
		return nil, err
	}

	if err := ft.scan(); err != nil {
		return &ft.mam, err
	}

	ft.loaded = true
	ft.pos = 0
	ft.mam.LoadCount++
	ft.updateRemaining()

	return &ft.mam, nil
}

func (ft *FileTape) Unload() error {
	if !ft.loaded {
		return ErrNoMedium
	}

	ft.loaded = false
	ft.pos = 0
	return nil
}

func (ft *FileTape) RewriteMAM() error {
	if !ft.loaded {
		return ErrNoMedium
	}

	if err := writeMAM(ft.fd, &ft.mam); err != nil {
		return err
	}

	return unix.Fsync(ft.fd)
}

func (ft *FileTape) ReadBlock(buf []byte, sili bool) (Transfer, error) {
	r, err := ft.readRecord()
	if err != nil {
		return Transfer{}, err
	}

	data := make([]byte, r.size)
	if _, err := unix.Pread(ft.fd, data, r.off+recHeaderSize); err != nil {
		return Transfer{}, errors.Wrapf(err, "cannot read block %d", ft.pos-1)
	}

	return finishRead(buf, data, r.medSize, sili)
}

// endOffset returns the file offset just after the record before the head.
func (ft *FileTape) endOffset() int64 {
	if ft.pos == 0 {
		return mamAreaSize
	}

	r := ft.records[ft.pos-1]
	off := r.off + recHeaderSize + int64(r.size)
	if r.enc != nil {
		off += int64(len(r.enc.Key))
	}

	return off
}

func (ft *FileTape) appendRecord(r record, data []byte) error {
	off := ft.endOffset()

	if err := unix.Ftruncate(ft.fd, off); err != nil {
		return errors.Wrap(err, "cannot truncate tape image")
	}
	ft.truncate()

	buf := make([]byte, recHeaderSize, recHeaderSize+len(data))
	buf[0] = byte(r.typ)
	binary.BigEndian.PutUint32(buf[4:], uint32(r.size))
	binary.BigEndian.PutUint32(buf[8:], uint32(r.medSize))
	buf = append(buf, data...)

	if r.enc != nil {
		buf[1] |= recFlagEncrypted
		binary.BigEndian.PutUint16(buf[2:], uint16(len(r.enc.Key)))
		buf = append(buf, r.enc.Key...)
	}

	if _, err := unix.Pwrite(ft.fd, buf, off); err != nil {
		return errors.Wrap(err, "cannot write record")
	}

	r.off = off
	ft.records = append(ft.records, r)
	ft.pos++
	ft.updateRemaining()

	return nil
}

func (ft *FileTape) WriteBlock(data []byte, compression int, enc *Encryption) (Transfer, error) {
	if !ft.loaded {
		return Transfer{}, ErrNoMedium
	}

	r := record{
		typ:     BLOCK_DATA,
		size:    len(data),
		medSize: mediumSize(data, compression),
		enc:     copyEncryption(enc),
	}

	if err := ft.appendRecord(r, data); err != nil {
		return Transfer{}, err
	}

	return Transfer{Bytes: len(data), MediumBytes: r.medSize}, ft.checkOverflow()
}

func (ft *FileTape) WriteFilemarks(count uint32) error {
	if !ft.loaded {
		return ErrNoMedium
	}

	for i := uint32(0); i < count; i++ {
		if err := ft.appendRecord(record{typ: BLOCK_FILEMARK}, nil); err != nil {
			return err
		}
	}

	return nil
}

func (ft *FileTape) Format() error {
	if !ft.loaded {
		return ErrNoMedium
	}

	if err := unix.Ftruncate(ft.fd, mamAreaSize); err != nil {
		return errors.Wrap(err, "cannot truncate tape image")
	}

	ft.records = nil
	ft.pos = 0
	ft.updateRemaining()

	return nil
}
