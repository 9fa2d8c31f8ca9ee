// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package medium

// MemoryTape is an Engine holding the whole tape image in memory.
type MemoryTape struct {
	tape
	MAMWrites int
}

// NewMemoryTape returns an unloaded in-memory cartridge with the given auxiliary memory.
func NewMemoryTape(mam MAM) *MemoryTape {
	return &MemoryTape{tape: tape{mam: mam}}
}

func (m *MemoryTape) Load() (*MAM, error) {
	m.loaded = true
	m.pos = 0
	m.mam.LoadCount++
	return &m.mam, nil
}

func (m *MemoryTape) Unload() error {
	if !m.loaded {
		return ErrNoMedium
	}

	m.loaded = false
	m.pos = 0
	return nil
}

func (m *MemoryTape) RewriteMAM() error {
	if !m.loaded {
		return ErrNoMedium
	}

	m.MAMWrites++
	return nil
}

func (m *MemoryTape) ReadBlock(buf []byte, sili bool) (Transfer, error) {
	r, err := m.readRecord()
	if err != nil {
		return Transfer{}, err
	}

	return finishRead(buf, r.data, r.medSize, sili)
}

func (m *MemoryTape) WriteBlock(data []byte, compression int, enc *Encryption) (Transfer, error) {
	if !m.loaded {
		return Transfer{}, ErrNoMedium
	}

	m.truncate()
	r := record{
		typ:     BLOCK_DATA,
		size:    len(data),
		medSize: mediumSize(data, compression),
		enc:     copyEncryption(enc),
		data:    append([]byte(nil), data...),
	}
	m.records = append(m.records, r)
	m.pos++
	m.updateRemaining()

	return Transfer{Bytes: len(data), MediumBytes: r.medSize}, m.checkOverflow()
}

func (m *MemoryTape) WriteFilemarks(count uint32) error {
	if !m.loaded {
		return ErrNoMedium
	}

	if count == 0 {
		return nil
	}

	m.truncate()
	for i := uint32(0); i < count; i++ {
		m.records = append(m.records, record{typ: BLOCK_FILEMARK})
		m.pos++
	}

	return nil
}

func (m *MemoryTape) Format() error {
	if !m.loaded {
		return ErrNoMedium
	}

	m.records = nil
	m.pos = 0
	m.updateRemaining()
	return nil
}
