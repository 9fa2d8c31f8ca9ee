// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/vtape/medium"
	"github.com/dswarbrick/vtape/scsi"
	"github.com/dswarbrick/vtape/utils"
)

func TestReadWriteVariable(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)

	cmd := tu.exec(cdbWrite(false, 5), []byte("hello"))
	require.Equal(t, scsi.GOOD, cmd.Status)
	assert.Equal(uint64(1), tu.Position().Block)
	assert.Equal(uint64(5), tu.bytesWrittenI)
	assert.Equal(uint64(5), tu.bytesWrittenM)

	require.Equal(t, scsi.GOOD, tu.run(cdbRewind).Status)

	cmd = tu.run(cdbRead(0, 5))
	require.Equal(t, scsi.GOOD, cmd.Status)
	assert.Equal([]byte("hello"), cmd.Data[:cmd.Len])
	assert.Equal(uint64(5), tu.bytesReadI)

	// Longer read than the block without SILI reports the residue
	tu.run(cdbRewind)
	cmd = tu.run(cdbRead(0, 8))
	assertSense(t, cmd, scsi.NO_SENSE, scsi.ASC_NO_ADDITIONAL_SENSE)
	assert.True(cmd.Sense.ILI)
	assert.Equal(uint32(3), cmd.Sense.Info)
	assert.Equal([]byte("hello"), cmd.Data[:cmd.Len])

	tu.run(cdbRewind)
	cmd = tu.run(cdbRead(0x02, 8))
	assert.Equal(scsi.GOOD, cmd.Status)
	assert.Equal(5, cmd.Len)

	// Past end of data
	cmd = tu.run(cdbRead(0, 5))
	assertSense(t, cmd, scsi.BLANK_CHECK, scsi.ASC_END_OF_DATA_DETECTED)
	assert.Equal(0, cmd.Len)
}

func TestReadWriteFixed(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)

	// Fixed block mode without a block length
	assertSense(t, tu.run(cdbRead(0x01, 2)), scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	assertSense(t, tu.exec(cdbWrite(true, 2), []byte("abcdefgh")), scsi.ILLEGAL_REQUEST,
		scsi.ASC_INVALID_FIELD_IN_CDB)
	assert.Equal(uint64(0), tu.Position().Block)
	assert.Equal(uint64(0), tu.bytesWrittenI)

	tu.Modes.SetBlockLength(4)

	cmd := tu.exec(cdbWrite(true, 2), []byte("abcdefgh"))
	require.Equal(t, scsi.GOOD, cmd.Status)
	require.Equal(t, scsi.GOOD, tu.run(cdbWriteFilemarks(1)).Status)
	assert.Equal(uint64(3), tu.Position().Block)

	tu.run(cdbRewind)

	// Four blocks requested, the filemark stops the transfer after two
	cmd = tu.run(cdbRead(0x01, 4))
	assertSense(t, cmd, scsi.NO_SENSE, scsi.ASC_FILEMARK_DETECTED)
	assert.True(cmd.Sense.Filemark)
	assert.True(cmd.Sense.InfoValid)
	assert.Equal(uint32(2), cmd.Sense.Info)
	assert.Equal([]byte("abcdefgh"), cmd.Data[:cmd.Len])
	assert.Equal(uint64(3), tu.Position().Block)
}

func TestReadRejectsSILIWithFixed(t *testing.T) {
	testCases := []struct {
		desc   string
		loaded bool
	}{
		{desc: "loaded", loaded: true},
		{desc: "unloaded"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			tu := newTestUnit(t, testModel, "LTO4", medium.MEDIA_TYPE_DATA)
			if tc.loaded {
				require.NoError(t, tu.LoadMedium())
			}

			cmd := tu.run(cdbRead(0x03, 1))
			assertSense(t, cmd, scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
			assert.Equal(t, 0, cmd.Len)
		})
	}
}

func TestReadWriteZeroLength(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)

	assert.Equal(scsi.GOOD, tu.run(cdbRead(0, 0)).Status)
	assert.Equal(scsi.GOOD, tu.exec(cdbWrite(false, 0), nil).Status)
	assert.Equal(uint64(0), tu.Position().Block)
}

func TestSpace(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)

	tu.writeBlocks(t, 3)
	tu.run(cdbWriteFilemarks(1))
	tu.writeBlocks(t, 2)
	tu.run(cdbRewind)

	testCases := []struct {
		desc  string
		code  byte
		count int32
		block uint64
	}{
		{desc: "forward blocks", code: 0, count: 2, block: 2},
		{desc: "reverse block", code: 0, count: -1, block: 1},
		{desc: "zero count", code: 0, count: 0, block: 1},
		{desc: "forward filemark", code: 1, count: 1, block: 4},
		{desc: "end of data", code: 3, count: 0, block: 6},
		{desc: "reverse filemark", code: 1, count: -1, block: 3},
	}

	for _, tc := range testCases {
		cmd := tu.run(cdbSpace(tc.code, tc.count))
		assert.Equal(scsi.GOOD, cmd.Status, tc.desc)
		assert.Equal(tc.block, tu.Position().Block, tc.desc)
	}

	// Spacing over a filemark by blocks stops after it
	tu.run(cdbRewind)
	cmd := tu.run(cdbSpace(0, 5))
	assertSense(t, cmd, scsi.NO_SENSE, scsi.ASC_FILEMARK_DETECTED)
	assert.Equal(uint32(2), cmd.Sense.Info)
	assert.Equal(uint64(4), tu.Position().Block)
}

func TestSpaceUnsupportedCodes(t *testing.T) {
	loaded := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	unloaded := newTestUnit(t, testModel, "LTO4", medium.MEDIA_TYPE_DATA)

	for _, code := range []byte{2, 4, 5, 6, 7} {
		for _, count := range []int32{0, 1, -1} {
			assertSense(t, loaded.run(cdbSpace(code, count)), scsi.ILLEGAL_REQUEST,
				scsi.ASC_INVALID_FIELD_IN_PARMS)
			assertSense(t, unloaded.run(cdbSpace(code, count)), scsi.ILLEGAL_REQUEST,
				scsi.ASC_INVALID_FIELD_IN_PARMS)
		}
	}

	assertSense(t, unloaded.run(cdbSpace(0, 1)), scsi.NOT_READY, scsi.ASC_MEDIUM_NOT_PRESENT)
}

func TestLocate(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	tu.writeBlocks(t, 4)

	assert.Equal(scsi.GOOD, tu.run(cdbLocate(2)).Status)
	assert.Equal(uint64(2), tu.Position().Block)

	cmd := tu.run(cdbLocate(10))
	assertSense(t, cmd, scsi.BLANK_CHECK, scsi.ASC_END_OF_DATA_DETECTED)

	cdb := cdbLocate(1)
	cdb[1] = 0x02
	cdb[8] = 1
	assertSense(t, tu.run(cdb), scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
}

func TestWriteFilemarksEndOfMedium(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	tu.MAM().MaxCapacity = 16

	cmd := tu.exec(cdbWrite(false, 16), make([]byte, 16))
	require.Equal(t, scsi.GOOD, cmd.Status)

	// No filemarks written: no end of medium report
	assert.Equal(scsi.GOOD, tu.run(cdbWriteFilemarks(0)).Status)

	cmd = tu.run(cdbWriteFilemarks(1))
	assertSense(t, cmd, scsi.NO_SENSE, scsi.ASC_NO_ADDITIONAL_SENSE)
	assert.True(cmd.Sense.EOM)
	assert.Equal(uint64(0), tu.MAM().RemainingCapacity)
	assert.Equal(uint64(2), tu.Position().Block)
}

func TestFormatAndErase(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	tu.writeBlocks(t, 3)

	cdbFormat := []byte{scsi.FORMAT_MEDIUM, 0, 0, 0, 0, 0}
	cdbErase := []byte{scsi.ERASE_6, 0x01, 0, 0, 0, 0}

	assertSense(t, tu.run(cdbFormat), scsi.ILLEGAL_REQUEST, scsi.ASC_POSITION_PAST_BOM)
	assertSense(t, tu.run(cdbErase), scsi.NOT_READY, scsi.ASC_INVALID_FIELD_IN_CDB)

	tu.run(cdbRewind)
	tu.MAM().MediumDensityCode = 0x44
	assert.Equal(scsi.GOOD, tu.run(cdbFormat).Status)
	assert.Equal(uint8(0x46), tu.MAM().MediumDensityCode)
	assert.Equal(medium.BLOCK_EOD, tu.Position().Type)

	tu.writeBlocks(t, 1)
	tu.run(cdbRewind)
	assert.Equal(scsi.GOOD, tu.run(cdbErase).Status)
	assert.Equal(medium.BLOCK_EOD, tu.Position().Type)

	unloaded := newTestUnit(t, testModel, "LTO4", medium.MEDIA_TYPE_DATA)
	assertSense(t, unloaded.run(cdbErase), scsi.NOT_READY, scsi.ASC_MEDIUM_NOT_PRESENT)

	// A write protected medium keeps the restriction sense wherever the head is
	tu.writeProtect = true
	assertSense(t, tu.run(cdbErase), scsi.DATA_PROTECT, scsi.ASC_WRITE_PROTECT)
	tu.writeProtect = false
	tu.writeBlocks(t, 1)
	tu.writeProtect = true
	assertSense(t, tu.run(cdbErase), scsi.DATA_PROTECT, scsi.ASC_WRITE_PROTECT)
}

func TestReadPosition(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)

	cmd := tu.run(cdbReadPosition)
	require.Equal(t, scsi.GOOD, cmd.Status)
	require.Equal(t, 20, cmd.Len)
	assert.Equal(byte(0x80), cmd.Data[0])

	tu.writeBlocks(t, 3)
	cmd = tu.run(cdbReadPosition)
	assert.Equal(byte(0), cmd.Data[0])
	assert.Equal(uint32(3), binary.BigEndian.Uint32(cmd.Data[4:]))
	assert.Equal(uint32(3), binary.BigEndian.Uint32(cmd.Data[8:]))

	cdb := append([]byte(nil), cdbReadPosition...)
	cdb[1] = 0x06
	assertSense(t, tu.run(cdb), scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
}

func TestReadBlockLimits(t *testing.T) {
	assert := assert.New(t)
	tu := newTestUnit(t, testModel, "LTO4", medium.MEDIA_TYPE_DATA)

	cmd := tu.run(cdbReadBlockLimits)
	require.Equal(t, scsi.GOOD, cmd.Status)
	require.Equal(t, 6, cmd.Len)
	assert.Equal(uint32(1<<16), utils.GetBE24(cmd.Data[1:]))
	assert.Equal(uint16(1), binary.BigEndian.Uint16(cmd.Data[4:]))
}

func TestReportDensity(t *testing.T) {
	assert := assert.New(t)
	tu := newTestUnit(t, testModel, "LTO3", medium.MEDIA_TYPE_DATA)

	cdb := []byte{scsi.REPORT_DENSITY_SUPPORT, 0, 0, 0, 0, 0, 0, 0, 0xff, 0}

	cmd := tu.run(cdb)
	require.Equal(t, scsi.GOOD, cmd.Status)
	require.Equal(t, 56, cmd.Len)

	d := cmd.Data[4:]
	assert.Equal(uint16(54), binary.BigEndian.Uint16(cmd.Data))
	assert.Equal(byte(0x46), d[0])
	assert.Equal(byte(0xa0), d[2])
	assert.Equal(uint32(12725), utils.GetBE24(d[5:]))
	assert.Equal(uint16(127), binary.BigEndian.Uint16(d[8:]))
	assert.Equal(uint16(896), binary.BigEndian.Uint16(d[10:]))
	assert.Equal(uint32(800000), binary.BigEndian.Uint32(d[12:]))
	assert.Equal("LTO-CVE ", string(d[16:24]))
	assert.Equal("U-416   ", string(d[24:32]))
	assert.Equal("Ultrium 4/16T       ", string(d[32:52]))

	// Truncated to the allocation length
	cdb[8] = 8
	assert.Equal(8, tu.run(cdb).Len)

	cdb[1] = 0x01
	assertSense(t, tu.run(cdb), scsi.NOT_READY, scsi.ASC_MEDIUM_NOT_PRESENT)

	// Write protected medium clears WRTOK
	require.NoError(t, tu.LoadMedium())
	cdb[8] = 0xff
	cmd = tu.run(cdb)
	require.Equal(t, scsi.GOOD, cmd.Status)
	assert.Equal(byte(0x20), cmd.Data[6])

	cdb[1] = 0x02
	assertSense(t, tu.run(cdb), scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
}

func TestReadMediaSerial(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)

	cdb := []byte{scsi.READ_MEDIA_SERIAL_NUMBER, 0x01, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0}
	cmd := tu.run(cdb)
	require.Equal(t, scsi.GOOD, cmd.Status)
	require.Equal(t, 20, cmd.Len)
	assert.Equal(uint32(16), binary.BigEndian.Uint32(cmd.Data))
	assert.Equal(tu.MAM().Serial, string(cmd.Data[4:20]))
}

// testPrimary records a persistent reservation and counts delegated calls.
type testPrimary struct {
	NopPrimary
	resType uint8
	key     uint64
	calls   int
}

func (p *testPrimary) Reservation() (uint8, uint64) {
	return p.resType, p.key
}

func (p *testPrimary) PersistentReserveIn(*Unit, *Command) scsi.Status {
	p.calls++
	return scsi.GOOD
}

func (p *testPrimary) WriteAttribute(*Unit, *Command) scsi.Status {
	p.calls++
	return scsi.GOOD
}

func TestReservations(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	primary := &testPrimary{}
	tu.primary = primary

	cdbReserve := []byte{scsi.RESERVE_6, 0, 0, 0, 0, 0}
	cdbRelease := []byte{scsi.RELEASE_6, 0, 0, 0, 0, 0}
	cdbPRIn := []byte{scsi.PERSISTENT_RESERVE_IN, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	cdbPROut := []byte{scsi.PERSISTENT_RESERVE_OUT, 0, 0, 0, 0, 0, 0, 0, 0x18, 0}

	assert.Equal(scsi.GOOD, tu.run(cdbReserve).Status)
	assert.Equal(scsi.RESERVATION_CONFLICT, tu.run(cdbPRIn).Status)
	assert.Equal(scsi.RESERVATION_CONFLICT, tu.exec(cdbPROut, make([]byte, 0x18)).Status)
	assert.Equal(0, primary.calls)

	assert.Equal(scsi.GOOD, tu.run(cdbRelease).Status)
	assert.Equal(scsi.GOOD, tu.run(cdbPRIn).Status)
	assert.Equal(1, primary.calls)

	// A registered persistent reservation key blocks the legacy reservation
	primary.key = 0x1234
	assert.Equal(scsi.RESERVATION_CONFLICT, tu.run(cdbReserve).Status)
	assert.Equal(scsi.RESERVATION_CONFLICT, tu.run(cdbRelease).Status)
	primary.resType = 1
	assert.Equal(scsi.GOOD, tu.run(cdbRelease).Status)
}

func TestAttributes(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	primary := &testPrimary{}
	tu.primary = primary

	readAttr := []byte{scsi.READ_ATTRIBUTE, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0, 0, 0}
	assert.Equal(scsi.GOOD, tu.run(readAttr).Status)

	readAttr[1] = 0x02
	assertSense(t, tu.run(readAttr), scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)

	writes := tu.tape.MAMWrites
	writeAttr := []byte{scsi.WRITE_ATTRIBUTE, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x10, 0, 0}
	assert.Equal(scsi.GOOD, tu.exec(writeAttr, make([]byte, 0x10)).Status)
	assert.Equal(1, primary.calls)
	assert.Equal(writes+1, tu.tape.MAMWrites)

	// Parameter list larger than the buffer
	binary.BigEndian.PutUint32(writeAttr[10:], 1<<20)
	assertSense(t, tu.run(writeAttr), scsi.ILLEGAL_REQUEST, scsi.ASC_PARAMETER_LIST_LENGTH_ERROR)

	unloaded := newTestUnit(t, testModel, "LTO4", medium.MEDIA_TYPE_DATA)
	assertSense(t, unloaded.run(readAttr), scsi.NOT_READY, scsi.ASC_MEDIUM_NOT_PRESENT)
}

func TestMiscCommands(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)

	display := make([]byte, 17)
	display[0] = 0x20
	copy(display[1:], "HELLO   WORLD   ")

	testCases := []struct {
		desc    string
		cdb     []byte
		payload []byte
	}{
		{"load display", []byte{scsi.LOAD_DISPLAY, 0, 0, 0, 17, 0}, display},
		{"prevent removal", []byte{scsi.PREVENT_ALLOW_MEDIUM, 0, 0, 0, 1, 0}, nil},
		{"security protocol in", make12(scsi.SECURITY_PROTOCOL_IN), nil},
		{"security protocol out", []byte{scsi.SECURITY_PROTOCOL_OUT, 0x20, 0, 0, 0x80, 0, 0, 0, 0, 1, 0, 0}, make([]byte, 512)},
		{"maintenance in", make12(scsi.MAINTENANCE_IN), nil},
		{"maintenance out", make12(scsi.MAINTENANCE_OUT), nil},
	}

	for _, tc := range testCases {
		assert.Equal(scsi.GOOD, tu.exec(tc.cdb, tc.payload).Status, tc.desc)
	}
}

func make12(op byte) []byte {
	cdb := make([]byte, 12)
	cdb[0] = op
	return cdb
}
