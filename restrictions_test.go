// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/vtape/medium"
	"github.com/dswarbrick/vtape/scsi"
)

func (tu *testUnit) write(payload string) *Command {
	return tu.exec(cdbWrite(false, uint32(len(payload))), []byte(payload))
}

func TestWORMWrites(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_WORM)
	tu.writeBlocks(t, 3)

	// Only end of data is writable
	for block := uint32(0); block < 3; block++ {
		tu.run(cdbLocate(block))
		assertSense(t, tu.write("again"), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)
		assert.Equal(uint64(block), tu.Position().Block)
	}

	tu.run(cdbLocate(3))
	assert.Equal(scsi.GOOD, tu.write("append").Status)

	// An explicit grant for the block under the head allows one overwrite
	tu.run(cdbLocate(1))
	require.Equal(t, scsi.GOOD, tu.run(cdbAllowOverwrite(OVERWRITE_CURRENT, 0, 1)).Status)
	assert.Equal(scsi.GOOD, tu.write("replace").Status)
	assert.Equal(uint64(2), tu.Position().Block)
	assert.Equal(medium.BLOCK_EOD, tu.Position().Type)

	// A grant for another block does not help
	tu.run(cdbLocate(0))
	tu.allowOverwrite = OVERWRITE_CURRENT
	tu.allowOverwriteBlock = 1
	assertSense(t, tu.write("again"), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)
}

func TestWORMFilemarkErase(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_WORM)
	tu.writeBlocks(t, 2)

	tu.run(cdbLocate(1))
	assertSense(t, tu.run(cdbWriteFilemarks(1)), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)

	tu.run(cdbRewind)
	cmd := tu.run(cdbWriteFilemarks(1))
	assert.Equal(scsi.GOOD, cmd.Status)
	assert.Equal(uint8(0), cmd.Sense.Key)
	assert.Equal(uint64(1), tu.Position().Block)
	assert.Equal(medium.BLOCK_EOD, tu.Position().Type)

	tu.run(cdbRewind)
	assertSense(t, tu.run(cdbRead(0, 10)), scsi.NO_SENSE, scsi.ASC_FILEMARK_DETECTED)
}

func TestAllowOverwrite(t *testing.T) {
	testCases := []struct {
		desc      string
		mode      byte
		partition byte
		block     uint64
		key       uint8
		asc       uint16
		grant     uint8
		grantBlk  uint64
	}{
		{desc: "disabled", mode: 0, grant: OVERWRITE_DENIED, grantBlk: 2},
		{desc: "current position", mode: 1, block: 2, grant: OVERWRITE_CURRENT, grantBlk: 2},
		{desc: "mismatched block", mode: 1, block: 7, key: scsi.ILLEGAL_REQUEST,
			asc: scsi.ASC_SEQUENTIAL_POSITIONING_ERROR, grant: OVERWRITE_DENIED, grantBlk: overwriteBlockInvalid},
		{desc: "partition", mode: 1, partition: 1, block: 2, key: scsi.ILLEGAL_REQUEST,
			asc: scsi.ASC_INVALID_FIELD_IN_CDB, grant: OVERWRITE_DENIED, grantBlk: 2},
		{desc: "format", mode: 2, grant: OVERWRITE_FORMAT, grantBlk: 2},
		{desc: "reserved mode", mode: 3, key: scsi.ILLEGAL_REQUEST, asc: scsi.ASC_INVALID_FIELD_IN_CDB,
			grant: OVERWRITE_DENIED, grantBlk: 2},
		{desc: "mode clamped", mode: 0x0f, key: scsi.ILLEGAL_REQUEST, asc: scsi.ASC_INVALID_FIELD_IN_CDB,
			grant: OVERWRITE_DENIED, grantBlk: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert := assert.New(t)
			tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
			tu.writeBlocks(t, 3)
			tu.run(cdbLocate(2))

			// Start from a valid grant so that every mode must clear it first
			tu.allowOverwrite = OVERWRITE_CURRENT
			tu.allowOverwriteBlock = 2

			cmd := tu.run(cdbAllowOverwrite(tc.mode, tc.partition, tc.block))
			if tc.key != 0 {
				assertSense(t, cmd, tc.key, tc.asc)
			} else {
				assert.Equal(scsi.GOOD, cmd.Status)
			}

			assert.Equal(tc.grant, tu.allowOverwrite)
			assert.Equal(tc.grantBlk, tu.allowOverwriteBlock)
		})
	}
}

func TestAllowOverwriteSentinel(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	tu.setAppendOnly(t)
	tu.writeBlocks(t, 3)
	tu.run(cdbRewind)

	cmd := tu.run(cdbAllowOverwrite(OVERWRITE_CURRENT, 0, 1))
	assertSense(t, cmd, scsi.ILLEGAL_REQUEST, scsi.ASC_SEQUENTIAL_POSITIONING_ERROR)
	assert.NotEqual(uint64(0), tu.allowOverwriteBlock)
	assert.False(tu.overwriteGranted(0))

	// Even with the grant flag forced on, the sentinel matches no block
	tu.allowOverwrite = OVERWRITE_CURRENT
	assert.False(tu.overwriteGranted(0))
	assertSense(t, tu.write("block 0"), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)

	unloaded := newTestUnit(t, testModel, "LTO4", medium.MEDIA_TYPE_DATA)
	assertSense(t, unloaded.run(cdbAllowOverwrite(OVERWRITE_CURRENT, 0, 0)), scsi.NOT_READY,
		scsi.ASC_MEDIUM_NOT_PRESENT)
}

// setAppendOnly selects append-only write mode through the device configuration extension page.
func (tu *testUnit) setAppendOnly(t *testing.T) {
	t.Helper()

	p := devConfExtPayload(WRITE_MODE_APPEND_ONLY, 0)
	require.Equal(t, scsi.GOOD, tu.selectModes(true, p).Status)
	require.True(t, tu.appendOnly)
}

func TestOverwriteWithoutAppendOnly(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	tu.writeBlocks(t, 12)

	tu.run(cdbLocate(5))
	assert.Equal(scsi.GOOD, tu.write("at five").Status)

	tu.writeBlocks(t, 6)
	tu.run(cdbLocate(10))
	assert.Equal(scsi.GOOD, tu.write("at ten").Status)
	assert.Equal(uint64(0), tu.Logs.TapeAlert())
}

func TestAppendOnly(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	tu.setAppendOnly(t)
	tu.writeBlocks(t, 12)

	// No grant
	tu.run(cdbLocate(5))
	assertSense(t, tu.write("at five"), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)
	assert.NotZero(tu.Logs.TapeAlert() & TA_WRITE_PROTECT)
	tu.Logs.SetTapeAlert(0)

	// Grant for the block under the head
	require.Equal(t, scsi.GOOD, tu.run(cdbAllowOverwrite(OVERWRITE_CURRENT, 0, 5)).Status)
	assert.Equal(scsi.GOOD, tu.write("at five").Status)
	assert.Equal(uint64(0), tu.Logs.TapeAlert())

	tu.writeBlocks(t, 6)

	// Grant for block 5 while the head is at block 10
	tu.run(cdbLocate(5))
	require.Equal(t, scsi.GOOD, tu.run(cdbAllowOverwrite(OVERWRITE_CURRENT, 0, 5)).Status)
	tu.run(cdbLocate(10))
	assertSense(t, tu.write("at ten"), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)
	assert.Equal(uint8(OVERWRITE_DENIED), tu.allowOverwrite)
	assert.NotZero(tu.Logs.TapeAlert() & TA_WRITE_PROTECT)

	// The denial revoked the grant
	tu.run(cdbLocate(5))
	assertSense(t, tu.write("at five"), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)

	// Write protect does not mask the append only denial
	tu.run(cdbLocate(3))
	require.Equal(t, scsi.GOOD, tu.run(cdbAllowOverwrite(OVERWRITE_CURRENT, 0, 3)).Status)
	tu.run(cdbLocate(1))
	tu.Logs.SetTapeAlert(0)
	tu.writeProtect = true
	assertSense(t, tu.write("at one"), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)
	assert.Equal(uint8(OVERWRITE_DENIED), tu.allowOverwrite)
	assert.NotZero(tu.Logs.TapeAlert() & TA_WRITE_PROTECT)
	tu.writeProtect = false

	// End of data stays writable
	tu.run(cdbSpace(3, 0))
	assert.Equal(scsi.GOOD, tu.write("append").Status)
}

func TestAppendOnlyFormat(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	tu.setAppendOnly(t)
	tu.writeBlocks(t, 2)
	tu.run(cdbRewind)

	cdbFormat := []byte{scsi.FORMAT_MEDIUM, 0, 0, 0, 0, 0}
	assertSense(t, tu.run(cdbFormat), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)

	// A format grant only covers FORMAT MEDIUM
	require.Equal(t, scsi.GOOD, tu.run(cdbAllowOverwrite(OVERWRITE_FORMAT, 0, 0)).Status)
	assertSense(t, tu.write("block 0"), scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)

	require.Equal(t, scsi.GOOD, tu.run(cdbAllowOverwrite(OVERWRITE_FORMAT, 0, 0)).Status)
	assert.Equal(scsi.GOOD, tu.run(cdbFormat).Status)
	assert.Equal(medium.BLOCK_EOD, tu.Position().Type)
}

func TestWriteDenied(t *testing.T) {
	testCases := []struct {
		desc  string
		media string
		typ   medium.MediumType
		key   uint8
		asc   uint16
	}{
		{desc: "write protected", media: "LTO3", typ: medium.MEDIA_TYPE_DATA, key: scsi.DATA_PROTECT,
			asc: scsi.ASC_WRITE_PROTECT},
		{desc: "write protected worm", media: "LTO3", typ: medium.MEDIA_TYPE_WORM, key: scsi.DATA_PROTECT,
			asc: scsi.ASC_WRITE_PROTECT},
		{desc: "cleaning cartridge", media: "LTO4", typ: medium.MEDIA_TYPE_CLEAN, key: scsi.NOT_READY,
			asc: scsi.ASC_CLEANING_CART_INSTALLED},
		{desc: "unknown medium type", media: "LTO4", typ: medium.MediumType(0x05), key: scsi.ILLEGAL_REQUEST,
			asc: scsi.ASC_MEDIUM_INCOMPATIBLE},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			tu := loadedUnit(t, tc.media, tc.typ)

			assertSense(t, tu.write("data"), tc.key, tc.asc)
			assert.Equal(t, uint64(0), tu.bytesWrittenI)
		})
	}
}

func TestMediumDensityMismatch(t *testing.T) {
	assert := assert.New(t)
	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)

	// First write from the beginning stamps the native density
	assert.Equal(scsi.GOOD, tu.write("first").Status)
	assert.Equal(uint8(0x46), tu.MAM().MediumDensityCode)
	assert.Equal(uint8(0x46), tu.MAM().FormattedDensityCode)
	assert.Equal(uint8(0x46), tu.Modes.DensityCode())

	tu.MAM().MediumDensityCode = 0x44
	assertSense(t, tu.write("second"), scsi.DATA_PROTECT, scsi.ASC_WRITE_PROTECT)

	tu.run(cdbRewind)
	assert.Equal(scsi.GOOD, tu.write("rewrite").Status)
	assert.Equal(uint8(0x46), tu.MAM().MediumDensityCode)
}

func TestEncryption(t *testing.T) {
	assert := assert.New(t)
	key := &medium.Encryption{Key: []byte{1, 2, 3, 4}}

	tu := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	require.NoError(t, tu.SetEncryption(ENCRYPT_ENABLE, DECRYPT_DECRYPT, key))
	require.Equal(t, scsi.GOOD, tu.write("secret").Status)
	tu.run(cdbRewind)
	assert.True(tu.Position().Encrypted())

	testCases := []struct {
		desc    string
		decrypt uint8
		key     []byte
		asc     uint16
	}{
		{desc: "matching key", decrypt: DECRYPT_DECRYPT, key: []byte{1, 2, 3, 4}},
		{desc: "mixed mode", decrypt: DECRYPT_MIXED, key: []byte{1, 2, 3, 4}},
		{desc: "wrong key", decrypt: DECRYPT_DECRYPT, key: []byte{1, 2, 3, 5}, asc: scsi.ASC_INCORRECT_KEY},
		{desc: "short key", decrypt: DECRYPT_DECRYPT, key: []byte{1, 2, 3}, asc: scsi.ASC_INCORRECT_KEY},
		{desc: "no key", decrypt: DECRYPT_DECRYPT, asc: scsi.ASC_INCORRECT_KEY},
		{desc: "decryption disabled", decrypt: DECRYPT_DISABLE, key: []byte{1, 2, 3, 4}, asc: scsi.ASC_UNABLE_TO_DECRYPT},
		{desc: "raw", decrypt: DECRYPT_RAW, key: []byte{1, 2, 3, 4}, asc: scsi.ASC_UNABLE_TO_DECRYPT},
	}

	for _, tc := range testCases {
		var enc *medium.Encryption
		if tc.key != nil {
			enc = &medium.Encryption{Key: tc.key}
		}
		require.NoError(t, tu.SetEncryption(ENCRYPT_DISABLE, tc.decrypt, enc))

		tu.run(cdbRewind)
		cmd := tu.run(cdbRead(0, 6))

		if tc.asc == 0 {
			assert.Equal(scsi.GOOD, cmd.Status, tc.desc)
			assert.Equal([]byte("secret"), cmd.Data[:cmd.Len], tc.desc)
		} else {
			assertSense(t, cmd, scsi.DATA_PROTECT, tc.asc)
			assert.Equal(0, cmd.Len, tc.desc)
			assert.Equal(uint64(0), tu.Position().Block, tc.desc)
		}
	}

	// Unencrypted data while decryption is mandatory
	plain := loadedUnit(t, "LTO4", medium.MEDIA_TYPE_DATA)
	require.Equal(t, scsi.GOOD, plain.write("plain").Status)
	require.NoError(t, plain.SetEncryption(ENCRYPT_DISABLE, DECRYPT_DECRYPT, key))
	plain.run(cdbRewind)
	assertSense(t, plain.run(cdbRead(0, 5)), scsi.DATA_PROTECT, scsi.ASC_UNENCRYPTED_DATA)

	require.NoError(t, plain.SetEncryption(ENCRYPT_DISABLE, DECRYPT_MIXED, key))
	assert.Equal(scsi.GOOD, plain.run(cdbRead(0, 5)).Status)
}
