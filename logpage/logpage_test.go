// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package logpage

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dswarbrick/vtape/scsi"
)

func TestPageLayouts(t *testing.T) {
	tests := []struct {
		desc string
		page *Page
		size int
	}{
		{desc: "write errors", page: NewWriteErrorCounter(), size: 4 + 6*8 + 12},
		{desc: "read errors", page: NewReadErrorCounter(), size: 4 + 6*8 + 12},
		{desc: "sequential access", page: NewSequentialAccess(), size: 4 + 4*12 + 4*8 + 12},
		{desc: "temperature", page: NewTemperature(), size: 4 + 2*6},
		{desc: "tape alert", page: NewTapeAlert(), size: 4 + 64*5},
		{desc: "tape usage", page: NewTapeUsage(), size: 4 + 11*4 + 4 + 8 + 4 + 2 + 2 + 2 + 8 + 4 + 2 + 2 + 2},
		{desc: "tape capacity", page: NewTapeCapacity(), size: 4 + 4*8},
		{desc: "data compression", page: NewDataCompression(), size: 4 + 2*6 + 8*8},
	}

	for _, tt := range tests {
		assert.Len(t, tt.page.Data, tt.size, tt.desc)
		assert.Equal(t, tt.page.Code, tt.page.Data[0], tt.desc)
		assert.Equal(t, uint16(tt.size-4), binary.BigEndian.Uint16(tt.page.Data[2:]), tt.desc)
	}
}

func TestParams(t *testing.T) {
	assert := assert.New(t)
	p := NewSequentialAccess()

	assert.True(SetParam(p.Data, SEQ_READ_DATA_AF_COMPRESSION, 0x0102030405060708))
	v, ok := Param(p.Data, SEQ_READ_DATA_AF_COMPRESSION)
	assert.True(ok)
	assert.Equal(uint64(0x0102030405060708), v)

	// 4 byte parameters are truncated
	assert.True(SetParam(p.Data, SEQ_CAPACITY_BOP_EOD, 0x1122334455))
	v, _ = Param(p.Data, SEQ_CAPACITY_BOP_EOD)
	assert.Equal(uint64(0x22334455), v)

	assert.False(SetParam(p.Data, 0x7777, 1))
	_, ok = Param(p.Data, 0x7777)
	assert.False(ok)

	v, _ = Param(NewTemperature().Data, TEMP_CURRENT)
	assert.Equal(uint64(35), v)
}

func TestRegistry(t *testing.T) {
	assert := assert.New(t)
	r := NewRegistry()

	require.NoError(t, r.Add(NewTapeAlert()))
	require.NoError(t, r.Add(NewWriteErrorCounter()))
	require.NoError(t, r.Add(NewSequentialAccess()))
	assert.Error(r.Add(NewTapeAlert()))

	assert.Equal([]byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x02, 0x0c, 0x2e}, r.Supported())

	_, ok := r.Read(scsi.LOG_TAPE_CAPACITY)
	assert.False(ok)

	calls := 0
	assert.True(r.SetRefresh(scsi.LOG_SEQUENTIAL_ACCESS, func(b []byte) {
		calls++
		SetParam(b, SEQ_WRITE_DATA_B4_COMPRESSION, 42)
	}))

	b, ok := r.Read(scsi.LOG_SEQUENTIAL_ACCESS)
	assert.True(ok)
	assert.Equal(1, calls)
	v, _ := Param(b, SEQ_WRITE_DATA_B4_COMPRESSION)
	assert.Equal(uint64(42), v)

	// The stored page is untouched by the refresh
	v, _ = Param(r.Lookup(scsi.LOG_SEQUENTIAL_ACCESS).Data, SEQ_WRITE_DATA_B4_COMPRESSION)
	assert.Equal(uint64(0), v)
}

func TestTapeAlert(t *testing.T) {
	assert := assert.New(t)
	r := NewRegistry()

	assert.Equal(uint64(0), r.TapeAlert())
	r.SetTapeAlert(0x100)

	require.NoError(t, r.Add(NewTapeAlert()))
	r.SetTapeAlert(0x100 | 1<<63)
	assert.Equal(uint64(0x100|1<<63), r.TapeAlert())

	// Flag 9 (write protect) is parameter 0x0009
	v, _ := Param(r.Lookup(scsi.LOG_TAPE_ALERT).Data, 0x0009)
	assert.Equal(uint64(1), v)

	r.SetTapeAlert(0)
	assert.Equal(uint64(0), r.TapeAlert())
}
