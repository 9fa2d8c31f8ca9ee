// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package logpage

import (
	"github.com/dswarbrick/vtape/scsi"
)

const (
	// Sequential access device page parameters
	SEQ_WRITE_DATA_B4_COMPRESSION = 0x0000
	SEQ_WRITE_DATA_AF_COMPRESSION = 0x0001
	SEQ_READ_DATA_B4_COMPRESSION  = 0x0002
	SEQ_READ_DATA_AF_COMPRESSION  = 0x0003
	SEQ_CAPACITY_BOP_EOD          = 0x0004
	SEQ_CAPACITY_BOP_EW           = 0x0005
	SEQ_CAPACITY_EW_LEOP          = 0x0006
	SEQ_CAPACITY_BOP_CURR         = 0x0007
	SEQ_CLEANING_REQUIRED         = 0x0100

	// Tape capacity page parameters
	CAP_MAIN_REMAINING = 0x0001
	CAP_ALT_REMAINING  = 0x0002
	CAP_MAIN_MAXIMUM   = 0x0003
	CAP_ALT_MAXIMUM    = 0x0004

	// Temperature page parameters
	TEMP_CURRENT   = 0x0000
	TEMP_REFERENCE = 0x0001

	TAPE_ALERT_FLAGS = 64
)

// errorCounterParams are shared by the write and read error counter pages.
var errorCounterParams = []param{
	{0x0000, PARAM_CTRL_COUNTER, 4}, // Errors corrected without substantial delay
	{0x0001, PARAM_CTRL_COUNTER, 4}, // Errors corrected with possible delays
	{0x0002, PARAM_CTRL_COUNTER, 4}, // Total rewrites or rereads
	{0x0003, PARAM_CTRL_COUNTER, 4}, // Total errors corrected
	{0x0004, PARAM_CTRL_COUNTER, 4}, // Times correction algorithm processed
	{0x0005, PARAM_CTRL_COUNTER, 8}, // Total bytes processed
	{0x0006, PARAM_CTRL_COUNTER, 4}, // Total uncorrected errors
}

func NewWriteErrorCounter() *Page {
	return build(scsi.LOG_WRITE_ERROR_COUNTER, "Write Error Counter", errorCounterParams)
}

func NewReadErrorCounter() *Page {
	return build(scsi.LOG_READ_ERROR_COUNTER, "Read Error Counter", errorCounterParams)
}

func NewSequentialAccess() *Page {
	return build(scsi.LOG_SEQUENTIAL_ACCESS, "Sequential Access Device", []param{
		{SEQ_WRITE_DATA_B4_COMPRESSION, PARAM_CTRL_COUNTER, 8},
		{SEQ_WRITE_DATA_AF_COMPRESSION, PARAM_CTRL_COUNTER, 8},
		{SEQ_READ_DATA_B4_COMPRESSION, PARAM_CTRL_COUNTER, 8},
		{SEQ_READ_DATA_AF_COMPRESSION, PARAM_CTRL_COUNTER, 8},
		{SEQ_CAPACITY_BOP_EOD, PARAM_CTRL_COUNTER, 4},
		{SEQ_CAPACITY_BOP_EW, PARAM_CTRL_COUNTER, 4},
		{SEQ_CAPACITY_EW_LEOP, PARAM_CTRL_COUNTER, 4},
		{SEQ_CAPACITY_BOP_CURR, PARAM_CTRL_COUNTER, 4},
		{SEQ_CLEANING_REQUIRED, PARAM_CTRL_COUNTER, 8},
	})
}

func NewTemperature() *Page {
	p := build(scsi.LOG_TEMPERATURE, "Temperature", []param{
		{TEMP_CURRENT, PARAM_CTRL_COUNTER, 2},
		{TEMP_REFERENCE, PARAM_CTRL_COUNTER, 2},
	})

	SetParam(p.Data, TEMP_CURRENT, 35)
	SetParam(p.Data, TEMP_REFERENCE, 50)
	return p
}

func NewTapeAlert() *Page {
	params := make([]param, 0, TAPE_ALERT_FLAGS)
	for i := 1; i <= TAPE_ALERT_FLAGS; i++ {
		params = append(params, param{uint16(i), PARAM_CTRL_FLAG, 1})
	}

	return build(scsi.LOG_TAPE_ALERT, "TapeAlert", params)
}

func NewTapeUsage() *Page {
	return build(scsi.LOG_TAPE_USAGE, "Tape Usage", []param{
		{0x0001, PARAM_CTRL_COUNTER, 4}, // Thread count
		{0x0002, PARAM_CTRL_COUNTER, 8}, // Total data sets written
		{0x0003, PARAM_CTRL_COUNTER, 4}, // Total write retries
		{0x0004, PARAM_CTRL_COUNTER, 2}, // Total unrecovered write errors
		{0x0005, PARAM_CTRL_COUNTER, 2}, // Total suspended writes
		{0x0006, PARAM_CTRL_COUNTER, 2}, // Total fatal suspended writes
		{0x0007, PARAM_CTRL_COUNTER, 8}, // Total data sets read
		{0x0008, PARAM_CTRL_COUNTER, 4}, // Total read retries
		{0x0009, PARAM_CTRL_COUNTER, 2}, // Total unrecovered read errors
		{0x000a, PARAM_CTRL_COUNTER, 2}, // Total suspended reads
		{0x000b, PARAM_CTRL_COUNTER, 2}, // Total fatal suspended reads
	})
}

func NewTapeCapacity() *Page {
	return build(scsi.LOG_TAPE_CAPACITY, "Tape Capacity", []param{
		{CAP_MAIN_REMAINING, PARAM_CTRL_COUNTER, 4},
		{CAP_ALT_REMAINING, PARAM_CTRL_COUNTER, 4},
		{CAP_MAIN_MAXIMUM, PARAM_CTRL_COUNTER, 4},
		{CAP_ALT_MAXIMUM, PARAM_CTRL_COUNTER, 4},
	})
}

func NewDataCompression() *Page {
	params := []param{
		{0x0000, PARAM_CTRL_COUNTER, 2}, // Read compression ratio x100
		{0x0001, PARAM_CTRL_COUNTER, 2}, // Write compression ratio x100
	}

	// Megabytes and bytes transferred to/from server and tape
	for code := uint16(0x0002); code <= 0x0009; code++ {
		params = append(params, param{code, PARAM_CTRL_COUNTER, 4})
	}

	return build(scsi.LOG_DATA_COMPRESSION, "Data Compression", params)
}

// SetTapeAlert replaces the TapeAlert flags. Bit n of flags is TapeAlert flag n+1.
func (r *Registry) SetTapeAlert(flags uint64) {
	p := r.Lookup(scsi.LOG_TAPE_ALERT)
	if p == nil {
		return
	}

	for i := 0; i < TAPE_ALERT_FLAGS; i++ {
		SetParam(p.Data, uint16(i+1), (flags>>uint(i))&1)
	}
}

// TapeAlert returns the current TapeAlert flags.
func (r *Registry) TapeAlert() uint64 {
	var flags uint64

	p := r.Lookup(scsi.LOG_TAPE_ALERT)
	if p == nil {
		return 0
	}

	for i := 0; i < TAPE_ALERT_FLAGS; i++ {
		if v, _ := Param(p.Data, uint16(i+1)); v != 0 {
			flags |= 1 << uint(i)
		}
	}

	return flags
}
