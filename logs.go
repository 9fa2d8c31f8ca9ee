// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/dswarbrick/vtape/logpage"
	"github.com/dswarbrick/vtape/scsi"
)

// Log parameter value reported while no medium is loaded
const unknownCapacity = 0xffffffff

func (u *Unit) logSense(cmd *Command) scsi.Status {
	alloc := int(binary.BigEndian.Uint16(cmd.cdbField(7, 2)))
	code := cmd.cdbByte(2) & 0x3f

	u.log.WithFields(log.Fields{
		"page":  code,
		"alloc": alloc,
	}).Debug("Log sense")

	var (
		b  []byte
		ok bool
	)

	if code == scsi.LOG_SUPPORTED_PAGES {
		b, ok = u.Logs.Supported(), true
	} else {
		b, ok = u.Logs.Read(code)
	}

	if !ok {
		cmd.Data = cmd.Data[:0]
		cmd.Len = 0
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	cmd.respond(b, alloc)

	// Reading the complete TapeAlert page consumes the flags; a header-only read does not
	if code == scsi.LOG_TAPE_ALERT && alloc > logpage.HEADER_LEN {
		u.Logs.SetTapeAlert(0)
	}

	return cmd.good()
}

func (u *Unit) logSelect(cmd *Command) scsi.Status {
	st := u.primary.LogSelect(u, cmd)

	pcr := cmd.cdbByte(1)&0x02 != 0
	pc := (cmd.cdbByte(2) & 0xc0) >> 6

	if pcr && pc == 3 {
		u.log.Debug("Resetting byte counters")
		u.bytesReadI = 0
		u.bytesReadM = 0
		u.bytesWrittenI = 0
		u.bytesWrittenM = 0
	}

	return st
}

// refreshSeqAccess fills the sequential access device page with the running byte counters and
// the capacity of the loaded medium.
func (u *Unit) refreshSeqAccess(b []byte) {
	logpage.SetParam(b, logpage.SEQ_WRITE_DATA_B4_COMPRESSION, u.bytesWrittenI)
	logpage.SetParam(b, logpage.SEQ_WRITE_DATA_AF_COMPRESSION, u.bytesWrittenM)
	logpage.SetParam(b, logpage.SEQ_READ_DATA_B4_COMPRESSION, u.bytesReadM)
	logpage.SetParam(b, logpage.SEQ_READ_DATA_AF_COMPRESSION, u.bytesReadI)

	if u.state != TAPE_LOADED {
		for _, code := range []uint16{
			logpage.SEQ_CAPACITY_BOP_EOD,
			logpage.SEQ_CAPACITY_BOP_EW,
			logpage.SEQ_CAPACITY_EW_LEOP,
			logpage.SEQ_CAPACITY_BOP_CURR,
		} {
			logpage.SetParam(b, code, unknownCapacity)
		}
		return
	}

	logpage.SetParam(b, logpage.SEQ_CAPACITY_BOP_EOD, u.mam.MaxCapacity/u.capacityUnit)
	logpage.SetParam(b, logpage.SEQ_CAPACITY_BOP_EW, u.earlyWarningPosition/u.capacityUnit)
	logpage.SetParam(b, logpage.SEQ_CAPACITY_EW_LEOP, u.earlyWarningSize/u.capacityUnit)
	logpage.SetParam(b, logpage.SEQ_CAPACITY_BOP_CURR, u.engine.TapeOffset()/u.capacityUnit)
}

func (u *Unit) refreshTapeCapacity(b []byte) {
	if u.state != TAPE_LOADED {
		logpage.SetParam(b, logpage.CAP_MAIN_REMAINING, unknownCapacity)
		logpage.SetParam(b, logpage.CAP_ALT_REMAINING, unknownCapacity)
		logpage.SetParam(b, logpage.CAP_MAIN_MAXIMUM, unknownCapacity)
		logpage.SetParam(b, logpage.CAP_ALT_MAXIMUM, unknownCapacity)
		return
	}

	logpage.SetParam(b, logpage.CAP_MAIN_REMAINING, u.mam.RemainingCapacity/u.capacityUnit)
	logpage.SetParam(b, logpage.CAP_MAIN_MAXIMUM, u.mam.MaxCapacity/u.capacityUnit)
}
