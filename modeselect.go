// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/dswarbrick/vtape/modepage"
	"github.com/dswarbrick/vtape/scsi"
)

// Device configuration extension write modes
const (
	WRITE_MODE_OVERWRITE   = 0
	WRITE_MODE_APPEND_ONLY = 1
)

// modeSelect handles MODE SELECT (6) and (10). The block descriptor is always applied; pages are
// validated, but only stored when the save pages bit is set.
func (u *Unit) modeSelect(cmd *Command) scsi.Status {
	save := cmd.cdbByte(1)&0x01 != 0

	// Only the SCSI-2 page format is understood
	if cmd.cdbByte(1)&0x10 == 0 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	ten := cmd.Opcode() == scsi.MODE_SELECT_10

	var n uint32
	if ten {
		n = uint32(binary.BigEndian.Uint16(cmd.cdbField(7, 2)))
	} else {
		n = uint32(cmd.cdbByte(4))
	}

	if n == 0 {
		return cmd.good()
	}

	data, ok := u.retrieveParams(cmd, n)
	if !ok {
		return cmd.Status
	}

	var hdr, bdl int
	longLBA := false

	if ten {
		hdr = 8
		if len(data) < hdr {
			return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_PARAMETER_LIST_LENGTH_ERROR)
		}
		bdl = int(binary.BigEndian.Uint16(data[6:]))
		longLBA = data[4]&0x01 != 0
	} else {
		hdr = 4
		if len(data) < hdr {
			return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_PARAMETER_LIST_LENGTH_ERROR)
		}
		bdl = int(data[3])
	}

	if longLBA {
		u.log.Warn("Long LBA block descriptors not supported")
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	if hdr+bdl > len(data) {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
	}

	if bdl >= modepage.BLOCK_DESCRIPTOR_LEN {
		copy(u.Modes.BlockDescriptor[:], data[hdr:hdr+modepage.BLOCK_DESCRIPTOR_LEN])
		u.log.WithFields(log.Fields{
			"density":      u.Modes.DensityCode(),
			"block_length": u.Modes.BlockLength(),
		}).Debug("Block descriptor")
	}

	return u.modeSelectPages(cmd, data[hdr+bdl:], save)
}

// modeSelectPages walks the mode page records of a MODE SELECT parameter list.
func (u *Unit) modeSelectPages(cmd *Command, b []byte, save bool) scsi.Status {
	for i := 0; i < len(b); {
		code := b[i] & 0x3f
		subpage := uint8(0)
		hl := 2

		if b[i]&modepage.SPF != 0 ||
			(code == scsi.MODE_DEVICE_CONFIGURATION && i+1 < len(b) && b[i+1] == scsi.MODE_DEVICE_CONFIGURATION_EXT) {
			hl = 4
		}

		if i+hl > len(b) {
			return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
		}

		var pageLen int
		if hl == 4 {
			subpage = b[i+1]
			pageLen = int(binary.BigEndian.Uint16(b[i+2:]))
		} else {
			pageLen = int(b[i+1])
		}

		if pageLen == 0 {
			pageLen = len(b) - i - hl
			u.log.WithFields(log.Fields{
				"page":    code,
				"subpage": subpage,
			}).Warn("Mode page length is zero, using remainder of parameter list")
		}

		if i+hl+pageLen > len(b) {
			return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
		}

		rec := b[i : i+hl+pageLen]

		var st scsi.Status
		switch {
		case code == scsi.MODE_DATA_COMPRESSION && subpage == 0:
			st = u.selectDataCompression(cmd, rec, save)
		case code == scsi.MODE_DEVICE_CONFIGURATION && subpage == 0:
			st = u.selectDeviceConfiguration(cmd, rec, save)
		case code == scsi.MODE_DEVICE_CONFIGURATION && subpage == scsi.MODE_DEVICE_CONFIGURATION_EXT:
			st = u.selectDeviceConfigurationExt(cmd, rec, save)
		default:
			u.log.WithFields(log.Fields{
				"page":    code,
				"subpage": subpage,
			}).Info("Mode page not supported, skipping")
		}

		if st != scsi.GOOD {
			return st
		}

		i += hl + pageLen
	}

	return cmd.good()
}

// updatePage stores a page record as the current and saved values of a registered page.
func (u *Unit) updatePage(code, subpage uint8, rec []byte) {
	if p := u.Modes.Lookup(code, subpage); p != nil {
		p.Update(rec)
	}
}

func (u *Unit) selectDataCompression(cmd *Command, rec []byte, save bool) scsi.Status {
	if len(rec) < 12 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
	}

	dce := rec[2]&0x80 != 0

	u.log.WithFields(log.Fields{
		"dce":         dce,
		"dcc":         rec[2]&0x40 != 0,
		"compression": binary.BigEndian.Uint32(rec[4:]),
		"decompress":  binary.BigEndian.Uint32(rec[8:]),
	}).Debug("Data compression page")

	if !save {
		return cmd.good()
	}

	u.updatePage(scsi.MODE_DATA_COMPRESSION, 0, rec)

	if dce {
		u.pm.SetCompression(u.Modes, u.compressionFactor)
	} else {
		u.pm.ClearCompression(u.Modes)
	}

	return cmd.good()
}

func (u *Unit) selectDeviceConfiguration(cmd *Command, rec []byte, save bool) scsi.Status {
	if len(rec) < 16 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
	}

	u.log.WithFields(log.Fields{
		"rew":  rec[8]&0x01 != 0,
		"swp":  rec[10]&0x04 != 0,
		"wtre": rec[15]&0x80 != 0,
	}).Debug("Device configuration page")

	if !save {
		return cmd.good()
	}

	u.updatePage(scsi.MODE_DEVICE_CONFIGURATION, 0, rec)

	if rec[14] != 0 {
		u.pm.SetCompression(u.Modes, u.compressionFactor)
	} else {
		u.pm.ClearCompression(u.Modes)
	}

	return cmd.good()
}

func (u *Unit) selectDeviceConfigurationExt(cmd *Command, rec []byte, save bool) scsi.Status {
	if len(rec) != modepage.DEV_CONF_EXT_LEN+4 {
		u.log.WithField("len", len(rec)-4).Warn("Device configuration extension page has wrong length")
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
	}

	writeMode := rec[5] >> 4
	caps := u.pm.Capabilities()

	switch {
	case writeMode > WRITE_MODE_APPEND_ONLY:
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
	case writeMode == WRITE_MODE_APPEND_ONLY && !caps.AppendOnly:
		u.log.Warn("Append only mode not supported by drive")
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
	case writeMode == WRITE_MODE_OVERWRITE && u.appendOnly:
		u.log.Warn("Append only mode cannot be cleared")
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
	}

	pews := binary.BigEndian.Uint16(rec[6:])

	u.log.WithFields(log.Fields{
		"write_mode": writeMode,
		"pews":       pews,
		"sem":        rec[8]&0x01 != 0,
	}).Debug("Device configuration extension page")

	if !save {
		return cmd.good()
	}

	u.updatePage(scsi.MODE_DEVICE_CONFIGURATION, scsi.MODE_DEVICE_CONFIGURATION_EXT, rec)

	if caps.ProgEarlyWarning {
		u.progEarlyWarningSize = pews
		u.updateProgEarlyWarning()
	}

	if writeMode == WRITE_MODE_APPEND_ONLY {
		u.appendOnly = true
		u.allowOverwrite = OVERWRITE_DENIED
	}

	return cmd.good()
}
