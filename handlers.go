// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dswarbrick/vtape/medium"
	"github.com/dswarbrick/vtape/scsi"
	"github.com/dswarbrick/vtape/utils"
)

type handler struct {
	name string
	fn   func(*Unit, *Command) scsi.Status
}

var sscHandlers = map[byte]handler{
	scsi.TEST_UNIT_READY:          {"TEST UNIT READY", (*Unit).testUnitReady},
	scsi.REWIND:                   {"REWIND", (*Unit).rewind},
	scsi.FORMAT_MEDIUM:            {"FORMAT MEDIUM", (*Unit).formatMedium},
	scsi.READ_BLOCK_LIMITS:        {"READ BLOCK LIMITS", (*Unit).readBlockLimits},
	scsi.LOAD_DISPLAY:             {"LOAD DISPLAY", (*Unit).loadDisplay},
	scsi.READ_6:                   {"READ (6)", (*Unit).read6},
	scsi.WRITE_6:                  {"WRITE (6)", (*Unit).write6},
	scsi.WRITE_FILEMARKS_6:        {"WRITE FILEMARKS (6)", (*Unit).writeFilemarks},
	scsi.SPACE_6:                  {"SPACE (6)", (*Unit).space},
	scsi.MODE_SELECT_6:            {"MODE SELECT (6)", (*Unit).modeSelect},
	scsi.RESERVE_6:                {"RESERVE (6)", (*Unit).reserve},
	scsi.RELEASE_6:                {"RELEASE (6)", (*Unit).release},
	scsi.ERASE_6:                  {"ERASE (6)", (*Unit).erase},
	scsi.LOAD_UNLOAD:              {"LOAD UNLOAD", (*Unit).loadUnload},
	scsi.PREVENT_ALLOW_MEDIUM:     {"PREVENT ALLOW MEDIUM REMOVAL", (*Unit).preventAllow},
	scsi.LOCATE_10:                {"LOCATE (10)", (*Unit).locate},
	scsi.READ_POSITION:            {"READ POSITION", (*Unit).readPosition},
	scsi.REPORT_DENSITY_SUPPORT:   {"REPORT DENSITY SUPPORT", (*Unit).reportDensity},
	scsi.LOG_SELECT:               {"LOG SELECT", (*Unit).logSelect},
	scsi.LOG_SENSE:                {"LOG SENSE", (*Unit).logSense},
	scsi.MODE_SELECT_10:           {"MODE SELECT (10)", (*Unit).modeSelect},
	scsi.RESERVE_10:               {"RESERVE (10)", (*Unit).reserve},
	scsi.RELEASE_10:               {"RELEASE (10)", (*Unit).release},
	scsi.PERSISTENT_RESERVE_IN:    {"PERSISTENT RESERVE IN", (*Unit).persistentReserveIn},
	scsi.PERSISTENT_RESERVE_OUT:   {"PERSISTENT RESERVE OUT", (*Unit).persistentReserveOut},
	scsi.ALLOW_OVERWRITE:          {"ALLOW OVERWRITE", (*Unit).allowOverwriteCmd},
	scsi.READ_ATTRIBUTE:           {"READ ATTRIBUTE", (*Unit).readAttribute},
	scsi.WRITE_ATTRIBUTE:          {"WRITE ATTRIBUTE", (*Unit).writeAttribute},
	scsi.SECURITY_PROTOCOL_IN:     {"SECURITY PROTOCOL IN", (*Unit).securityProtocolIn},
	scsi.MAINTENANCE_IN:           {"MAINTENANCE IN", (*Unit).maintenanceIn},
	scsi.MAINTENANCE_OUT:          {"MAINTENANCE OUT", (*Unit).maintenanceOut},
	scsi.READ_MEDIA_SERIAL_NUMBER: {"READ MEDIA SERIAL NUMBER", (*Unit).readMediaSerial},
	scsi.SECURITY_PROTOCOL_OUT:    {"SECURITY PROTOCOL OUT", (*Unit).securityProtocolOut},
}

// Length of the REPORT DENSITY SUPPORT density descriptor
const densityDescriptorLen = 52

// engineCondition reports a failed medium operation. Engines returning a scsi.Sense choose the
// sense data; any other failure is reported with key and asc.
func engineCondition(cmd *Command, err error, key uint8, asc uint16) scsi.Status {
	var s scsi.Sense
	if errors.As(err, &s) {
		return cmd.senseCondition(s)
	}

	return cmd.checkCondition(key, asc)
}

// retrieveParams fetches a parameter list of n bytes, refusing lists larger than the buffer.
func (u *Unit) retrieveParams(cmd *Command, n uint32) ([]byte, bool) {
	if n > u.bufSize {
		u.log.WithFields(log.Fields{"len": n, "max": u.bufSize}).Warn("Parameter list too long")
		cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_PARAMETER_LIST_LENGTH_ERROR)
		return nil, false
	}

	data, err := u.retrieve(cmd, int(n))
	if err != nil {
		u.log.WithError(err).Error("Data-out transfer failed")
		cmd.checkCondition(scsi.HARDWARE_ERROR, scsi.ASC_INTERNAL_TARGET_FAILURE)
		return nil, false
	}

	return data, true
}

func (u *Unit) testUnitReady(cmd *Command) scsi.Status {
	if !u.checkLoaded(cmd) {
		return cmd.Status
	}

	if u.mam.MediumType != medium.MEDIA_TYPE_CLEAN {
		return cmd.good()
	}

	var stage int32
	if u.cleaning != nil {
		stage = u.cleaning.Stage()
	}

	switch stage {
	case CLEAN_MOUNT_STAGE1:
		return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_CLEANING_CART_INSTALLED)
	case CLEAN_MOUNT_STAGE2:
		return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_CAUSE_NOT_REPORTABLE)
	case CLEAN_MOUNT_STAGE3:
		return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_INITIALIZING_REQUIRED)
	}

	u.log.WithField("stage", stage).Error("Unexpected cleaning cartridge mount stage")
	return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_CLEANING_CART_INSTALLED)
}

func (u *Unit) rewind(cmd *Command) scsi.Status {
	if !u.checkLoaded(cmd) {
		return cmd.Status
	}

	if err := u.engine.Rewind(); err != nil {
		u.log.WithError(err).Warn("Rewind failed")
		return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_FORMAT_CORRUPT)
	}

	return cmd.good()
}

func (u *Unit) formatMedium(cmd *Command) scsi.Status {
	if !u.pm.CheckRestrictions(u, cmd) {
		return cmd.Status
	}

	if u.engine.Position().Block != 0 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_POSITION_PAST_BOM)
	}

	if err := u.engine.Format(); err != nil {
		return engineCondition(cmd, err, scsi.MEDIUM_ERROR, scsi.ASC_WRITE_ERROR)
	}

	native := u.pm.Model().Density.Code
	u.mam.MediumDensityCode = native
	u.mam.FormattedDensityCode = native

	if err := u.engine.RewriteMAM(); err != nil {
		u.log.WithError(err).Warn("Cannot update MAM")
	}

	return cmd.good()
}

func (u *Unit) readBlockLimits(cmd *Command) scsi.Status {
	if u.state == TAPE_LOAD_BAD {
		return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_FORMAT_CORRUPT)
	}

	b := make([]byte, 6)
	utils.PutBE24(b[1:], u.bufSize)
	binary.BigEndian.PutUint16(b[4:], 1)

	cmd.respond(b, len(b))
	return cmd.good()
}

func (u *Unit) loadDisplay(cmd *Command) scsi.Status {
	data, ok := u.retrieveParams(cmd, uint32(cmd.cdbByte(4)))
	if !ok {
		return cmd.Status
	}

	if len(data) < 17 {
		u.log.WithField("len", len(data)).Debug("Short load display message")
		return cmd.good()
	}

	u.log.WithFields(log.Fields{
		"mode": data[0] >> 5,
		"msg1": string(bytes.TrimRight(data[1:9], "\x00 ")),
		"msg2": string(bytes.TrimRight(data[9:17], "\x00 ")),
	}).Info("Load display")

	return cmd.good()
}

// transferLength decodes the framing of READ (6) and WRITE (6): a count of fixed size blocks, or a
// single variable length block.
func (u *Unit) transferLength(cmd *Command, fixed bool) (count, size uint32) {
	n := utils.GetBE24(cmd.cdbField(2, 3))

	if fixed {
		return n, u.Modes.BlockLength()
	}

	return 1, n
}

func (u *Unit) read6(cmd *Command) scsi.Status {
	sili := cmd.cdbByte(1)&0x02 != 0
	fixed := cmd.cdbByte(1)&0x01 != 0

	if sili && fixed {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	count, size := u.transferLength(cmd, fixed)

	if !u.checkLoaded(cmd) {
		return cmd.Status
	}

	if u.mam.MediumType == medium.MEDIA_TYPE_CLEAN {
		return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_CLEANING_CART_INSTALLED)
	}

	if fixed && size == 0 && count > 0 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	cmd.Data = cmd.Data[:0]
	cmd.Len = 0

	if size == 0 || count == 0 {
		return cmd.good()
	}

	u.log.WithFields(log.Fields{
		"blocks": count,
		"size":   size,
	}).Debug("Read")

	buf := make([]byte, size)

	for k := uint32(0); k < count; k++ {
		if !u.pm.ValidEncryptionBlock(u, cmd) {
			break
		}

		t, err := u.engine.ReadBlock(buf, sili)
		cmd.Data = append(cmd.Data, buf[:t.Bytes]...)
		u.bytesReadI += uint64(t.Bytes)
		u.bytesReadM += uint64(t.MediumBytes)

		if err != nil {
			engineCondition(cmd, err, scsi.MEDIUM_ERROR, scsi.ASC_UNRECOVERED_READ_ERROR)
			if fixed {
				cmd.Sense.SetInfo(count - k)
			}
			break
		}
	}

	cmd.Len = len(cmd.Data)
	return cmd.Status
}

func (u *Unit) write6(cmd *Command) scsi.Status {
	fixed := cmd.cdbByte(1)&0x01 != 0
	count, size := u.transferLength(cmd, fixed)

	if fixed && size == 0 && count > 0 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	total := uint64(count) * uint64(size)
	if total > uint64(u.bufSize) {
		u.log.WithFields(log.Fields{
			"len": total,
			"max": u.bufSize,
		}).Warn("Write request exceeds buffer size")
		total = uint64(u.bufSize)
	}

	data, err := u.retrieve(cmd, int(total))
	if err != nil {
		u.log.WithError(err).Error("Data-out transfer failed")
		return cmd.checkCondition(scsi.HARDWARE_ERROR, scsi.ASC_INTERNAL_TARGET_FAILURE)
	}

	if !u.pm.CheckRestrictions(u, cmd) {
		return cmd.Status
	}

	if !ValidEncryptionMedia(u, cmd) {
		return cmd.Status
	}

	var enc *medium.Encryption
	if u.encryptMode == ENCRYPT_ENABLE {
		enc = u.encryption
	}

	level := u.compressionLevel()

	for k := uint64(0); k < uint64(count); k++ {
		off := k * uint64(size)
		if off >= uint64(len(data)) {
			break
		}

		end := off + uint64(size)
		if end > uint64(len(data)) {
			end = uint64(len(data))
		}

		t, err := u.engine.WriteBlock(data[off:end], level, enc)
		u.bytesWrittenI += uint64(t.Bytes)
		u.bytesWrittenM += uint64(t.MediumBytes)

		if err != nil {
			return engineCondition(cmd, err, scsi.MEDIUM_ERROR, scsi.ASC_WRITE_ERROR)
		}
	}

	return cmd.good()
}

func (u *Unit) writeFilemarks(cmd *Command) scsi.Status {
	count := utils.GetBE24(cmd.cdbField(2, 3))

	if !u.pm.CheckRestrictions(u, cmd) {
		if u.state != TAPE_LOADED || u.mam.MediumType != medium.MEDIA_TYPE_WORM ||
			u.engine.Position().Block != 0 {
			return cmd.Status
		}

		u.log.Info("Erasing WORM media")
		cmd.Sense = scsi.Sense{}
		cmd.good()
	}

	if err := u.engine.WriteFilemarks(count); err != nil {
		return engineCondition(cmd, err, scsi.MEDIUM_ERROR, scsi.ASC_WRITE_ERROR)
	}

	if count != 0 && u.engine.TapeOffset() >= u.mam.MaxCapacity {
		u.mam.RemainingCapacity = 0

		s := scsi.NewSense(scsi.NO_SENSE, scsi.ASC_NO_ADDITIONAL_SENSE)
		s.EOM = true
		return cmd.senseCondition(s)
	}

	return cmd.good()
}

func (u *Unit) space(cmd *Command) scsi.Status {
	code := medium.SpaceCode(cmd.cdbByte(1) & 0x0f)

	switch code {
	case medium.SPACE_BLOCKS, medium.SPACE_FILEMARKS, medium.SPACE_EOD:
	default:
		u.log.WithField("code", code).Warn("Unsupported space code")
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_PARMS)
	}

	if !u.checkLoaded(cmd) {
		return cmd.Status
	}

	count := utils.SignExtend24(utils.GetBE24(cmd.cdbField(2, 3)))

	if count != 0 || code == medium.SPACE_EOD {
		if err := u.engine.Space(count, code); err != nil {
			return engineCondition(cmd, err, scsi.MEDIUM_ERROR, scsi.ASC_SEQUENTIAL_POSITIONING_ERROR)
		}
	}

	return cmd.good()
}

func (u *Unit) reserve(cmd *Command) scsi.Status {
	resType, key := u.primary.Reservation()
	if resType != 0 || key != 0 {
		cmd.Status = scsi.RESERVATION_CONFLICT
		return cmd.Status
	}

	u.spc2Reserved = true
	return cmd.good()
}

func (u *Unit) release(cmd *Command) scsi.Status {
	resType, key := u.primary.Reservation()
	if resType == 0 && key != 0 {
		cmd.Status = scsi.RESERVATION_CONFLICT
		return cmd.Status
	}

	u.spc2Reserved = false
	return cmd.good()
}

func (u *Unit) erase(cmd *Command) scsi.Status {
	if !u.pm.CheckRestrictions(u, cmd) {
		return cmd.Status
	}

	if u.engine.Position().Block != 0 {
		return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	if err := u.engine.Format(); err != nil {
		return engineCondition(cmd, err, scsi.MEDIUM_ERROR, scsi.ASC_WRITE_ERROR)
	}

	return cmd.good()
}

func (u *Unit) loadUnload(cmd *Command) scsi.Status {
	if cmd.cdbByte(4)&0x04 != 0 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	load := cmd.cdbByte(4)&0x01 != 0

	switch u.state {
	case TAPE_UNLOADED:
		if !load {
			return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_NOT_PRESENT)
		}

		if err := u.loadMedium(); err != nil {
			u.log.WithError(err).Warn("Load failed")

			switch {
			case errors.Cause(err) == ErrIncompatibleMedium:
				return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_INCOMPATIBLE)
			case u.state == TAPE_LOAD_BAD:
				return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_FORMAT_CORRUPT)
			default:
				return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_NOT_PRESENT)
			}
		}
	case TAPE_LOADED:
		if load {
			if err := u.engine.Rewind(); err != nil {
				return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_FORMAT_CORRUPT)
			}
		} else if err := u.unloadTape(); err != nil {
			u.log.WithError(err).Warn("Unload failed")
		}
	default:
		return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_FORMAT_CORRUPT)
	}

	return cmd.good()
}

func (u *Unit) preventAllow(cmd *Command) scsi.Status {
	u.log.WithField("prevent", cmd.cdbByte(4)&0x03).Debug("Prevent/allow medium removal")
	return cmd.good()
}

func (u *Unit) locate(cmd *Command) scsi.Status {
	if !u.checkLoaded(cmd) {
		return cmd.Status
	}

	// Change partition is only accepted for the first partition
	if cmd.cdbByte(1)&0x02 != 0 && cmd.cdbByte(8) != 0 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	block := binary.BigEndian.Uint32(cmd.cdbField(3, 4))

	if err := u.engine.Seek(uint64(block)); err != nil {
		return engineCondition(cmd, err, scsi.MEDIUM_ERROR, scsi.ASC_SEQUENTIAL_POSITIONING_ERROR)
	}

	return cmd.good()
}

func (u *Unit) readPosition(cmd *Command) scsi.Status {
	sa := cmd.cdbByte(1) & 0x1f

	if sa > 1 {
		u.log.WithField("service_action", sa).Warn("Unsupported read position form")
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	if !u.checkLoaded(cmd) {
		return cmd.Status
	}

	block := u.engine.Position().Block
	b := make([]byte, 20)

	if block == 0 {
		b[0] |= 0x80 // BOP
	}
	if u.engine.TapeOffset() >= u.mam.MaxCapacity {
		b[0] |= 0x40 // EOP
	}

	binary.BigEndian.PutUint32(b[4:], uint32(block))
	binary.BigEndian.PutUint32(b[8:], uint32(block))

	cmd.respond(b, len(b))
	return cmd.good()
}

// putPadded copies s into b, padding with spaces.
func putPadded(b []byte, s string) {
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
}

func (u *Unit) reportDensity(cmd *Command) scsi.Status {
	if cmd.cdbByte(1)&0x02 != 0 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	media := cmd.cdbByte(1)&0x01 != 0
	if media && u.state != TAPE_LOADED {
		return cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_NOT_PRESENT)
	}

	alloc := int(binary.BigEndian.Uint16(cmd.cdbField(7, 2)))
	d := u.pm.Model().Density

	b := make([]byte, 4+densityDescriptorLen)
	binary.BigEndian.PutUint16(b, uint16(len(b)-2))

	desc := b[4:]
	desc[0] = d.Code
	desc[1] = d.Code
	desc[2] = 0xa0 // WRTOK, DEFLT

	if media {
		desc[0] = u.mam.MediumDensityCode
		desc[1] = u.mam.MediumDensityCode
		if u.writeProtect {
			desc[2] &^= 0x80
		}
	}

	utils.PutBE24(desc[5:], d.BitsPerMM)
	binary.BigEndian.PutUint16(desc[8:], d.MediaWidth)
	binary.BigEndian.PutUint16(desc[10:], d.Tracks)
	binary.BigEndian.PutUint32(desc[12:], d.Capacity)
	putPadded(desc[16:24], d.Organization)
	putPadded(desc[24:32], d.Name)
	putPadded(desc[32:52], d.Description)

	cmd.respond(b, alloc)
	return cmd.good()
}

func (u *Unit) persistentReserveIn(cmd *Command) scsi.Status {
	if u.spc2Reserved {
		cmd.Status = scsi.RESERVATION_CONFLICT
		return cmd.Status
	}

	return u.primary.PersistentReserveIn(u, cmd)
}

func (u *Unit) persistentReserveOut(cmd *Command) scsi.Status {
	if u.spc2Reserved {
		cmd.Status = scsi.RESERVATION_CONFLICT
		return cmd.Status
	}

	if _, ok := u.retrieveParams(cmd, binary.BigEndian.Uint32(cmd.cdbField(5, 4))); !ok {
		return cmd.Status
	}

	return u.primary.PersistentReserveOut(u, cmd)
}

func (u *Unit) readAttribute(cmd *Command) scsi.Status {
	if !u.checkLoaded(cmd) {
		return cmd.Status
	}

	if sa := cmd.cdbByte(1) & 0x1f; sa > 1 {
		u.log.WithField("service_action", sa).Warn("Unsupported read attribute service action")
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	return u.primary.ReadAttribute(u, cmd)
}

func (u *Unit) writeAttribute(cmd *Command) scsi.Status {
	if !u.checkLoaded(cmd) {
		return cmd.Status
	}

	if _, ok := u.retrieveParams(cmd, binary.BigEndian.Uint32(cmd.cdbField(10, 4))); !ok {
		return cmd.Status
	}

	st := u.primary.WriteAttribute(u, cmd)
	if st == scsi.GOOD {
		if err := u.engine.RewriteMAM(); err != nil {
			u.log.WithError(err).Warn("Cannot update MAM")
		}
	}

	return st
}

func (u *Unit) securityProtocolIn(cmd *Command) scsi.Status {
	return u.primary.SecurityProtocolIn(u, cmd)
}

func (u *Unit) securityProtocolOut(cmd *Command) scsi.Status {
	n := binary.BigEndian.Uint32(cmd.cdbField(6, 4))
	if cmd.cdbByte(4)&0x80 != 0 {
		n *= 512
	}

	if _, ok := u.retrieveParams(cmd, n); !ok {
		return cmd.Status
	}

	return u.primary.SecurityProtocolOut(u, cmd)
}

func (u *Unit) maintenanceIn(cmd *Command) scsi.Status {
	u.log.WithField("service_action", cmd.cdbByte(1)&0x1f).Debug("Maintenance in")
	return u.primary.MaintenanceIn(u, cmd)
}

func (u *Unit) maintenanceOut(cmd *Command) scsi.Status {
	u.log.WithField("service_action", cmd.cdbByte(1)&0x1f).Debug("Maintenance out")
	return u.primary.MaintenanceOut(u, cmd)
}

func (u *Unit) readMediaSerial(cmd *Command) scsi.Status {
	if !u.checkLoaded(cmd) {
		return cmd.Status
	}

	serial := u.mam.Serial
	n := (len(serial) + 3) &^ 3

	b := make([]byte, 4+n)
	binary.BigEndian.PutUint32(b, uint32(n))
	putPadded(b[4:], serial)

	cmd.respond(b, int(binary.BigEndian.Uint32(cmd.cdbField(6, 4))))
	return cmd.good()
}
