// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"bytes"
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"github.com/dswarbrick/vtape/medium"
	"github.com/dswarbrick/vtape/scsi"
)

// checkLoaded fails the command unless a readable medium is loaded.
func (u *Unit) checkLoaded(cmd *Command) bool {
	switch u.state {
	case TAPE_LOADED:
		return true
	case TAPE_UNLOADED:
		cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_NOT_PRESENT)
	default:
		cmd.checkCondition(scsi.NOT_READY, scsi.ASC_MEDIUM_FORMAT_CORRUPT)
	}

	return false
}

// CheckRestrictions decides whether the medium may be written at the current position. On denial
// the command carries the sense data.
func CheckRestrictions(u *Unit, cmd *Command) bool {
	if !u.checkLoaded(cmd) {
		return false
	}

	pos := u.engine.Position()
	writable := false

	switch u.mam.MediumType {
	case medium.MEDIA_TYPE_CLEAN:
		cmd.checkCondition(scsi.NOT_READY, scsi.ASC_CLEANING_CART_INSTALLED)
		return false
	case medium.MEDIA_TYPE_WORM:
		// Append at end of data, or overwrite the one block granted by ALLOW OVERWRITE
		if pos.Type == medium.BLOCK_EOD || u.overwriteGranted(pos.Block) {
			writable = true
		} else {
			cmd.checkCondition(scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)
		}
	case medium.MEDIA_TYPE_DATA:
		writable = true
	default:
		cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_MEDIUM_INCOMPATIBLE)
		return false
	}

	if writable && u.writeProtect {
		cmd.checkCondition(scsi.DATA_PROTECT, scsi.ASC_WRITE_PROTECT)
		writable = false
	}

	if u.appendOnly && pos.Type != medium.BLOCK_EOD && !u.overwriteGranted(pos.Block) &&
		!(u.allowOverwrite == OVERWRITE_FORMAT && cmd.Opcode() == scsi.FORMAT_MEDIUM) {
		u.log.WithFields(log.Fields{
			"block":   pos.Block,
			"granted": u.allowOverwriteBlock,
		}).Warn("Append only mode: overwrite denied")

		u.allowOverwrite = OVERWRITE_DENIED
		cmd.checkCondition(scsi.DATA_PROTECT, scsi.ASC_MEDIUM_OVERWRITE_ATTEMPTED)
		u.Logs.SetTapeAlert(u.Logs.TapeAlert() | TA_WRITE_PROTECT)
		writable = false
	}

	return writable
}

func (u *Unit) overwriteGranted(block uint64) bool {
	return u.allowOverwrite == OVERWRITE_CURRENT && u.allowOverwriteBlock == block
}

// ValidEncryptionBlock checks the block under the head against the configured decryption mode
// and key.
func ValidEncryptionBlock(u *Unit, cmd *Command) bool {
	pos := u.engine.Position()

	if pos.Encrypted() {
		if u.decryptMode > DECRYPT_RAW {
			var key []byte
			if u.encryption != nil {
				key = u.encryption.Key
			}

			if !bytes.Equal(key, pos.Encryption.Key) {
				cmd.checkCondition(scsi.DATA_PROTECT, scsi.ASC_INCORRECT_KEY)
				return false
			}

			return true
		}

		cmd.checkCondition(scsi.DATA_PROTECT, scsi.ASC_UNABLE_TO_DECRYPT)
		return false
	}

	if u.decryptMode == DECRYPT_DECRYPT {
		cmd.checkCondition(scsi.DATA_PROTECT, scsi.ASC_UNENCRYPTED_DATA)
		return false
	}

	return true
}

// ValidEncryptionMedia records the native density on a medium written from the beginning, and
// refuses writes elsewhere on a medium of another density.
func ValidEncryptionMedia(u *Unit, cmd *Command) bool {
	native := u.pm.Model().Density.Code

	if u.engine.Position().Block == 0 {
		u.Modes.SetDensityCode(native)
		u.mam.MediumDensityCode = native
		u.mam.FormattedDensityCode = native

		if err := u.engine.RewriteMAM(); err != nil {
			u.log.WithError(err).Warn("Cannot update MAM")
		}

		return true
	}

	if u.mam.MediumDensityCode != native {
		cmd.checkCondition(scsi.DATA_PROTECT, scsi.ASC_WRITE_PROTECT)
		return false
	}

	return true
}

// allowOverwriteCmd grants or revokes permission to overwrite within append-only data.
func (u *Unit) allowOverwriteCmd(cmd *Command) scsi.Status {
	mode := cmd.cdbByte(2) & 0x0f
	if mode > OVERWRITE_FORMAT {
		mode = 3
	}
	partition := cmd.cdbByte(3)

	u.allowOverwrite = OVERWRITE_DENIED

	if mode != OVERWRITE_DENIED && partition != 0 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	switch mode {
	case OVERWRITE_DENIED:
		u.log.Debug("Allow overwrite: disabled")
	case OVERWRITE_CURRENT:
		if !u.checkLoaded(cmd) {
			return cmd.Status
		}

		target := binary.BigEndian.Uint64(cmd.cdbField(4, 8))
		current := u.engine.Position().Block

		if target != current {
			u.allowOverwriteBlock = overwriteBlockInvalid
			u.log.WithFields(log.Fields{
				"target":  target,
				"current": current,
			}).Warn("Allow overwrite: block mismatch")
			return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_SEQUENTIAL_POSITIONING_ERROR)
		}

		u.allowOverwriteBlock = target
		u.allowOverwrite = OVERWRITE_CURRENT
		u.log.WithField("block", target).Debug("Allow overwrite: current position")
	case OVERWRITE_FORMAT:
		u.allowOverwrite = OVERWRITE_FORMAT
		u.log.Debug("Allow overwrite: format")
	default:
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_FIELD_IN_CDB)
	}

	return cmd.good()
}

