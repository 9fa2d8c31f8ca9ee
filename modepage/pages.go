// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package modepage

import (
	"encoding/binary"

	"github.com/dswarbrick/vtape/scsi"
)

const (
	// Compression algorithm reported in the data compression page (IBM ALDC with 512 byte buffer)
	COMPRESSION_ALDC = 0x10

	// Length of the device configuration extension page parameters
	DEV_CONF_EXT_LEN = 0x1c

	dataCompressionDCE = 0x80
	dataCompressionDCC = 0x40
	dataCompressionDDE = 0x80
	mediumConfigWORMM  = 0x01
)

func NewRWErrorRecovery() *Page {
	p := newPage(scsi.MODE_RW_ERROR_RECOVERY, 0, 12, "Read-Write Error Recovery")
	p.Changeable[2] = 0xff
	p.Changeable[3] = 0xff
	p.Changeable[8] = 0xff
	return p.commit()
}

func NewDisconnectReconnect() *Page {
	p := newPage(scsi.MODE_DISCONNECT_RECONNECT, 0, 16, "Disconnect-Reconnect")
	p.Current[2] = 0x50 // Buffer full ratio
	p.Current[3] = 0x50 // Buffer empty ratio
	p.Current[10] = 0x0a
	return p.commit()
}

func NewControl() *Page {
	p := newPage(scsi.MODE_CONTROL, 0, 12, "Control")
	p.Changeable[2] = 0x0e
	p.Changeable[3] = 0x10
	return p.commit()
}

func NewDataCompression() *Page {
	p := newPage(scsi.MODE_DATA_COMPRESSION, 0, 16, "Data Compression")
	p.Current[2] = dataCompressionDCE | dataCompressionDCC
	p.Current[3] = dataCompressionDDE
	binary.BigEndian.PutUint32(p.Current[4:], COMPRESSION_ALDC)
	binary.BigEndian.PutUint32(p.Current[8:], COMPRESSION_ALDC)
	p.Changeable[2] = dataCompressionDCE
	p.Changeable[3] = dataCompressionDDE
	return p.commit()
}

func NewDeviceConfiguration() *Page {
	p := newPage(scsi.MODE_DEVICE_CONFIGURATION, 0, 16, "Device Configuration")
	p.Current[7] = 0x64  // Write delay time, 100ms units
	p.Current[8] = 0x40  // LOIS
	p.Current[10] = 0x18 // EEG, SEW
	p.Current[14] = 0x01 // Select data compression algorithm
	p.Changeable[8] = 0x01
	p.Changeable[10] = 0x04
	p.Changeable[14] = 0xff
	p.Changeable[15] = 0x80
	return p.commit()
}

func NewDeviceConfigurationExt() *Page {
	p := newPage(scsi.MODE_DEVICE_CONFIGURATION, scsi.MODE_DEVICE_CONFIGURATION_EXT,
		DEV_CONF_EXT_LEN+4, "Device Configuration Extension")
	p.Changeable[5] = 0xf0
	p.Changeable[6] = 0xff
	p.Changeable[7] = 0xff
	p.Changeable[8] = 0x01
	return p.commit()
}

func NewMediumPartition() *Page {
	p := newPage(scsi.MODE_MEDIUM_PARTITION, 0, 10, "Medium Partition")
	p.Current[4] = 0x18 // FDP, SDP
	p.Current[5] = 0x03 // Medium format recognition
	p.Current[6] = 0x09 // Partition units
	return p.commit()
}

func NewPowerCondition() *Page {
	p := newPage(scsi.MODE_POWER_CONDITION, 0, 12, "Power Condition")
	p.Changeable[3] = 0x03
	return p.commit()
}

func NewInformationalExceptions() *Page {
	p := newPage(scsi.MODE_INFORMATION_EXCEPTION, 0, 12, "Informational Exceptions Control")
	p.Current[2] = 0x08 // DEXCPT
	p.Current[3] = 0x03 // MRIE: conditionally generate recovered error
	p.Changeable[2] = 0x08
	p.Changeable[3] = 0x0f
	return p.commit()
}

func NewMediumConfiguration() *Page {
	p := newPage(scsi.MODE_MEDIUM_CONFIGURATION, 0, 32, "Medium Configuration")
	p.Current[4] = 0x01 // WORM mode label restrictions
	p.Current[5] = 0x01 // WORM mode filemark restrictions
	return p.commit()
}

// SetCompression enables data compression. An algorithm already selected in the device
// configuration page is kept, otherwise algorithm is selected.
func (r *Registry) SetCompression(algorithm uint8) {
	if p := r.Lookup(scsi.MODE_DATA_COMPRESSION, 0); p != nil {
		p.set(2, p.Current[2]|dataCompressionDCE)
	}

	if p := r.Lookup(scsi.MODE_DEVICE_CONFIGURATION, 0); p != nil && p.Current[14] == 0 {
		p.set(14, algorithm)
	}
}

func (r *Registry) ClearCompression() {
	if p := r.Lookup(scsi.MODE_DATA_COMPRESSION, 0); p != nil {
		p.set(2, p.Current[2]&^dataCompressionDCE)
	}

	if p := r.Lookup(scsi.MODE_DEVICE_CONFIGURATION, 0); p != nil {
		p.set(14, 0)
	}
}

// CompressionEnabled reports the DCE bit of the data compression page.
func (r *Registry) CompressionEnabled() bool {
	p := r.Lookup(scsi.MODE_DATA_COMPRESSION, 0)
	return p != nil && p.Current[2]&dataCompressionDCE != 0
}

func (r *Registry) SetWORM() {
	if p := r.Lookup(scsi.MODE_MEDIUM_CONFIGURATION, 0); p != nil {
		p.set(2, p.Current[2]|mediumConfigWORMM)
	}
}

func (r *Registry) ClearWORM() {
	if p := r.Lookup(scsi.MODE_MEDIUM_CONFIGURATION, 0); p != nil {
		p.set(2, p.Current[2]&^mediumConfigWORMM)
	}
}

// WORM reports the WORMM bit of the medium configuration page.
func (r *Registry) WORM() bool {
	p := r.Lookup(scsi.MODE_MEDIUM_CONFIGURATION, 0)
	return p != nil && p.Current[2]&mediumConfigWORMM != 0
}
