// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// SCSI command definitions.

package scsi

const (
	// SSC / SPC commands handled by a sequential access device
	TEST_UNIT_READY          = 0x00
	REWIND                   = 0x01
	REQUEST_SENSE            = 0x03
	FORMAT_MEDIUM            = 0x04
	READ_BLOCK_LIMITS        = 0x05
	LOAD_DISPLAY             = 0x06
	READ_6                   = 0x08
	WRITE_6                  = 0x0a
	WRITE_FILEMARKS_6        = 0x10
	SPACE_6                  = 0x11
	INQUIRY                  = 0x12
	MODE_SELECT_6            = 0x15
	RESERVE_6                = 0x16
	RELEASE_6                = 0x17
	ERASE_6                  = 0x19
	MODE_SENSE_6             = 0x1a
	LOAD_UNLOAD              = 0x1b
	PREVENT_ALLOW_MEDIUM     = 0x1e
	LOCATE_10                = 0x2b
	READ_POSITION            = 0x34
	REPORT_DENSITY_SUPPORT   = 0x44
	LOG_SELECT               = 0x4c
	LOG_SENSE                = 0x4d
	MODE_SELECT_10           = 0x55
	RESERVE_10               = 0x56
	RELEASE_10               = 0x57
	MODE_SENSE_10            = 0x5a
	PERSISTENT_RESERVE_IN    = 0x5e
	PERSISTENT_RESERVE_OUT   = 0x5f
	ALLOW_OVERWRITE          = 0x82
	READ_ATTRIBUTE           = 0x8c
	WRITE_ATTRIBUTE          = 0x8d
	SECURITY_PROTOCOL_IN     = 0xa2
	MAINTENANCE_IN           = 0xa3
	MAINTENANCE_OUT          = 0xa4
	READ_MEDIA_SERIAL_NUMBER = 0xab
	SECURITY_PROTOCOL_OUT    = 0xb5

	// Mode pages (SSC-3)
	MODE_RW_ERROR_RECOVERY        = 0x01
	MODE_DISCONNECT_RECONNECT     = 0x02
	MODE_CONTROL                  = 0x0a
	MODE_DATA_COMPRESSION         = 0x0f
	MODE_DEVICE_CONFIGURATION     = 0x10
	MODE_MEDIUM_PARTITION         = 0x11
	MODE_POWER_CONDITION          = 0x1a
	MODE_INFORMATION_EXCEPTION    = 0x1c
	MODE_MEDIUM_CONFIGURATION     = 0x1d
	MODE_DEVICE_CONFIGURATION_EXT = 0x01 // subpage of MODE_DEVICE_CONFIGURATION

	// Log pages
	LOG_SUPPORTED_PAGES     = 0x00
	LOG_WRITE_ERROR_COUNTER = 0x02
	LOG_READ_ERROR_COUNTER  = 0x03
	LOG_SEQUENTIAL_ACCESS   = 0x0c
	LOG_TEMPERATURE         = 0x0d
	LOG_TAPE_ALERT          = 0x2e
	LOG_TAPE_USAGE          = 0x30
	LOG_TAPE_CAPACITY       = 0x31
	LOG_DATA_COMPRESSION    = 0x32

	// Length of fixed format sense data
	SENSE_BUF_LEN = 18
)

// CDBLength returns the CDB length implied by the group code of an operation code.
func CDBLength(op byte) int {
	switch op >> 5 {
	case 0:
		return 6
	case 1, 2:
		return 10
	case 4:
		return 16
	case 5:
		return 12
	}

	return 0
}
