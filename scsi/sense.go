// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// SCSI status codes and fixed format sense data.

package scsi

import (
	"encoding/binary"
	"fmt"
)

// Status is a SAM status byte.
type Status uint8

const (
	GOOD                 Status = 0x00
	CHECK_CONDITION      Status = 0x02
	BUSY                 Status = 0x08
	RESERVATION_CONFLICT Status = 0x18
)

func (s Status) String() string {
	switch s {
	case GOOD:
		return "GOOD"
	case CHECK_CONDITION:
		return "CHECK CONDITION"
	case BUSY:
		return "BUSY"
	case RESERVATION_CONFLICT:
		return "RESERVATION CONFLICT"
	}

	return fmt.Sprintf("status %#02x", uint8(s))
}

// Sense keys
const (
	NO_SENSE        = 0x00
	RECOVERED_ERROR = 0x01
	NOT_READY       = 0x02
	MEDIUM_ERROR    = 0x03
	HARDWARE_ERROR  = 0x04
	ILLEGAL_REQUEST = 0x05
	UNIT_ATTENTION  = 0x06
	DATA_PROTECT    = 0x07
	BLANK_CHECK     = 0x08
	VOLUME_OVERFLOW = 0x0d
)

// Additional sense codes, encoded as ASC<<8 | ASCQ.
const (
	ASC_NO_ADDITIONAL_SENSE          = 0x0000
	ASC_FILEMARK_DETECTED            = 0x0001
	ASC_EOP_EOM_DETECTED             = 0x0002
	ASC_BOP_BOM_DETECTED             = 0x0004
	ASC_END_OF_DATA_DETECTED         = 0x0005
	ASC_CAUSE_NOT_REPORTABLE         = 0x0400
	ASC_INITIALIZING_REQUIRED        = 0x0402
	ASC_WRITE_ERROR                  = 0x0c00
	ASC_UNRECOVERED_READ_ERROR       = 0x1100
	ASC_INVALID_OP_CODE              = 0x2000
	ASC_INVALID_FIELD_IN_CDB         = 0x2400
	ASC_INVALID_FIELD_IN_PARMS       = 0x2600
	ASC_WRITE_PROTECT                = 0x2700
	ASC_MEDIUM_INCOMPATIBLE          = 0x3000
	ASC_CLEANING_CART_INSTALLED      = 0x3003
	ASC_MEDIUM_OVERWRITE_ATTEMPTED   = 0x300c
	ASC_MEDIUM_FORMAT_CORRUPT        = 0x3100
	ASC_MEDIUM_NOT_PRESENT           = 0x3a00
	ASC_SEQUENTIAL_POSITIONING_ERROR = 0x3b00
	ASC_POSITION_PAST_BOM            = 0x3b0c
	ASC_INTERNAL_TARGET_FAILURE      = 0x4400
	ASC_UNABLE_TO_DECRYPT            = 0x7401
	ASC_UNENCRYPTED_DATA             = 0x7402
	ASC_INCORRECT_KEY                = 0x7403
	ASC_PARAMETER_LIST_LENGTH_ERROR  = 0x1a00
)

// Sense flag bits in byte 2 of fixed format sense data
const (
	SD_FILEMARK = 0x80
	SD_EOM      = 0x40
	SD_ILI      = 0x20

	sdValid      = 0x80
	sdCurrentErr = 0x70
)

// Sense is a fixed format sense record. It doubles as an error value so that medium engines can
// request specific sense data from the command handler that invoked them.
type Sense struct {
	Key       uint8
	ASC       uint16 // ASC<<8 | ASCQ
	Info      uint32
	InfoValid bool
	Filemark  bool
	EOM       bool
	ILI       bool
}

// NewSense returns a sense record with the given key and additional sense code.
func NewSense(key uint8, asc uint16) Sense {
	return Sense{Key: key, ASC: asc}
}

func (s Sense) Error() string {
	return fmt.Sprintf("sense key: %#02x, asc: %#02x, ascq: %#02x", s.Key, s.ASC>>8, s.ASC&0xff)
}

// SetInfo sets the information field and marks it valid.
func (s *Sense) SetInfo(v uint32) {
	s.Info = v
	s.InfoValid = true
}

// MarshalTo encodes the sense record into b in fixed format and returns the number of bytes
// written. b must be at least SENSE_BUF_LEN bytes long.
func (s Sense) MarshalTo(b []byte) int {
	if len(b) < SENSE_BUF_LEN {
		return 0
	}

	for i := range b[:SENSE_BUF_LEN] {
		b[i] = 0
	}

	b[0] = sdCurrentErr
	if s.InfoValid {
		b[0] |= sdValid
	}

	b[2] = s.Key & 0x0f
	if s.Filemark {
		b[2] |= SD_FILEMARK
	}
	if s.EOM {
		b[2] |= SD_EOM
	}
	if s.ILI {
		b[2] |= SD_ILI
	}

	binary.BigEndian.PutUint32(b[3:], s.Info)
	b[7] = SENSE_BUF_LEN - 8
	b[12] = byte(s.ASC >> 8)
	b[13] = byte(s.ASC)

	return SENSE_BUF_LEN
}

// Bytes returns the fixed format encoding of the sense record.
func (s Sense) Bytes() []byte {
	b := make([]byte, SENSE_BUF_LEN)
	s.MarshalTo(b)
	return b
}
