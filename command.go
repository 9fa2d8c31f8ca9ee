// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"github.com/dswarbrick/vtape/scsi"
)

// Command is a single SCSI command delivered by the transport. Data is the transfer buffer; for
// data-in commands handlers fill it and set Len to the number of valid bytes.
type Command struct {
	CDB      []byte
	SerialNo uint64
	Data     []byte
	Len      int
	Status   scsi.Status
	Sense    scsi.Sense
}

// NewCommand returns a command for a CDB with an empty transfer buffer.
func NewCommand(serial uint64, cdb []byte) *Command {
	return &Command{CDB: cdb, SerialNo: serial}
}

func (c *Command) Opcode() byte {
	return c.CDB[0]
}

// cdbByte returns CDB byte n, or zero for a truncated CDB.
func (c *Command) cdbByte(n int) byte {
	if n < len(c.CDB) {
		return c.CDB[n]
	}

	return 0
}

// cdbField returns n CDB bytes starting at off, zero padded if the CDB is truncated.
func (c *Command) cdbField(off, n int) []byte {
	b := make([]byte, n)

	if off < len(c.CDB) {
		copy(b, c.CDB[off:])
	}

	return b
}

// checkCondition records sense data and returns CHECK CONDITION.
func (c *Command) checkCondition(key uint8, asc uint16) scsi.Status {
	c.Sense = scsi.NewSense(key, asc)
	c.Status = scsi.CHECK_CONDITION
	return c.Status
}

// senseCondition records engine supplied sense data and returns CHECK CONDITION.
func (c *Command) senseCondition(s scsi.Sense) scsi.Status {
	c.Sense = s
	c.Status = scsi.CHECK_CONDITION
	return c.Status
}

func (c *Command) good() scsi.Status {
	c.Status = scsi.GOOD
	return c.Status
}

// respond copies b into the transfer buffer, truncated to alloc bytes.
func (c *Command) respond(b []byte, alloc int) {
	if len(b) > alloc {
		b = b[:alloc]
	}

	c.Data = append(c.Data[:0], b...)
	c.Len = len(b)
}

// Transport moves data between the initiator and the command's transfer buffer.
type Transport interface {
	// RetrievePayload fetches up to cmd.Len bytes of data-out payload into cmd.Data and returns
	// the number of bytes transferred.
	RetrievePayload(cmd *Command) (int, error)
}

// PrimaryCommands handles the SPC commands and generic parameter validation that SSC handlers
// delegate to once their own checks have passed.
type PrimaryCommands interface {
	LogSelect(u *Unit, cmd *Command) scsi.Status
	PersistentReserveIn(u *Unit, cmd *Command) scsi.Status
	PersistentReserveOut(u *Unit, cmd *Command) scsi.Status
	// Reservation returns the persistent reservation type and registered key, if any.
	Reservation() (resType uint8, key uint64)
	ReadAttribute(u *Unit, cmd *Command) scsi.Status
	WriteAttribute(u *Unit, cmd *Command) scsi.Status
	SecurityProtocolIn(u *Unit, cmd *Command) scsi.Status
	SecurityProtocolOut(u *Unit, cmd *Command) scsi.Status
	MaintenanceIn(u *Unit, cmd *Command) scsi.Status
	MaintenanceOut(u *Unit, cmd *Command) scsi.Status
}

// NopPrimary accepts every delegated command and holds no persistent reservation.
type NopPrimary struct{}

func (NopPrimary) LogSelect(*Unit, *Command) scsi.Status            { return scsi.GOOD }
func (NopPrimary) PersistentReserveIn(*Unit, *Command) scsi.Status  { return scsi.GOOD }
func (NopPrimary) PersistentReserveOut(*Unit, *Command) scsi.Status { return scsi.GOOD }
func (NopPrimary) Reservation() (uint8, uint64)                     { return 0, 0 }
func (NopPrimary) ReadAttribute(*Unit, *Command) scsi.Status        { return scsi.GOOD }
func (NopPrimary) WriteAttribute(*Unit, *Command) scsi.Status       { return scsi.GOOD }
func (NopPrimary) SecurityProtocolIn(*Unit, *Command) scsi.Status   { return scsi.GOOD }
func (NopPrimary) SecurityProtocolOut(*Unit, *Command) scsi.Status  { return scsi.GOOD }
func (NopPrimary) MaintenanceIn(*Unit, *Command) scsi.Status        { return scsi.GOOD }
func (NopPrimary) MaintenanceOut(*Unit, *Command) scsi.Status       { return scsi.GOOD }
