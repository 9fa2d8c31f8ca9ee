// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package vtape implements the device side of the SCSI Stream Commands for a virtual tape drive.
package vtape

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dswarbrick/vtape/drivedb"
	"github.com/dswarbrick/vtape/logpage"
	"github.com/dswarbrick/vtape/medium"
	"github.com/dswarbrick/vtape/modepage"
	"github.com/dswarbrick/vtape/scsi"
	"github.com/dswarbrick/vtape/utils"
)

type LoadState int

const (
	TAPE_UNLOADED LoadState = iota
	TAPE_LOADED
	TAPE_LOAD_BAD
)

func (s LoadState) String() string {
	switch s {
	case TAPE_UNLOADED:
		return "unloaded"
	case TAPE_LOADED:
		return "loaded"
	case TAPE_LOAD_BAD:
		return "format corrupt"
	}

	return "unknown"
}

// Overwrite grant modes set by ALLOW OVERWRITE
const (
	OVERWRITE_DENIED  = 0
	OVERWRITE_CURRENT = 1
	OVERWRITE_FORMAT  = 2
)

// Encryption / decryption modes
const (
	ENCRYPT_DISABLE = 0
	ENCRYPT_ENABLE  = 2

	DECRYPT_DISABLE = 0
	DECRYPT_RAW     = 1
	DECRYPT_DECRYPT = 2
	DECRYPT_MIXED   = 3
)

const (
	// TapeAlert flag 9: write protect
	TA_WRITE_PROTECT = 0x100

	// Overwrite block value that matches no block on any medium
	overwriteBlockInvalid = ^uint64(0)
)

var ErrIncompatibleMedium = errors.New("medium not supported by drive")

// Config holds the collaborators and settings of a logical unit.
type Config struct {
	Serial    string
	Model     drivedb.DriveModel
	Engine    medium.Engine
	Transport Transport
	Primary   PrimaryCommands
	Scheduler Scheduler
	Logger    *log.Logger
}

// PageRegistrar is implemented by personalities that register their own mode and log pages.
type PageRegistrar interface {
	RegisterPages(modes *modepage.Registry, logs *logpage.Registry) error
}

// Unit is one emulated tape drive. Commands are executed one at a time.
type Unit struct {
	mu sync.Mutex

	Serial    string
	Modes     *modepage.Registry
	Logs      *logpage.Registry
	model     drivedb.DriveModel
	pm        Personality
	engine    medium.Engine
	transport Transport
	primary   PrimaryCommands
	sched     Scheduler
	log       *log.Entry

	state        LoadState
	mam          *medium.MAM
	writeProtect bool

	appendOnly          bool
	allowOverwrite      uint8
	allowOverwriteBlock uint64

	compressionFactor int
	encryptMode       uint8
	decryptMode       uint8
	encryption        *medium.Encryption

	spc2Reserved bool

	bytesReadI    uint64
	bytesReadM    uint64
	bytesWrittenI uint64
	bytesWrittenM uint64

	bufSize              uint32
	capacityUnit         uint64
	earlyWarningSize     uint64
	progEarlyWarningSize uint16
	earlyWarningPosition uint64

	cleaning *CleaningState
}

// NewUnit creates a logical unit, binding the personality named by the drive model and
// registering its mode and log pages.
func NewUnit(cfg Config) (*Unit, error) {
	if cfg.Engine == nil {
		return nil, errors.New("logical unit requires a medium engine")
	}

	model := cfg.Model.WithDefaults()
	if cfg.Model.Name == "" {
		db := drivedb.Builtin()
		model = db.LookupDrive("")
	}

	pm, err := lookupPersonality(model)
	if err != nil {
		return nil, err
	}

	u := &Unit{
		Serial:              cfg.Serial,
		Modes:               modepage.NewRegistry(),
		Logs:                logpage.NewRegistry(),
		model:               model,
		pm:                  pm,
		engine:              cfg.Engine,
		transport:           cfg.Transport,
		primary:             cfg.Primary,
		sched:               cfg.Scheduler,
		allowOverwriteBlock: overwriteBlockInvalid,
		compressionFactor:   model.CompressionFactor,
		bufSize:             model.BufferSize,
		capacityUnit:        model.CapacityUnit,
		earlyWarningSize:    model.EarlyWarningSize,
	}

	if u.Serial == "" {
		u.Serial = strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:10]
	}
	if u.primary == nil {
		u.primary = NopPrimary{}
	}
	if u.sched == nil {
		u.sched = RealScheduler
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	u.log = logger.WithFields(log.Fields{"unit": u.Serial, "drive": model.Name})

	if r, ok := pm.(PageRegistrar); ok {
		err = r.RegisterPages(u.Modes, u.Logs)
	} else {
		err = registerDefaultPages(u.Modes, u.Logs)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot register pages")
	}

	u.Modes.SetDensityCode(model.Density.Code)
	u.Logs.SetRefresh(scsi.LOG_SEQUENTIAL_ACCESS, u.refreshSeqAccess)
	u.Logs.SetRefresh(scsi.LOG_TAPE_CAPACITY, u.refreshTapeCapacity)

	u.log.WithField("personality", pm.Name()).Debug("Logical unit created")

	return u, nil
}

func (u *Unit) Personality() Personality {
	return u.pm
}

func (u *Unit) Scheduler() Scheduler {
	return u.sched
}

func (u *Unit) Logger() *log.Entry {
	return u.log
}

func (u *Unit) State() LoadState {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.state
}

// MAM returns the auxiliary memory of the loaded medium, or nil.
func (u *Unit) MAM() *medium.MAM {
	return u.mam
}

func (u *Unit) Position() medium.Position {
	return u.engine.Position()
}

// BindCleaning makes TEST UNIT READY report the stage of c. A nil c removes the binding.
func (u *Unit) BindCleaning(c *CleaningState) {
	u.cleaning = c
}

// SetEncryption configures the data encryption and decryption modes and the key used for both.
func (u *Unit) SetEncryption(encryptMode, decryptMode uint8, key *medium.Encryption) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.pm.UpdateEncryptionMode(u.Modes, key, encryptMode); err != nil {
		return err
	}

	u.encryptMode = encryptMode
	u.decryptMode = decryptMode
	u.encryption = key

	return nil
}

// LoadMedium mounts the medium held by the engine, as a library robot would.
func (u *Unit) LoadMedium() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.loadMedium()
}

func (u *Unit) loadMedium() error {
	mam, err := u.engine.Load()
	if err != nil {
		if errors.Cause(err) == medium.ErrCorruptImage {
			u.state = TAPE_LOAD_BAD
			u.log.WithError(err).Warn("Medium format corrupt")
		}
		return errors.Wrap(err, "cannot load medium")
	}

	access, ok := u.model.MediaAccess(mam.MediaName)
	if !ok {
		u.engine.Unload()
		return errors.Wrapf(ErrIncompatibleMedium, "%s", mam.MediaName)
	}

	u.mam = mam
	u.state = TAPE_LOADED
	u.writeProtect = access == drivedb.LOAD_RO
	u.allowOverwrite = OVERWRITE_DENIED
	u.allowOverwriteBlock = overwriteBlockInvalid

	if mam.MediumType == medium.MEDIA_TYPE_WORM {
		u.pm.SetWORM(u.Modes)
	} else {
		u.pm.ClearWORM(u.Modes)
	}

	u.updateProgEarlyWarning()
	u.pm.MediaLoad(u, true)

	if mam.MediumType == medium.MEDIA_TYPE_CLEAN {
		u.pm.CleaningMedia(u)
	}

	u.log.WithFields(log.Fields{
		"media":    mam.MediaName,
		"type":     mam.MediumType,
		"serial":   mam.Serial,
		"capacity": utils.FormatBytes(mam.MaxCapacity),
	}).Info("Medium loaded")

	return nil
}

// UnloadMedium rewinds and ejects the medium.
func (u *Unit) UnloadMedium() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.unloadTape()
}

func (u *Unit) unloadTape() error {
	switch u.state {
	case TAPE_UNLOADED:
		return medium.ErrNoMedium
	case TAPE_LOADED:
		if err := u.engine.Rewind(); err != nil {
			u.log.WithError(err).Warn("Rewind before unload failed")
		}
		if err := u.engine.RewriteMAM(); err != nil {
			u.log.WithError(err).Warn("Cannot update MAM")
		}
	}

	u.pm.MediaLoad(u, false)
	u.cleaning = nil
	u.state = TAPE_UNLOADED
	u.mam = nil

	if err := u.engine.Unload(); err != nil && err != medium.ErrNoMedium {
		return errors.Wrap(err, "cannot unload medium")
	}

	u.log.Info("Medium unloaded")
	return nil
}

// updateProgEarlyWarning recomputes the early warning position from the medium capacity and the
// programmable early warning size.
func (u *Unit) updateProgEarlyWarning() {
	if u.mam == nil {
		u.earlyWarningPosition = 0
		return
	}

	ew := u.earlyWarningSize + uint64(u.progEarlyWarningSize)<<20
	if ew >= u.mam.MaxCapacity {
		u.earlyWarningPosition = 0
	} else {
		u.earlyWarningPosition = u.mam.MaxCapacity - ew
	}
}

func (u *Unit) compressionLevel() int {
	if u.Modes.CompressionEnabled() {
		return u.compressionFactor
	}

	return 0
}

// retrieve fetches n bytes of data-out payload from the transport.
func (u *Unit) retrieve(cmd *Command, n int) ([]byte, error) {
	if cap(cmd.Data) < n {
		cmd.Data = make([]byte, n)
	}
	cmd.Data = cmd.Data[:n]
	cmd.Len = n

	if n == 0 {
		return cmd.Data, nil
	}

	if u.transport == nil {
		return nil, errors.New("no transport to retrieve payload")
	}

	got, err := u.transport.RetrievePayload(cmd)
	if err != nil {
		return nil, errors.Wrap(err, "cannot retrieve payload")
	}

	if got < n {
		u.log.WithFields(log.Fields{"want": n, "got": got}).Warn("Short data-out transfer")
		n = got
	}

	return cmd.Data[:n], nil
}

// Execute runs one command to completion and returns its status.
func (u *Unit) Execute(cmd *Command) scsi.Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	cmd.Status = scsi.GOOD
	cmd.Sense = scsi.Sense{}

	if len(cmd.CDB) == 0 {
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_OP_CODE)
	}

	h, ok := sscHandlers[cmd.Opcode()]
	if !ok {
		u.log.WithFields(log.Fields{
			"serial": cmd.SerialNo,
			"opcode": cmd.Opcode(),
		}).Warn("Unsupported operation code")
		return cmd.checkCondition(scsi.ILLEGAL_REQUEST, scsi.ASC_INVALID_OP_CODE)
	}

	u.log.WithField("serial", cmd.SerialNo).Debug(h.name)

	cmd.Status = h.fn(u, cmd)
	return cmd.Status
}
