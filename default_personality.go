// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"github.com/dswarbrick/vtape/drivedb"
	"github.com/dswarbrick/vtape/logpage"
	"github.com/dswarbrick/vtape/medium"
	"github.com/dswarbrick/vtape/modepage"
)

const DEFAULT_PERSONALITY = "default"

func init() {
	RegisterPersonality(DEFAULT_PERSONALITY, NewDefaultPersonality)
}

// DefaultPersonality is the generic SSC drive. Vendor personalities embed it and override what
// differs.
type DefaultPersonality struct {
	model drivedb.DriveModel
}

func NewDefaultPersonality(model drivedb.DriveModel) Personality {
	return &DefaultPersonality{model: model}
}

func (p *DefaultPersonality) Name() string {
	return DEFAULT_PERSONALITY
}

func (p *DefaultPersonality) Model() drivedb.DriveModel {
	return p.model
}

func (p *DefaultPersonality) Capabilities() Capabilities {
	return Capabilities{
		AppendOnly:       p.model.AppendOnly,
		ProgEarlyWarning: p.model.ProgEarlyWarning,
	}
}

func (p *DefaultPersonality) ClearCompression(pages *modepage.Registry) {
	pages.ClearCompression()
}

func (p *DefaultPersonality) SetCompression(pages *modepage.Registry, level int) {
	pages.SetCompression(uint8(level))
}

func (p *DefaultPersonality) ClearWORM(pages *modepage.Registry) {
	pages.ClearWORM()
}

func (p *DefaultPersonality) SetWORM(pages *modepage.Registry) {
	pages.SetWORM()
}

func (p *DefaultPersonality) UpdateEncryptionMode(pages *modepage.Registry, enc *medium.Encryption, mode uint8) error {
	return nil
}

func (p *DefaultPersonality) KADValidation(encryptMode uint8, ukad, akad int) bool {
	return false
}

func (p *DefaultPersonality) CheckRestrictions(u *Unit, cmd *Command) bool {
	return CheckRestrictions(u, cmd)
}

func (p *DefaultPersonality) ValidEncryptionBlock(u *Unit, cmd *Command) bool {
	return ValidEncryptionBlock(u, cmd)
}

func (p *DefaultPersonality) MediaLoad(u *Unit, load bool) {
}

// CleaningMedia binds the unit to the process wide cleaning counter and starts the stage timer.
func (p *DefaultPersonality) CleaningMedia(u *Unit) {
	u.BindCleaning(&cleaningMount)
	cleaningMount.Mount(u.Scheduler())
}

func (p *DefaultPersonality) RegisterPages(modes *modepage.Registry, logs *logpage.Registry) error {
	return registerDefaultPages(modes, logs)
}

func registerDefaultPages(modes *modepage.Registry, logs *logpage.Registry) error {
	for _, mp := range []*modepage.Page{
		modepage.NewRWErrorRecovery(),
		modepage.NewDisconnectReconnect(),
		modepage.NewControl(),
		modepage.NewDataCompression(),
		modepage.NewDeviceConfiguration(),
		modepage.NewDeviceConfigurationExt(),
		modepage.NewMediumPartition(),
		modepage.NewPowerCondition(),
		modepage.NewInformationalExceptions(),
		modepage.NewMediumConfiguration(),
	} {
		if err := modes.Add(mp); err != nil {
			return err
		}
	}

	for _, lp := range []*logpage.Page{
		logpage.NewWriteErrorCounter(),
		logpage.NewReadErrorCounter(),
		logpage.NewSequentialAccess(),
		logpage.NewTemperature(),
		logpage.NewTapeAlert(),
		logpage.NewTapeUsage(),
		logpage.NewTapeCapacity(),
		logpage.NewDataCompression(),
	} {
		if err := logs.Add(lp); err != nil {
			return err
		}
	}

	return nil
}
