// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/dswarbrick/vtape/drivedb"
	"github.com/dswarbrick/vtape/medium"
	"github.com/dswarbrick/vtape/modepage"
)

// Capabilities are the optional SSC features a drive type implements.
type Capabilities struct {
	AppendOnly       bool
	ProgEarlyWarning bool
}

// Personality is the per drive type behaviour the command handlers call through. Exactly one is
// bound to each unit when it is created.
type Personality interface {
	Name() string
	Model() drivedb.DriveModel
	Capabilities() Capabilities

	ClearCompression(pages *modepage.Registry)
	SetCompression(pages *modepage.Registry, level int)
	ClearWORM(pages *modepage.Registry)
	SetWORM(pages *modepage.Registry)
	UpdateEncryptionMode(pages *modepage.Registry, enc *medium.Encryption, mode uint8) error
	KADValidation(encryptMode uint8, ukad, akad int) bool
	CheckRestrictions(u *Unit, cmd *Command) bool
	ValidEncryptionBlock(u *Unit, cmd *Command) bool
	MediaLoad(u *Unit, load bool)
	CleaningMedia(u *Unit)
}

// PersonalityFactory builds a personality for a drive model.
type PersonalityFactory func(model drivedb.DriveModel) Personality

var (
	personalityMu sync.RWMutex
	personalities = make(map[string]PersonalityFactory)
)

// RegisterPersonality makes a personality available to units by name.
func RegisterPersonality(name string, f PersonalityFactory) {
	personalityMu.Lock()
	defer personalityMu.Unlock()

	personalities[name] = f
}

// Personalities returns the names of the registered personalities.
func Personalities() []string {
	personalityMu.RLock()
	defer personalityMu.RUnlock()

	names := make([]string, 0, len(personalities))
	for n := range personalities {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}

func lookupPersonality(model drivedb.DriveModel) (Personality, error) {
	personalityMu.RLock()
	f, ok := personalities[model.Personality]
	personalityMu.RUnlock()

	if !ok {
		return nil, errors.Errorf("unknown personality %q for drive %s", model.Personality, model.Name)
	}

	return f(model), nil
}
