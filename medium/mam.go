// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package medium

import (
	"strings"

	"github.com/google/uuid"
)

type MediumType uint8

// Medium types, as stored in the MEDIUM TYPE attribute
const (
	MEDIA_TYPE_DATA  MediumType = 0x00
	MEDIA_TYPE_CLEAN MediumType = 0x01
	MEDIA_TYPE_WORM  MediumType = 0x80
)

func (t MediumType) String() string {
	switch t {
	case MEDIA_TYPE_DATA:
		return "data"
	case MEDIA_TYPE_CLEAN:
		return "cleaning"
	case MEDIA_TYPE_WORM:
		return "WORM"
	}

	return "unknown"
}

// MAM is the medium auxiliary memory of a cartridge.
type MAM struct {
	MediumType           MediumType `yaml:"medium_type"`
	MediaName            string     `yaml:"media_name"`
	Barcode              string     `yaml:"barcode"`
	Serial               string     `yaml:"serial"`
	MediumDensityCode    uint8      `yaml:"medium_density_code"`
	FormattedDensityCode uint8      `yaml:"formatted_density_code"`
	MaxCapacity          uint64     `yaml:"max_capacity"`
	RemainingCapacity    uint64     `yaml:"remaining_capacity"`
	LoadCount            uint64     `yaml:"load_count"`
	Attributes           []byte     `yaml:"attributes,omitempty"`
}

// NewMAM returns auxiliary memory for a blank cartridge with a freshly generated serial number.
func NewMAM(mediaName string, t MediumType, capacity uint64) MAM {
	serial := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))

	return MAM{
		MediumType:        t,
		MediaName:         mediaName,
		Serial:            serial[:16],
		MaxCapacity:       capacity,
		RemainingCapacity: capacity,
	}
}
