// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package drivedb

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	// Media access modes
	LOAD_RW   = "rw"
	LOAD_RO   = "ro"
	LOAD_WORM = "worm"
	LOAD_FAIL = "fail"

	// Density code reported when a drive has no assigned density
	DENSITY_UNKNOWN = 0x00

	defaultName = "DEFAULT"
)

// Density describes a recording density as reported by REPORT DENSITY SUPPORT.
type Density struct {
	Code         uint8  `yaml:"code"`
	BitsPerMM    uint32 `yaml:"bits_per_mm"`
	MediaWidth   uint16 `yaml:"media_width"`
	Tracks       uint16 `yaml:"tracks"`
	Capacity     uint32 `yaml:"capacity"` // Megabytes
	Organization string `yaml:"organization"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
}

type Media struct {
	Name   string `yaml:"name"`
	Access string `yaml:"access"`
}

// DriveModel is a drive personality: its identity, native density, the media it accepts and the
// optional SSC features it implements.
type DriveModel struct {
	Name              string  `yaml:"name"`
	Personality       string  `yaml:"personality,omitempty"`
	Vendor            string  `yaml:"vendor"`
	Product           string  `yaml:"product"`
	Revision          string  `yaml:"revision,omitempty"`
	Density           Density `yaml:"density"`
	Media             []Media `yaml:"media,omitempty"`
	AppendOnly        bool    `yaml:"append_only,omitempty"`
	ProgEarlyWarning  bool    `yaml:"prog_early_warning,omitempty"`
	BufferSize        uint32  `yaml:"buffer_size,omitempty"`
	CapacityUnit      uint64  `yaml:"capacity_unit,omitempty"`
	EarlyWarningSize  uint64  `yaml:"early_warning_size,omitempty"`
	CompressionFactor int     `yaml:"compression_factor,omitempty"`
}

type DriveDb struct {
	Drives []DriveModel `yaml:"drives"`
}

// MediaAccess returns the access mode for a named medium, and false if the drive does not accept
// it at all.
func (m DriveModel) MediaAccess(name string) (string, bool) {
	for _, media := range m.Media {
		if strings.EqualFold(media.Name, name) {
			return media.Access, media.Access != LOAD_FAIL
		}
	}

	return "", false
}

// LookupDrive returns the DriveModel matching a drive name or product identification, falling
// back to the DEFAULT entry.
func (db *DriveDb) LookupDrive(name string) DriveModel {
	var model DriveModel

	for _, d := range db.Drives {
		if d.Name == defaultName {
			model = d
			continue
		}

		if name != "" && (strings.EqualFold(d.Name, name) || strings.EqualFold(d.Product, name)) {
			model = d
			break
		}
	}

	if model.Name == "" {
		model = Builtin().Drives[0]
	}

	return model.WithDefaults()
}

// WithDefaults fills in the sizes a drive model leaves unset.
func (m DriveModel) WithDefaults() DriveModel {
	if m.Personality == "" {
		m.Personality = "default"
	}
	if m.BufferSize == 0 {
		m.BufferSize = 1 << 20
	}
	if m.CapacityUnit == 0 {
		m.CapacityUnit = 1 << 20
	}
	if m.EarlyWarningSize == 0 {
		m.EarlyWarningSize = 1 << 21
	}

	return m
}

// OpenDriveDb opens a YAML-formatted drive database, unmarshalls it, and returns a DriveDb.
func OpenDriveDb(dbfile string) (DriveDb, error) {
	var db DriveDb

	f, err := os.Open(dbfile)
	if err != nil {
		return db, errors.Wrap(err, "cannot open drive database")
	}

	defer f.Close()
	dec := yaml.NewDecoder(f)

	if err := dec.Decode(&db); err != nil {
		return db, errors.Wrapf(err, "cannot decode drive database %s", dbfile)
	}

	return db, nil
}

// Builtin returns the drive database compiled into the emulator. It holds the DEFAULT personality
// only.
func Builtin() DriveDb {
	rw := func(names ...string) []Media {
		m := make([]Media, 0, len(names))
		for _, n := range names {
			m = append(m, Media{Name: n, Access: LOAD_RW})
		}
		return m
	}

	media := rw(
		"LTO1", "LTO2", "LTO3", "LTO4", "LTO5",
		"DDS1", "DDS2", "DDS3", "DDS4", "DDS5",
		"DLT2", "DLT3", "DLT4",
		"SDLT", "SDLT 220", "SDLT 320", "SDLT 600",
		"T10KA", "T10KB", "T10KC",
		"9840A", "9840B", "9840C", "9840D",
		"9940A", "9940B",
		"AIT1", "AIT2", "AIT3", "AIT4",
		"03592 JA", "03592 JB", "03592 JC",
	)

	return DriveDb{Drives: []DriveModel{{
		Name:        defaultName,
		Personality: "default",
		Vendor:      "mhVTL",
		Product:     "DEFAULT",
		Revision:    "0001",
		Density: Density{
			Code:         DENSITY_UNKNOWN,
			BitsPerMM:    1024,
			MediaWidth:   127,
			Tracks:       1,
			Capacity:     500,
			Organization: "mhVTL",
			Name:         "DEFAULT",
			Description:  "linuxVTL",
		},
		Media:             media,
		BufferSize:        1 << 20,
		CapacityUnit:      1 << 20,
		EarlyWarningSize:  1 << 21,
		CompressionFactor: 1,
	}}}
}
