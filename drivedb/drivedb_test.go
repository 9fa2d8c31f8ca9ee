// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package drivedb

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDriveDb(t *testing.T) {
	db, err := OpenDriveDb("testdata/drivedb.yaml")
	require.NoError(t, err)
	require.Len(t, db.Drives, 2)

	want := DriveModel{
		Name:        "ULT3580-TD4",
		Personality: "default",
		Vendor:      "IBM",
		Product:     "ULT3580-TD4",
		Revision:    "0104",
		Density: Density{
			Code:         0x46,
			BitsPerMM:    12725,
			MediaWidth:   127,
			Tracks:       896,
			Capacity:     800000,
			Organization: "LTO-CVE",
			Name:         "U-416",
			Description:  "Ultrium 4/16T",
		},
		Media: []Media{
			{Name: "LTO3", Access: LOAD_RO},
			{Name: "LTO4", Access: LOAD_RW},
			{Name: "LTO4 WORM", Access: LOAD_WORM},
			{Name: "LTO2", Access: LOAD_FAIL},
		},
		AppendOnly:        true,
		ProgEarlyWarning:  true,
		BufferSize:        262144,
		CompressionFactor: 6,
	}

	if diff := pretty.Compare(want, db.Drives[1]); diff != "" {
		t.Errorf("decoded drive model mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenDriveDbMissing(t *testing.T) {
	_, err := OpenDriveDb("testdata/does-not-exist.yaml")
	assert.Error(t, err)
}

func TestLookupDrive(t *testing.T) {
	assert := assert.New(t)

	db, err := OpenDriveDb("testdata/drivedb.yaml")
	require.NoError(t, err)

	m := db.LookupDrive("ult3580-td4")
	assert.Equal("IBM", m.Vendor)
	assert.Equal(uint32(262144), m.BufferSize)
	assert.Equal(uint64(1<<20), m.CapacityUnit)

	m = db.LookupDrive("no such drive")
	assert.Equal("DEFAULT", m.Name)
	assert.Equal("default", m.Personality)

	var empty DriveDb
	m = empty.LookupDrive("")
	assert.Equal("DEFAULT", m.Name)
	assert.Equal("linuxVTL", m.Density.Description)
	assert.Len(m.Media, 33)
}

func TestMediaAccess(t *testing.T) {
	assert := assert.New(t)

	db, err := OpenDriveDb("testdata/drivedb.yaml")
	require.NoError(t, err)
	m := db.LookupDrive("ULT3580-TD4")

	tests := []struct {
		desc   string
		name   string
		access string
		ok     bool
	}{
		{desc: "read only", name: "LTO3", access: LOAD_RO, ok: true},
		{desc: "case insensitive", name: "lto4", access: LOAD_RW, ok: true},
		{desc: "worm", name: "LTO4 WORM", access: LOAD_WORM, ok: true},
		{desc: "refused", name: "LTO2", access: LOAD_FAIL, ok: false},
		{desc: "unknown", name: "DDS4", access: "", ok: false},
	}

	for _, tt := range tests {
		access, ok := m.MediaAccess(tt.name)
		assert.Equal(tt.access, access, tt.desc)
		assert.Equal(tt.ok, ok, tt.desc)
	}
}
