// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/dswarbrick/vtape"
	"github.com/dswarbrick/vtape/scsi"
)

// Step is one entry of a command script. A step either executes a CDB, advances the manual
// clock, or both (the clock first).
type Step struct {
	Comment string        `yaml:"comment,omitempty"`
	CDB     string        `yaml:"cdb,omitempty"`
	Data    string        `yaml:"data,omitempty"`
	Text    string        `yaml:"text,omitempty"`
	Alloc   int           `yaml:"alloc,omitempty"`
	Advance time.Duration `yaml:"advance,omitempty"`
	Expect  *Expect       `yaml:"expect,omitempty"`
}

// Expect is the outcome a step must produce.
type Expect struct {
	Status string `yaml:"status"`
	Key    uint8  `yaml:"key,omitempty"`
	ASC    uint16 `yaml:"asc,omitempty"`
}

type Script struct {
	Steps []Step `yaml:"steps"`
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}

func parseScript(r io.Reader) (Script, error) {
	var s Script

	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return s, errors.Wrap(err, "cannot decode script")
	}

	for i, st := range s.Steps {
		if st.CDB == "" && st.Advance == 0 {
			return s, errors.Errorf("step %d: neither cdb nor advance given", i+1)
		}

		if st.Data != "" && st.Text != "" {
			return s, errors.Errorf("step %d: data and text are mutually exclusive", i+1)
		}

		cdb, err := decodeHex(st.CDB)
		if err != nil {
			return s, errors.Wrapf(err, "step %d: bad cdb", i+1)
		}

		if len(cdb) > 0 && len(cdb) < scsi.CDBLength(cdb[0]) {
			return s, errors.Errorf("step %d: %d byte cdb for opcode %#02x", i+1, len(cdb), cdb[0])
		}

		if _, err := decodeHex(st.Data); err != nil {
			return s, errors.Wrapf(err, "step %d: bad data", i+1)
		}
	}

	return s, nil
}

// payload returns the data-out bytes of a step.
func (st Step) payload() []byte {
	if st.Text != "" {
		return []byte(st.Text)
	}

	b, _ := decodeHex(st.Data)
	return b
}

// check compares a finished command with the expected outcome.
func (e *Expect) check(cmd *vtape.Command) error {
	if e == nil {
		return nil
	}

	if !strings.EqualFold(e.Status, cmd.Status.String()) {
		return errors.Errorf("status %s, expected %s", cmd.Status, e.Status)
	}

	if e.Key != 0 && (e.Key != cmd.Sense.Key || e.ASC != cmd.Sense.ASC) {
		return errors.Errorf("sense %#02x/%#04x, expected %#02x/%#04x", cmd.Sense.Key, cmd.Sense.ASC, e.Key, e.ASC)
	}

	return nil
}

// scriptTransport hands the payload of the current step to the unit.
type scriptTransport struct {
	payload []byte
}

func (x *scriptTransport) RetrievePayload(cmd *vtape.Command) (int, error) {
	return copy(cmd.Data, x.payload), nil
}
