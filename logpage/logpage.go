// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package logpage implements the log pages of a sequential access device.
package logpage

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
)

const (
	HEADER_LEN       = 4
	PARAM_HEADER_LEN = 4

	// Parameter control byte for binary counters
	PARAM_CTRL_COUNTER = 0x60
	// Parameter control byte for TapeAlert flags
	PARAM_CTRL_FLAG = 0xc0
)

// Page is one log page. Refresh, if set, is run against a copy of Data each time the page is
// read so that live values are never stored in the page itself.
type Page struct {
	Code        uint8
	Description string
	Data        []byte
	Refresh     func(b []byte)
}

type param struct {
	code uint16
	ctrl uint8
	len  int
}

// build lays out a page from its parameter list.
func build(code uint8, desc string, params []param) *Page {
	size := HEADER_LEN
	for _, p := range params {
		size += PARAM_HEADER_LEN + p.len
	}

	b := make([]byte, size)
	b[0] = code
	binary.BigEndian.PutUint16(b[2:], uint16(size-HEADER_LEN))

	off := HEADER_LEN
	for _, p := range params {
		binary.BigEndian.PutUint16(b[off:], p.code)
		b[off+2] = p.ctrl
		b[off+3] = byte(p.len)
		off += PARAM_HEADER_LEN + p.len
	}

	return &Page{Code: code, Description: desc, Data: b}
}

// findParam returns the value region of a parameter within page bytes.
func findParam(b []byte, code uint16) []byte {
	if len(b) < HEADER_LEN {
		return nil
	}

	end := HEADER_LEN + int(binary.BigEndian.Uint16(b[2:]))
	if end > len(b) {
		end = len(b)
	}

	for off := HEADER_LEN; off+PARAM_HEADER_LEN <= end; {
		l := int(b[off+3])
		v := off + PARAM_HEADER_LEN

		if v+l > end {
			return nil
		}

		if binary.BigEndian.Uint16(b[off:]) == code {
			return b[v : v+l]
		}

		off = v + l
	}

	return nil
}

// SetParam stores v in a parameter, truncated to the parameter length. It returns false if the
// page has no such parameter.
func SetParam(b []byte, code uint16, v uint64) bool {
	val := findParam(b, code)
	if val == nil {
		return false
	}

	for i := len(val) - 1; i >= 0; i-- {
		val[i] = byte(v)
		v >>= 8
	}

	return true
}

// Param decodes a parameter value.
func Param(b []byte, code uint16) (uint64, bool) {
	val := findParam(b, code)
	if val == nil {
		return 0, false
	}

	var v uint64
	for _, c := range val {
		v = v<<8 | uint64(c)
	}

	return v, true
}

// Registry holds the log pages of a logical unit, ordered by page code.
type Registry struct {
	pages []*Page
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Add(p *Page) error {
	if r.Lookup(p.Code) != nil {
		return errors.Errorf("log page %#02x already registered", p.Code)
	}

	r.pages = append(r.pages, p)
	sort.SliceStable(r.pages, func(i, j int) bool { return r.pages[i].Code < r.pages[j].Code })

	return nil
}

func (r *Registry) Lookup(code uint8) *Page {
	for _, p := range r.pages {
		if p.Code == code {
			return p
		}
	}

	return nil
}

// Supported returns the supported log pages page: a 4 byte header, then page code 0 itself, then
// every registered page code.
func (r *Registry) Supported() []byte {
	b := make([]byte, HEADER_LEN+1, HEADER_LEN+1+len(r.pages))

	for _, p := range r.pages {
		b = append(b, p.Code)
	}

	binary.BigEndian.PutUint16(b[2:], uint16(len(b)-HEADER_LEN))
	return b
}

// Read returns a copy of a page with its refresh hook applied.
func (r *Registry) Read(code uint8) ([]byte, bool) {
	p := r.Lookup(code)
	if p == nil {
		return nil, false
	}

	b := append([]byte(nil), p.Data...)
	if p.Refresh != nil {
		p.Refresh(b)
	}

	return b, true
}

// SetRefresh installs a refresh hook on a registered page.
func (r *Registry) SetRefresh(code uint8, fn func(b []byte)) bool {
	p := r.Lookup(code)
	if p == nil {
		return false
	}

	p.Refresh = fn
	return true
}
