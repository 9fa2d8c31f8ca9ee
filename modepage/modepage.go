// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Package modepage implements the mode parameter pages of a sequential access device.
package modepage

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/dswarbrick/vtape/utils"
)

// Page control values
const (
	PC_CURRENT    = 0
	PC_CHANGEABLE = 1
	PC_DEFAULT    = 2
	PC_SAVED      = 3

	ALL_PAGES = 0x3f

	// Subpage format flag in byte 0 of a page
	SPF = 0x40

	BLOCK_DESCRIPTOR_LEN = 8
)

// Page is one mode page. All four byte regions have the same length and include the page
// header.
type Page struct {
	Code        uint8
	Subpage     uint8
	Description string
	Current     []byte
	Changeable  []byte
	Default     []byte
	Saved       []byte
}

func newPage(code, subpage uint8, length int, desc string) *Page {
	p := &Page{
		Code:        code,
		Subpage:     subpage,
		Description: desc,
		Current:     make([]byte, length),
		Changeable:  make([]byte, length),
		Default:     make([]byte, length),
		Saved:       make([]byte, length),
	}

	if p.SubpageFormat() {
		p.Current[0] = code | SPF
		p.Current[1] = subpage
		p.Current[2] = byte((length - 4) >> 8)
		p.Current[3] = byte(length - 4)
	} else {
		p.Current[0] = code
		p.Current[1] = byte(length - 2)
	}

	return p
}

// SubpageFormat reports whether the page uses the 4 byte sub_page header.
func (p *Page) SubpageFormat() bool {
	return p.Subpage != 0
}

// HeaderLen returns the length of the page header.
func (p *Page) HeaderLen() int {
	if p.SubpageFormat() {
		return 4
	}

	return 2
}

// commit copies the current values to the default and saved regions, and builds the changeable
// mask header.
func (p *Page) commit() *Page {
	copy(p.Default, p.Current)
	copy(p.Saved, p.Current)
	copy(p.Changeable[:p.HeaderLen()], p.Current[:p.HeaderLen()])
	return p
}

// Values returns the region selected by a page control value.
func (p *Page) Values(pc uint8) []byte {
	switch pc {
	case PC_CHANGEABLE:
		return p.Changeable
	case PC_DEFAULT:
		return p.Default
	case PC_SAVED:
		return p.Saved
	}

	return p.Current
}

// Update replaces the page parameters (everything after the header) with those from a MODE
// SELECT page record, and stores them as saved values.
func (p *Page) Update(rec []byte) {
	hl := p.HeaderLen()

	if len(rec) > hl {
		copy(p.Current[hl:], rec[hl:])
	}

	copy(p.Saved, p.Current)
}

// set stores v at offset off of the current and saved values.
func (p *Page) set(off int, v byte) {
	p.Current[off] = v
	p.Saved[off] = v
}

// Registry holds the mode pages of a logical unit, ordered by page and subpage code, and the
// mode parameter block descriptor.
type Registry struct {
	pages           []*Page
	BlockDescriptor [BLOCK_DESCRIPTOR_LEN]byte
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a page. Registering the same page twice is an error.
func (r *Registry) Add(p *Page) error {
	if r.Lookup(p.Code, p.Subpage) != nil {
		return errors.Errorf("mode page %#02x/%#02x already registered", p.Code, p.Subpage)
	}

	r.pages = append(r.pages, p)
	sort.SliceStable(r.pages, func(i, j int) bool {
		if r.pages[i].Code != r.pages[j].Code {
			return r.pages[i].Code < r.pages[j].Code
		}
		return r.pages[i].Subpage < r.pages[j].Subpage
	})

	return nil
}

func (r *Registry) Lookup(code, subpage uint8) *Page {
	for _, p := range r.pages {
		if p.Code == code && p.Subpage == subpage {
			return p
		}
	}

	return nil
}

func (r *Registry) Pages() []*Page {
	return r.pages
}

// Sense returns the concatenated bytes of the requested page(s) for a page control value. Page
// code ALL_PAGES with subpage 0 returns every page without a subpage; subpage 0xff selects all
// subpages.
func (r *Registry) Sense(code, subpage, pc uint8) ([]byte, bool) {
	var buf []byte
	found := false

	for _, p := range r.pages {
		if code != ALL_PAGES && p.Code != code {
			continue
		}

		if subpage != 0xff && p.Subpage != subpage {
			continue
		}

		buf = append(buf, p.Values(pc)...)
		found = true
	}

	return buf, found
}

// BlockLength returns the fixed block length from the block descriptor.
func (r *Registry) BlockLength() uint32 {
	return utils.GetBE24(r.BlockDescriptor[5:])
}

func (r *Registry) SetBlockLength(n uint32) {
	utils.PutBE24(r.BlockDescriptor[5:], n)
}

// DensityCode returns the density code from the block descriptor.
func (r *Registry) DensityCode() uint8 {
	return r.BlockDescriptor[0]
}

func (r *Registry) SetDensityCode(d uint8) {
	r.BlockDescriptor[0] = d
}
