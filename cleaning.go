// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package vtape

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Cleaning cartridge mount stages
const (
	CLEAN_MOUNT_NONE   = 0
	CLEAN_MOUNT_STAGE1 = 1 // Cleaning cartridge installed
	CLEAN_MOUNT_STAGE2 = 2 // Cause not reportable
	CLEAN_MOUNT_STAGE3 = 3 // Initializing command required

	cleanStage1Delay = 30 * time.Second
	cleanStage2Delay = 90 * time.Second
)

// Timer is a pending scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs a callback once after a delay.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler schedules callbacks on the wall clock.
var RealScheduler Scheduler = realScheduler{}

// CleaningState is the mount stage counter advanced while a cleaning cartridge is loaded.
type CleaningState struct {
	stage atomic.Int32
	mu    sync.Mutex
	timer Timer
}

// cleaningMount is shared by every unit in the process.
var cleaningMount CleaningState

func (c *CleaningState) Stage() int32 {
	return c.stage.Load()
}

// Mount sets stage 1 and arms the first stage advance, replacing any advance still pending.
func (c *CleaningState) Mount(s Scheduler) {
	c.stage.Store(CLEAN_MOUNT_STAGE1)
	c.arm(s, cleanStage1Delay)
}

// Advance moves to the next stage. Reaching stage 2 arms one further advance.
func (c *CleaningState) Advance(s Scheduler) {
	if c.stage.Add(1) == CLEAN_MOUNT_STAGE2 {
		c.arm(s, cleanStage2Delay)
	}
}

func (c *CleaningState) arm(s Scheduler, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}

	c.timer = s.AfterFunc(d, func() { c.Advance(s) })
}

// ManualScheduler is a Scheduler driven by an explicit clock, for simulations and tests.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	events []*manualEvent
}

type manualEvent struct {
	at  time.Duration
	seq int
	f   func()
	s   *ManualScheduler
}

func (e *manualEvent) Stop() bool {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()

	for i, ev := range e.s.events {
		if ev == e {
			e.s.events = append(e.s.events[:i], e.s.events[i+1:]...)
			return true
		}
	}

	return false
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	ev := &manualEvent{at: m.now + d, seq: m.seq, f: f, s: m}
	m.events = append(m.events, ev)
	sort.SliceStable(m.events, func(i, j int) bool {
		if m.events[i].at != m.events[j].at {
			return m.events[i].at < m.events[j].at
		}
		return m.events[i].seq < m.events[j].seq
	})

	return ev
}

// Advance moves the clock forward, firing due callbacks in deadline order. Callbacks scheduled by
// a firing callback also fire if they fall due within the advance.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d

	for len(m.events) > 0 && m.events[0].at <= target {
		ev := m.events[0]
		m.events = m.events[1:]
		m.now = ev.at

		m.mu.Unlock()
		ev.f()
		m.mu.Lock()
	}

	m.now = target
	m.mu.Unlock()
}

// Pending returns the number of armed callbacks.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.events)
}
