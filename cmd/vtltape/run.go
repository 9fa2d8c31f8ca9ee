// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dswarbrick/vtape"
	"github.com/dswarbrick/vtape/medium"
	"github.com/dswarbrick/vtape/scsi"
)

var (
	cmdRun = &cobra.Command{
		Use:   "run SCRIPT",
		Short: "Replay a YAML command script against a virtual drive",
		Long: `Replay a YAML command script against a virtual drive.

Each step gives a CDB in hex, an optional data-out payload (hex "data" or
literal "text"), and optionally a clock advance for cleaning cartridge
timers. "alloc" limits how many bytes of returned data are printed.`,
		Args: cobra.ExactArgs(1),
		RunE: runScript,
	}

	runDrive    string
	runImage    string
	runMedia    string
	runType     string
	runSerial   string
	manualClock bool
	noLoad      bool
)

func init() {
	cmdRun.Flags().StringVar(&runDrive, "drive", "", "drive name or product from the drive database")
	cmdRun.Flags().StringVar(&runImage, "image", "", "tape image file (default: blank in-memory medium)")
	cmdRun.Flags().StringVar(&runMedia, "media", "LTO4", "media name of the in-memory medium")
	cmdRun.Flags().StringVar(&runType, "type", "data", "medium type of the in-memory medium")
	cmdRun.Flags().StringVar(&runSerial, "serial", "", "unit serial number")
	cmdRun.Flags().BoolVar(&manualClock, "manual-clock", false, "drive timers from script advance steps")
	cmdRun.Flags().BoolVar(&noLoad, "no-load", false, "leave the medium unloaded")
	root.AddCommand(cmdRun)
}

// openEngine returns the medium engine for a run, and a function releasing it.
func openEngine() (medium.Engine, func(), error) {
	if runImage != "" {
		ft, err := medium.OpenFileTape(runImage)
		if err != nil {
			return nil, nil, err
		}
		return ft, func() { ft.Close() }, nil
	}

	typ, err := parseMediumType(runType)
	if err != nil {
		return nil, nil, err
	}

	return medium.NewMemoryTape(medium.NewMAM(runMedia, typ, 800<<20)), func() {}, nil
}

func runScript(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "cannot open script")
	}
	defer f.Close()

	script, err := parseScript(f)
	if err != nil {
		return err
	}

	db, err := openDriveDb()
	if err != nil {
		return err
	}

	engine, release, err := openEngine()
	if err != nil {
		return err
	}
	defer release()

	xfer := &scriptTransport{}
	cfg := vtape.Config{
		Serial:    runSerial,
		Model:     db.LookupDrive(runDrive),
		Engine:    engine,
		Transport: xfer,
		Logger:    log.StandardLogger(),
	}

	var clock *vtape.ManualScheduler
	if manualClock {
		clock = &vtape.ManualScheduler{}
		cfg.Scheduler = clock
	}

	u, err := vtape.NewUnit(cfg)
	if err != nil {
		return err
	}

	if !noLoad {
		if err := u.LoadMedium(); err != nil {
			return err
		}
	}

	fmt.Printf("Unit %s: %s %s (%s personality)\n", u.Serial, cfg.Model.Vendor, cfg.Model.Product,
		u.Personality().Name())

	failed := 0
	for i, st := range script.Steps {
		if st.Advance != 0 {
			if clock == nil {
				return errors.Errorf("step %d: advance requires --manual-clock", i+1)
			}
			clock.Advance(st.Advance)
			fmt.Printf("%3d  advance %v\n", i+1, st.Advance)
		}

		if st.CDB == "" {
			continue
		}

		cdb, _ := decodeHex(st.CDB)
		xfer.payload = st.payload()

		c := vtape.NewCommand(uint64(i+1), cdb)
		u.Execute(c)

		fmt.Printf("%3d  %-20s %-16s", i+1, hex.EncodeToString(cdb), c.Status)
		if c.Status == scsi.CHECK_CONDITION {
			fmt.Printf(" key %#02x asc %#04x", c.Sense.Key, c.Sense.ASC)
			if c.Sense.InfoValid {
				fmt.Printf(" info %d", int32(c.Sense.Info))
			}
			log.Debugf("Sense data: % x", c.Sense.Bytes())
		}
		fmt.Printf(" len %d", c.Len)
		if st.Comment != "" {
			fmt.Printf("  # %s", st.Comment)
		}
		fmt.Println()

		if st.Alloc > 0 && c.Len > 0 {
			n := st.Alloc
			if n > c.Len {
				n = c.Len
			}
			fmt.Print(hex.Dump(c.Data[:n]))
		}

		if err := st.Expect.check(c); err != nil {
			fmt.Printf("     FAIL: %v\n", err)
			failed++
		}
	}

	if err := u.UnloadMedium(); err != nil && err != medium.ErrNoMedium {
		log.WithError(err).Warn("Unload at end of script failed")
	}

	if failed > 0 {
		return errors.Errorf("%d of %d steps failed", failed, len(script.Steps))
	}

	return nil
}
