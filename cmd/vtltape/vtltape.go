// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Virtual tape drive command replay tool.
//
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dswarbrick/vtape"
	"github.com/dswarbrick/vtape/drivedb"
)

var (
	root = &cobra.Command{
		Use:   "vtltape",
		Short: "Virtual SSC tape drive",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			return nil
		},
		SilenceUsage: true,
	}

	cmdDrives = &cobra.Command{
		Use:   "drives",
		Short: "List the drive personalities in the drive database",
		RunE:  runDrives,
	}

	logLevel    string
	drivedbPath string
)

func init() {
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warning", "log level (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&drivedbPath, "drivedb", "", "YAML drive database (default: built-in)")
	root.AddCommand(cmdDrives)
}

func openDriveDb() (drivedb.DriveDb, error) {
	if drivedbPath == "" {
		return drivedb.Builtin(), nil
	}

	return drivedb.OpenDriveDb(drivedbPath)
}

func runDrives(cmd *cobra.Command, args []string) error {
	db, err := openDriveDb()
	if err != nil {
		return err
	}

	known := make(map[string]bool)
	for _, p := range vtape.Personalities() {
		known[p] = true
	}

	for _, d := range db.Drives {
		d = d.WithDefaults()
		if !known[d.Personality] {
			return errors.Errorf("drive %s uses unknown personality %q", d.Name, d.Personality)
		}

		fmt.Printf("%-16s %-8s %-16s %-4s density %#02x, %d media, buffer %d\n",
			d.Name, d.Vendor, d.Product, d.Revision, d.Density.Code, len(d.Media), d.BufferSize)
	}

	return nil
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
