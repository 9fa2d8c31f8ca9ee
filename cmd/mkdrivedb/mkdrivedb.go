// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

// Drive personality database generator.
//
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/dswarbrick/vtape"
	"github.com/dswarbrick/vtape/drivedb"
)

var (
	root = &cobra.Command{
		Use:   "mkdrivedb",
		Short: "Write a YAML drive personality database",
		Long: `Write a YAML drive personality database.

Without --in, the built-in table is written. With --in, an existing database
is checked against the registered personalities and written back with every
default filled in.`,
		Args:         cobra.NoArgs,
		RunE:         run,
		SilenceUsage: true,
	}

	inFilename, outFilename string
)

func init() {
	root.Flags().StringVar(&inFilename, "in", "", "optional drive database to normalise")
	root.Flags().StringVar(&outFilename, "out", "drivedb.yaml", "output .yaml filename, - for stdout")
}

// normalise fills in drive defaults and rejects drives bound to personalities this build lacks.
func normalise(db drivedb.DriveDb) (drivedb.DriveDb, error) {
	known := make(map[string]bool)
	for _, p := range vtape.Personalities() {
		known[p] = true
	}

	out := drivedb.DriveDb{Drives: make([]drivedb.DriveModel, 0, len(db.Drives))}
	for _, d := range db.Drives {
		d = d.WithDefaults()
		if !known[d.Personality] {
			return out, errors.Errorf("drive %s: unknown personality %q", d.Name, d.Personality)
		}
		out.Drives = append(out.Drives, d)
	}

	return out, nil
}

func writeDriveDb(w io.Writer, header string, db drivedb.DriveDb) error {
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	if err := enc.Encode(db); err != nil {
		return errors.Wrap(err, "error encoding yaml")
	}

	return enc.Close()
}

func run(cmd *cobra.Command, args []string) error {
	var (
		db     drivedb.DriveDb
		header string
		err    error
	)

	if inFilename != "" {
		if db, err = drivedb.OpenDriveDb(inFilename); err != nil {
			return err
		}
		header = fmt.Sprintf("# Normalised from %s\n", inFilename)
	} else {
		db = drivedb.Builtin()
		header = fmt.Sprintf("# Built-in drive personalities, generated %s\n", time.Now().UTC().Format(time.RFC3339))
	}

	if db, err = normalise(db); err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outFilename != "-" {
		f, err := os.Create(outFilename)
		if err != nil {
			return errors.Wrap(err, "cannot create output")
		}
		defer f.Close()
		w = f
	}

	if err := writeDriveDb(w, header, db); err != nil {
		return err
	}

	if outFilename != "-" {
		fmt.Printf("Successfully wrote %d drives to %s\n", len(db.Drives), outFilename)
	}

	return nil
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
