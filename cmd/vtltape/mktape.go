// Copyright 2017-18 Daniel Swarbrick. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dswarbrick/vtape/medium"
	"github.com/dswarbrick/vtape/utils"
)

var (
	cmdMktape = &cobra.Command{
		Use:   "mktape IMAGE",
		Short: "Create a blank tape image",
		Args:  cobra.ExactArgs(1),
		RunE:  runMktape,
	}

	mkMedia    string
	mkType     string
	mkCapacity uint64
)

func init() {
	cmdMktape.Flags().StringVar(&mkMedia, "media", "LTO4", "media name, as listed in the drive database")
	cmdMktape.Flags().StringVar(&mkType, "type", "data", "medium type (data, clean, worm)")
	cmdMktape.Flags().Uint64Var(&mkCapacity, "capacity", 800, "capacity in megabytes")
	root.AddCommand(cmdMktape)
}

func parseMediumType(s string) (medium.MediumType, error) {
	switch strings.ToLower(s) {
	case "data":
		return medium.MEDIA_TYPE_DATA, nil
	case "clean", "cleaning":
		return medium.MEDIA_TYPE_CLEAN, nil
	case "worm":
		return medium.MEDIA_TYPE_WORM, nil
	}

	return 0, errors.Errorf("unknown medium type %q", s)
}

func runMktape(cmd *cobra.Command, args []string) error {
	typ, err := parseMediumType(mkType)
	if err != nil {
		return err
	}

	mam := medium.NewMAM(mkMedia, typ, mkCapacity<<20)
	if err := medium.CreateFileTape(args[0], mam); err != nil {
		return err
	}

	fmt.Printf("Created %s: %s %s, %s, serial %s\n", args[0], mam.MediaName, typ,
		utils.FormatBytes(mam.MaxCapacity), mam.Serial)
	return nil
}
