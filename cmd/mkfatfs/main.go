// Command mkfatfs formats a disk image file with a fresh FAT12/16/32
// volume, mirroring the teacher's own cmd/main.go: a thin urfave/cli
// wrapper around a single formatting action.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/gofat"
	"github.com/dargueta/gofat/mkfs"
)

func main() {
	app := &cli.App{
		Name:      "mkfatfs",
		Usage:     "Format a disk image file as a FAT12/16/32 volume",
		ArgsUsage: "DEVICE [LABEL]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "geometry",
				Aliases: []string{"g"},
				Usage:   fmt.Sprintf("predefined geometry (%s)", strings.Join(mkfs.PredefinedGeometrySlugs(), ", ")),
				Value:   "1440k",
			},
			&cli.StringFlag{
				Name:    "fat",
				Aliases: []string{"f"},
				Usage:   "force FAT width instead of classifying by cluster count: 12, 16, or 32",
			},
			&cli.BoolFlag{
				Name:    "noprompt",
				Aliases: []string{"n"},
				Usage:   "don't ask for confirmation before overwriting DEVICE",
			},
			&cli.BoolFlag{
				Name:    "test",
				Aliases: []string{"t"},
				Usage:   "validate arguments and geometry, but don't write anything",
			},
		},
		Action: formatImage,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mkfatfs: %s", err.Error())
	}
}

func formatImage(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("mkfatfs: missing DEVICE argument", 1)
	}
	devicePath := c.Args().Get(0)
	label := c.Args().Get(1)

	geometry, err := mkfs.GetPredefinedGeometry(c.String("geometry"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("mkfatfs: %s", err.Error()), 1)
	}
	if verr := mkfs.Validate(geometry); verr != nil {
		return cli.Exit(fmt.Sprintf("mkfatfs: invalid geometry %q: %s", c.String("geometry"), verr.Error()), 1)
	}

	opts := mkfs.Options{Label: label, Now: time.Now()}
	if forced := c.String("fat"); forced != "" {
		opts.ForceFAT = true
		switch forced {
		case "12":
			opts.ForceType = gofat.Fat12
		case "16":
			opts.ForceType = gofat.Fat16
		case "32":
			opts.ForceType = gofat.Fat32
		default:
			return cli.Exit(fmt.Sprintf("mkfatfs: --fat must be 12, 16, or 32, got %q", forced), 1)
		}
	}

	if c.Bool("test") {
		fmt.Printf("mkfatfs: %q would be formatted with geometry %q (%s), label %q; no changes made\n",
			devicePath, c.String("geometry"), geometry.Name, label)
		return nil
	}

	if !c.Bool("noprompt") {
		if !confirmOverwrite(devicePath) {
			return cli.Exit("mkfatfs: aborted", 1)
		}
	}

	f, err := os.OpenFile(devicePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return cli.Exit(fmt.Sprintf("mkfatfs: opening %q: %s", devicePath, err.Error()), 1)
	}
	defer f.Close()

	if terr := f.Truncate(int64(geometry.TotalSectors) * int64(geometry.BytesPerSector)); terr != nil {
		return cli.Exit(fmt.Sprintf("mkfatfs: sizing %q: %s", devicePath, terr.Error()), 1)
	}

	if ferr := mkfs.Format(f, geometry, opts); ferr != nil {
		return cli.Exit(fmt.Sprintf("mkfatfs: %s", ferr.Error()), 1)
	}

	fmt.Printf("mkfatfs: formatted %q as %s (%s)\n", devicePath, geometry.Name, c.String("geometry"))
	return nil
}

func confirmOverwrite(devicePath string) bool {
	if _, err := os.Stat(devicePath); os.IsNotExist(err) {
		return true
	}
	fmt.Printf("mkfatfs: %q exists; overwrite? [y/N] ", devicePath)
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
