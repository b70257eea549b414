// Copyright 2015, David Howden
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
The tag tool reads metadata from media files (as supported by the tag library).
*/
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	tag "github.com/audioform/tag"
	"github.com/audioform/tag/mbz"
)

func main() {
	app := cli.NewApp()
	app.Name = "tag"
	app.Usage = "read metadata from media files"
	app.ArgsUsage = "filename"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "raw",
			Usage: "show raw tag data",
		},
		cli.BoolFlag{
			Name:  "mbz",
			Usage: "extract MusicBrainz tag data (if available)",
		},
		cli.BoolFlag{
			Name:  "properties",
			Usage: "show decoded stream properties",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.ShowAppHelp(c)
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return fmt.Errorf("error reading file: %v", err)
	}

	printMetadata(m)

	if c.Bool("properties") {
		if p, ok := m.(tag.AudioProperties); ok {
			fmt.Printf(" %v\n", p.Properties())
		}
	}

	if c.Bool("raw") {
		fmt.Println()
		for k, v := range m.Raw() {
			if _, ok := v.(*tag.Picture); ok {
				fmt.Printf("%#v: %v\n", k, v)
				continue
			}
			fmt.Printf("%#v: %#v\n", k, v)
		}
	}

	if c.Bool("mbz") {
		fmt.Printf("\nMusicBrainz Info: %+v\n", mbz.Extract(m))
	}
	return nil
}

func printMetadata(m tag.Metadata) {
	fmt.Printf("Metadata Format: %v\n", m.Format())
	fmt.Printf("File Type: %v\n", m.FileType())

	fmt.Printf(" Title: %v\n", m.Title())
	fmt.Printf(" Album: %v\n", m.Album())
	fmt.Printf(" Artist: %v\n", m.Artist())
	fmt.Printf(" Composer: %v\n", m.Composer())
	fmt.Printf(" Genre: %v\n", m.Genre())
	fmt.Printf(" Year: %v\n", m.Year())

	track, trackCount := m.Track()
	fmt.Printf(" Track: %v of %v\n", track, trackCount)

	disc, discCount := m.Disc()
	fmt.Printf(" Disc: %v of %v\n", disc, discCount)

	fmt.Printf(" Picture: %v\n", m.Picture())
	fmt.Printf(" Lyrics: %v\n", m.Lyrics())
	fmt.Printf(" Comment: %v\n", m.Comment())
}
