package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/fripack/internal/prebuilt"
	"github.com/samcharles93/fripack/pkg/inject"
)

func inspectCmd() *cli.Command {
	var (
		filePath   string
		showScript bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Show the sentinel and embedded payload of a binary",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to the .so file",
				Required:    true,
				Destination: &filePath,
			},
			&cli.BoolFlag{
				Name:        "script",
				Usage:       "print the embedded script content",
				Destination: &showScript,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			data, err := prebuilt.ReadBinary(filePath)
			if err != nil {
				return err
			}
			return inspectBinary(cmd.Root().Writer, filePath, data, showScript)
		},
	}
}

func inspectBinary(w io.Writer, name string, data []byte, showScript bool) error {
	if err := inject.Validate(data); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Fprintf(w, "file:             %s (%d bytes)\n", name, len(data))

	emb, err := inject.Extract(data)
	if err != nil {
		off, found := inject.FindSentinel(data)
		if found && errors.Is(err, inject.ErrStructure) {
			s, _ := inject.DecodeSentinel(data[off:])
			if s.PayloadSize == 0 && s.PayloadOffset == 0 {
				fmt.Fprintf(w, "sentinel:         offset %d, version %d, not patched\n", off, s.Version)
				return nil
			}
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	s := emb.Sentinel
	fmt.Fprintf(w, "sentinel:         offset %d, version %d\n", emb.Offset, s.Version)
	fmt.Fprintf(w, "payload:          %d bytes at %+d (file offset %d)\n", s.PayloadSize, s.PayloadOffset, emb.Offset+int(s.PayloadOffset))
	fmt.Fprintf(w, "compressed:       %t\n", s.Compressed)

	rec, err := emb.Record()
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	fmt.Fprintf(w, "mode:             %d\n", rec.Mode)
	if rec.JSFilepath != nil {
		fmt.Fprintf(w, "js_filepath:      %s\n", *rec.JSFilepath)
	}
	if rec.JSContent != nil {
		fmt.Fprintf(w, "js_content:       %d bytes\n", len(*rec.JSContent))
		if showScript {
			fmt.Fprintln(w)
			fmt.Fprintln(w, *rec.JSContent)
		}
	}
	return nil
}
