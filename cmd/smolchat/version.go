package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/samcharles93/smolchat/internal/version"
	"github.com/urfave/cli/v3"
)

func versionCmd() *cli.Command {
	var asJSON bool
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print as a JSON object",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return writeVersion(os.Stdout, version.Resolve(), asJSON)
		},
	}
}

func writeVersion(w io.Writer, info version.Info, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	commit := info.Commit
	if commit != "" && info.Modified {
		commit += " (modified)"
	}
	_, _ = fmt.Fprintf(w, "smolchat %s\n", info.Version)
	for _, row := range [][2]string{
		{"commit", commit},
		{"built", info.BuildTime},
		{"go", info.GoVersion},
	} {
		if row[1] != "" {
			_, _ = fmt.Fprintf(w, "  %-7s %s\n", row[0]+":", row[1])
		}
	}
	return nil
}
