package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/macpkg/bom/internal/metadata"
	"github.com/macpkg/bom/internal/receipt"
)

var lsbomPathsOnly bool

var lsbomCmd = &cobra.Command{
	Use:   "lsbom <in.bom>",
	Short: "Print one line per path recorded in <in.bom>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		r, err := receipt.Read(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		for _, e := range r.Entries() {
			fmt.Println(formatLsbomLine(e))
		}
		return nil
	},
}

func init() {
	lsbomCmd.Flags().BoolVarP(&lsbomPathsOnly, "paths-only", "s", false, "print only paths, matching mkbom -s output")
}

// formatLsbomLine renders one Entries() line the way lsbom(1) does: path,
// mode (octal), uid/gid, size, cksum for regular files; directory lines
// omit size and cksum; link lines append the target after an arrow
// separator instead of a size/cksum pair.
func formatLsbomLine(e receipt.PathEntry) string {
	if lsbomPathsOnly || e.Metadata.PathOnly {
		return e.Path
	}
	m := e.Metadata
	line := fmt.Sprintf("%s\t%o\t%d/%d", e.Path, m.Mode, m.UID, m.GID)
	switch m.EntryType {
	case metadata.File:
		return fmt.Sprintf("%s\t%d\t%d", line, fileSize(m), m.Checksum)
	case metadata.Link:
		return fmt.Sprintf("%s -> %s", line, m.Target)
	default:
		return line
	}
}

func fileSize(m metadata.Record) uint64 {
	if m.TrueSize != 0 {
		return m.TrueSize
	}
	return uint64(m.Size)
}
