package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/macpkg/bom/internal/receipt"
)

var mkbomCmd = &cobra.Command{
	Use:   "mkbom <root> <out.bom>",
	Short: "Write a receipt rooted at <root> to <out.bom>",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, out := args[0], args[1]

		opts := builderOptionsFromConfig(cmd)
		r, err := receipt.NewReceiptBuilder(opts).Create(root)
		if err != nil {
			return fmt.Errorf("build %s: %w", root, err)
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()

		if _, err := r.Write(f); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		return nil
	},
}
