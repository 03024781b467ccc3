// Command gobom provides mkbom/lsbom-equivalent front ends over
// github.com/macpkg/bom, the actual CLIs Apple ships alongside the BOM
// format; the library itself never shells out to or depends on them.
//
// Grounded on the teacher's cmd/root.go: a cobra root command whose
// Execute() prints a one-line diagnostic to stderr and exits non-zero on
// failure, with no further error-recovery attempted.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "gobom",
	Short:   "Read and write Apple Bill-of-Materials (BOM) receipt files",
	Version: "0.1.0-dev",
}

func init() {
	rootCmd.AddCommand(mkbomCmd, lsbomCmd)
	bindConfigFlags(mkbomCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gobom: %v\n", err)
		os.Exit(1)
	}
}
