package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/macpkg/bom/internal/receipt"
)

// bindConfigFlags wires mkbom's builder flags through viper, the way
// cmd/config.go binds verbose/devicePath/inputType: flags take precedence,
// viper supplies defaults from --config or the environment.
func bindConfigFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("crc", true, "compute POSIX cksum checksums for files and links")
	cmd.Flags().Bool("follow-symlinks", false, "resolve symlinks instead of recording them as Link entries")
	cmd.Flags().Bool("path-only", false, "build a path-only receipt with no metadata bodies (like mkbom -s)")
	cmd.Flags().String("config", "", "optional config file (env/flags still override it)")

	viper.BindPFlag("crc", cmd.Flags().Lookup("crc"))
	viper.BindPFlag("follow-symlinks", cmd.Flags().Lookup("follow-symlinks"))
	viper.BindPFlag("path-only", cmd.Flags().Lookup("path-only"))
	viper.SetEnvPrefix("gobom")
	viper.AutomaticEnv()
}

func builderOptionsFromConfig(cmd *cobra.Command) receipt.Options {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig() // missing/invalid config falls back to flag defaults
	}
	return receipt.Options{
		CRC:            viper.GetBool("crc"),
		FollowSymlinks: viper.GetBool("follow-symlinks"),
		PathOnly:       viper.GetBool("path-only"),
	}
}
