// Command obscura obfuscates a Go module: it renames symbols
// consistently across the whole module, encrypts string literals,
// strips comments and marker attributes, and normalizes whitespace.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "0.3.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "obscura",
		Short: "Whole-module symbol and string obfuscator for Go",
		Long: "obscura loads a Go module, renames its private symbols consistently\n" +
			"across every file, encrypts string literals, and strips comments and\n" +
			"metadata, producing an equivalent but unreadable source tree.",
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Env vars: OBSCURA_SEED, OBSCURA_OUT, etc.
	viper.SetEnvPrefix("OBSCURA")
	viper.AutomaticEnv()

	// Config file.
	viper.SetConfigName(".obscura")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.ReadInConfig() // Ignore error; config file is optional.

	rootCmd.AddCommand(newObfuscateCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newVersionCmd creates the "version" command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print obscura version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("obscura %s\n", version)
		},
	}
}
