package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"obscura/golang"
	"obscura/obfuscator"
)

// newObfuscateCmd creates the "obfuscate" command.
func newObfuscateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "obfuscate [module-dir]",
		Short: "Obfuscate a Go module into an output directory",
		Long: "Obfuscate loads the module rooted at module-dir (default \".\"), applies\n" +
			"the enabled passes, and writes the transformed tree, a run report, and\n" +
			"the name map into the output directory.",
		Args: cobra.MaximumNArgs(1),
		RunE: runObfuscate,
	}

	cmd.Flags().StringP("out", "o", "obfuscated", "Output directory for the transformed tree")
	cmd.Flags().Int64("seed", 0, "Fixed name-generator seed (0 draws a random one)")
	cmd.Flags().Bool("deterministic", false, "Derive names from content hashes instead of counters")
	cmd.Flags().String("key", "", "String-encryption key (default built-in)")
	cmd.Flags().Bool("no-rename", false, "Skip symbol renaming")
	cmd.Flags().Bool("no-strings", false, "Skip string encryption")
	cmd.Flags().Bool("no-comments", false, "Keep comments")
	cmd.Flags().Bool("control-flow", false, "Enable control-flow obfuscation")
	cmd.Flags().Bool("anti-decompiler", false, "Inject anti-decompiler junk blocks")
	cmd.Flags().StringSlice("exclude-type", nil, "Type name pattern to keep (repeatable, * wildcards)")
	cmd.Flags().StringSlice("exclude-member", nil, "Member name pattern to keep (repeatable, * wildcards)")
	cmd.Flags().StringSlice("preserve-contract", nil, "Interface name substring whose implementors keep their names")
	cmd.Flags().StringSlice("preserve-base", nil, "Base type whose descendants keep their names")

	viper.BindPFlag("out", cmd.Flags().Lookup("out"))
	viper.BindPFlag("seed", cmd.Flags().Lookup("seed"))
	viper.BindPFlag("deterministic", cmd.Flags().Lookup("deterministic"))
	viper.BindPFlag("key", cmd.Flags().Lookup("key"))

	return cmd
}

func runObfuscate(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := buildConfig(cmd)

	proj, err := golang.Load(dir, logger)
	if err != nil {
		return fmt.Errorf("loading module: %w", err)
	}

	report, err := obfuscator.New(cfg, logger).Process(proj.Model())
	if err != nil {
		return fmt.Errorf("obfuscation failed: %w", err)
	}

	outDir := viper.GetString("out")
	if err := proj.WriteTree(outDir); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if err := writeJSON(filepath.Join(outDir, "obscura-report.json"), report); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(outDir, "obscura-map.json"), report.Names); err != nil {
		return err
	}

	logger.Info("obfuscation complete",
		"out", outDir,
		"renamed", report.Stats.Renamed(),
		"stringsEncrypted", report.Stats.StringsEncrypted,
		"commentsRemoved", report.Stats.CommentsRemoved)
	return nil
}

func buildConfig(cmd *cobra.Command) obfuscator.Config {
	cfg := obfuscator.DefaultConfig()

	noRename, _ := cmd.Flags().GetBool("no-rename")
	noStrings, _ := cmd.Flags().GetBool("no-strings")
	noComments, _ := cmd.Flags().GetBool("no-comments")
	cfg.RenameSymbols = !noRename
	cfg.EncryptStrings = !noStrings
	cfg.RemoveComments = !noComments
	cfg.ObfuscateControlFlow, _ = cmd.Flags().GetBool("control-flow")
	cfg.AntiDecompiler, _ = cmd.Flags().GetBool("anti-decompiler")

	cfg.Deterministic = viper.GetBool("deterministic")
	if seed := viper.GetInt64("seed"); seed != 0 {
		cfg.Seed = &seed
	}
	if key := viper.GetString("key"); key != "" {
		cfg.EncryptionKey = []byte(key)
	}

	cfg.ExcludeTypePatterns, _ = cmd.Flags().GetStringSlice("exclude-type")
	cfg.ExcludeMemberPatterns, _ = cmd.Flags().GetStringSlice("exclude-member")
	cfg.PreserveContracts, _ = cmd.Flags().GetStringSlice("preserve-contract")
	cfg.PreserveBaseTypes, _ = cmd.Flags().GetStringSlice("preserve-base")

	return cfg
}

// writeJSON writes v pretty-printed to path.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
