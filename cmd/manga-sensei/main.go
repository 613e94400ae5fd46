// Package main is the entry point for the manga-sensei CLI: it serves the
// drag-and-drop page and translates PDFs from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/mangasensei/internal/app"
	"github.com/Lllllllleong/mangasensei/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// appConfig is resolved once per invocation in PersistentPreRunE.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "manga-sensei",
	Short: "Translate manga PDFs through the Manga Sensei service",
	Long: `manga-sensei sends a PDF to the translation service, fetches the translated
result from the storage bucket and opens it.

Run "manga-sensei serve" for the drag-and-drop page, or translate files
directly with "manga-sensei translate".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		cfgFile, _ := cmd.Flags().GetString("config")
		v, err := config.New(cfgFile)
		if err != nil {
			return err
		}
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		appConfig = cfg
		app.SetupLogging(os.Stderr, cfg.LogLevel)
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintln(os.Stderr, "Using config file:", used)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./manga-sensei.yaml or ~/.config/manga-sensei/manga-sensei.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
