package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Lllllllleong/mangasensei/internal/ledger"
	"github.com/Lllllllleong/mangasensei/internal/models"
	"github.com/Lllllllleong/mangasensei/internal/ui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent uploads from the ledger",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of uploads to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	l, err := ledger.Open(ctx, appConfig.Ledger)
	if err != nil {
		return err
	}
	defer l.Close()

	uploads, err := l.List(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list uploads: %w", err)
	}
	if len(uploads) == 0 {
		fmt.Fprintln(out, ui.FormatInfo("No uploads recorded yet."))
		return nil
	}

	fmt.Fprintln(out, ui.FormatHeader(fmt.Sprintf("%-16s  %-11s  %-30s  %s", "WHEN", "STATUS", "FILE", "OBJECT")))
	for _, u := range uploads {
		fmt.Fprintln(out, historyRow(u))
	}
	return nil
}

func historyRow(u models.Upload) string {
	status := ui.StatusStyle(u.Status).Render(fmt.Sprintf("%-11s", u.Status))
	row := fmt.Sprintf("%-16s  %s  %-30s  %s",
		u.CreatedAt.Local().Format("2006-01-02 15:04"), status, truncate(u.OriginalFilename, 30), u.ObjectName)
	if u.ErrorDetails != "" {
		row += "\n" + ui.FormatMuted("    "+u.ErrorDetails)
	}
	return row
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
