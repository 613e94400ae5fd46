package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/mangasensei/internal/app"
	"github.com/Lllllllleong/mangasensei/internal/ui"
)

const watchDebounce = time.Second

var watchOut string

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Translate every PDF dropped into a folder",
	Long: `Watch turns a folder into a drop box. Each PDF created or copied into it is
translated and the result is written to --out (default: <dir>/translated).`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOut, "out", "o", "", "directory for translated files")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir := args[0]
	outDir := watchOut
	if outDir == "" {
		outDir = filepath.Join(dir, "translated")
	}
	out := cmd.OutOrStdout()
	if err := checkOutDir(dir, outDir); err != nil {
		return err
	}

	a, err := app.New(ctx, appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fmt.Fprintln(out, ui.FormatBanner("Watching for PDFs..."))
	fmt.Fprintln(out, ui.FormatMuted("Folder: "+dir))
	fmt.Fprintln(out, ui.FormatMuted("Output: "+outDir))
	fmt.Fprintln(out, ui.FormatMuted("Press Ctrl+C to stop"))

	// Copies arrive as a burst of writes; translate once the file settles.
	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	var wg sync.WaitGroup

	translate := func(path string) {
		defer wg.Done()
		fmt.Fprintln(out, ui.FormatInfo("Translating "+filepath.Base(path)+"..."))
		saved, err := processOne(ctx, a, path, outDir)
		if err != nil {
			fmt.Fprintln(out, ui.FormatError(err.Error()))
			return
		}
		fmt.Fprintln(out, ui.FormatSuccess(fmt.Sprintf("%s → %s", filepath.Base(path), saved)))
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isDroppedPDF(event) {
				continue
			}
			mu.Lock()
			if t, pending := timers[event.Name]; pending && t.Stop() {
				t.Reset(watchDebounce)
			} else {
				wg.Add(1)
				path := event.Name
				var t *time.Timer
				t = time.AfterFunc(watchDebounce, func() {
					mu.Lock()
					if timers[path] == t {
						delete(timers, path)
					}
					mu.Unlock()
					translate(path)
				})
				timers[path] = t
			}
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error.", "error", err)

		case <-ctx.Done():
			mu.Lock()
			for path, t := range timers {
				if t.Stop() {
					wg.Done()
				}
				delete(timers, path)
			}
			mu.Unlock()
			wg.Wait()
			fmt.Fprintln(out, ui.FormatMuted("Watcher stopped"))
			return nil
		}
	}
}

// checkOutDir rejects an output directory equal to the watched one, where every
// result would be picked up and translated again. Subdirectories are fine
// because the watch is not recursive.
func checkOutDir(dir, outDir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", outDir, err)
	}
	if absDir == absOut {
		return fmt.Errorf("output directory %s must differ from the watched folder", outDir)
	}
	return nil
}

func isDroppedPDF(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), ".pdf")
}
