package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/atotto/clipboard"
	fuzzyfinder "github.com/ktr0731/go-fuzzyfinder"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/mangasensei/internal/app"
	"github.com/Lllllllleong/mangasensei/internal/intake"
	"github.com/Lllllllleong/mangasensei/internal/models"
	"github.com/Lllllllleong/mangasensei/internal/services"
	"github.com/Lllllllleong/mangasensei/internal/ui"
)

var (
	translateOut    string
	translateNoOpen bool
	translateCopy   bool
	translateViewer string
)

var translateCmd = &cobra.Command{
	Use:   "translate [files...]",
	Short: "Translate one or more PDFs",
	Long: `Translate sends each PDF to the translation service and saves the result.

Without arguments a fuzzy finder lists the PDFs in the current directory.
A single result is opened in the system viewer; use --no-open to skip that.
With several files every file is translated independently and a summary is
printed at the end.`,
	RunE: runTranslate,
}

func init() {
	translateCmd.Flags().StringVarP(&translateOut, "out", "o", ".", "directory for translated files")
	translateCmd.Flags().BoolVar(&translateNoOpen, "no-open", false, "do not open the translated file")
	translateCmd.Flags().BoolVar(&translateCopy, "copy", false, "copy the saved path to the clipboard")
	translateCmd.Flags().StringVar(&translateViewer, "viewer", "", "program used to open results (default: system viewer)")
	rootCmd.AddCommand(translateCmd)
}

func runTranslate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	paths := args
	if len(paths) == 0 {
		picked, err := pickPDF(".")
		if err != nil {
			return err
		}
		if picked == "" {
			fmt.Fprintln(out, ui.FormatInfo("Operation cancelled."))
			return nil
		}
		paths = []string{picked}
	}

	a, err := app.New(ctx, appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	files, rejected := selectFiles(a.Validator, paths)
	for _, r := range rejected {
		fmt.Fprintln(out, ui.FormatError(r))
	}
	if len(files) == 0 {
		return errors.New("no valid PDF to translate")
	}

	var results []services.BatchResult
	title := fmt.Sprintf("Translating %d file(s)...", len(files))
	if len(files) == 1 {
		title = fmt.Sprintf("Translating %s...", files[0].Filename)
	}
	err = ui.RunWithSpinner(ctx, title, func(ctx context.Context) error {
		results = a.Orchestrator.ProcessAll(ctx, files)
		return nil
	})
	if errors.Is(err, ui.ErrInterrupted) {
		fmt.Fprintln(out, ui.FormatWarning("Translation cancelled."))
		return errors.New("translation cancelled")
	}
	if err != nil {
		return err
	}

	var saved []string
	failed := len(rejected)
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintln(out, ui.FormatError(fmt.Sprintf("%s: %s", r.File.Filename, services.UserMessage(r.Err))))
			continue
		}
		path, err := saveResult(translateOut, r.Result.Blob)
		if err != nil {
			failed++
			fmt.Fprintln(out, ui.FormatError(fmt.Sprintf("%s: %v", r.File.Filename, err)))
			continue
		}
		saved = append(saved, path)
		msg := fmt.Sprintf("%s → %s", r.File.Filename, path)
		if r.Result.Reused {
			msg += " (reused earlier translation)"
		}
		fmt.Fprintln(out, ui.FormatSuccess(msg))
	}

	if len(saved) == 1 && !translateNoOpen {
		if err := openFile(saved[0], translateViewer); err != nil {
			fmt.Fprintln(out, ui.FormatWarning(err.Error()))
		}
	}
	if translateCopy && len(saved) > 0 {
		if err := clipboard.WriteAll(strings.Join(saved, "\n")); err != nil {
			fmt.Fprintln(out, ui.FormatWarning("Could not copy to clipboard: "+err.Error()))
		} else {
			fmt.Fprintln(out, ui.FormatMuted("Copied to clipboard."))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(paths))
	}
	return nil
}

// selectFiles runs each path through intake on its own, so one bad file
// does not block the others.
func selectFiles(v *intake.Validator, paths []string) ([]*models.SelectedFile, []string) {
	var files []*models.SelectedFile
	var rejected []string
	for _, p := range paths {
		c, err := intake.FromPath(p)
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("%s: %v", p, err))
			continue
		}
		f, err := v.Validate([]intake.Candidate{c})
		if err != nil {
			rejected = append(rejected, fmt.Sprintf("%s: %s", p, services.UserMessage(err)))
			continue
		}
		files = append(files, f)
	}
	return files, rejected
}

// findPDFs lists the PDFs directly inside dir.
func findPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var pdfs []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		pdfs = append(pdfs, filepath.Join(dir, e.Name()))
	}
	return pdfs, nil
}

// pickPDF asks the user to choose a PDF from dir. An empty path means cancelled.
func pickPDF(dir string) (string, error) {
	pdfs, err := findPDFs(dir)
	if err != nil {
		return "", err
	}
	if len(pdfs) == 0 {
		return "", fmt.Errorf("no PDF files found in %s", dir)
	}
	if len(pdfs) == 1 {
		return pdfs[0], nil
	}

	idx, err := fuzzyfinder.Find(
		pdfs,
		func(i int) string { return filepath.Base(pdfs[i]) },
		fuzzyfinder.WithPromptString("PDF> "),
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i == -1 {
				return ""
			}
			info, err := os.Stat(pdfs[i])
			if err != nil {
				return err.Error()
			}
			return fmt.Sprintf("File: %s\nSize: %d KiB\nModified: %s",
				pdfs[i], info.Size()/1024, info.ModTime().Format("2006-01-02 15:04"))
		}),
	)
	if errors.Is(err, fuzzyfinder.ErrAbort) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("file picker failed: %w", err)
	}
	return pdfs[idx], nil
}

// saveResult writes blob into dir under its object name.
func saveResult(dir string, blob *models.DownloadedBlob) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	name := filepath.Base(blob.ObjectName)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object name %q", blob.ObjectName)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, blob.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	return path, nil
}

// openFile opens path with viewer, or the OS default application.
func openFile(path, viewer string) error {
	var cmd *exec.Cmd
	switch {
	case viewer != "":
		cmd = exec.Command(viewer, path)
	case runtime.GOOS == "darwin":
		cmd = exec.Command("open", path)
	case runtime.GOOS == "windows":
		cmd = exec.Command("cmd", "/c", "start", "", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	// Start detaches so the viewer outlives the CLI.
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	return nil
}

// processOne is the single-file path used by watch.
func processOne(ctx context.Context, a *app.App, path, outDir string) (string, error) {
	files, rejected := selectFiles(a.Validator, []string{path})
	if len(rejected) > 0 {
		return "", errors.New(rejected[0])
	}
	res, err := a.Orchestrator.Process(ctx, files[0])
	if err != nil {
		return "", fmt.Errorf("%s: %s", files[0].Filename, services.UserMessage(err))
	}
	return saveResult(outDir, res.Blob)
}
