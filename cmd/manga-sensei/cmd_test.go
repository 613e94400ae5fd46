package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/mangasensei/internal/intake"
	"github.com/Lllllllleong/mangasensei/internal/intake/intaketest"
	"github.com/Lllllllleong/mangasensei/internal/models"
)

// TestCommandStructure verifies that all commands are properly registered
func TestCommandStructure(t *testing.T) {
	for _, name := range []string{"serve", "translate", "watch", "history", "version"} {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, cmd)
			assert.NotEmpty(t, cmd.Use)
			assert.NotEmpty(t, cmd.Short)
		})
	}
	assert.Equal(t, "manga-sensei", rootCmd.Use)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "manga-sensei dev\n", buf.String())
}

func TestFindPDFs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "B.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	pdfs, err := findPDFs(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "B.PDF")}, pdfs)

	_, err = findPDFs(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestSelectFiles_IsolatesRejections(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(good, intaketest.MinimalPDF(1), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("hello"), 0o644))

	v := intake.NewValidator(intake.Config{InspectContent: true})
	files, rejected := selectFiles(v, []string{good, bad, filepath.Join(dir, "missing.pdf")})

	require.Len(t, files, 1)
	assert.Equal(t, "good.pdf", files[0].Filename)
	require.Len(t, rejected, 2)
	assert.Contains(t, rejected[0], "Please upload a PDF file")
}

func TestSaveResult(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")

	path, err := saveResult(dir, &models.DownloadedBlob{ObjectName: "result.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "result.pdf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))

	path, err = saveResult(dir, &models.DownloadedBlob{ObjectName: "../escape.pdf", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.pdf"), path)
}

func TestIsDroppedPDF(t *testing.T) {
	assert.True(t, isDroppedPDF(fsnotify.Event{Name: "/in/ch1.pdf", Op: fsnotify.Create}))
	assert.True(t, isDroppedPDF(fsnotify.Event{Name: "/in/CH1.PDF", Op: fsnotify.Write}))
	assert.False(t, isDroppedPDF(fsnotify.Event{Name: "/in/ch1.pdf", Op: fsnotify.Remove}))
	assert.False(t, isDroppedPDF(fsnotify.Event{Name: "/in/.ch1.pdf", Op: fsnotify.Create}))
	assert.False(t, isDroppedPDF(fsnotify.Event{Name: "/in/ch1.txt", Op: fsnotify.Create}))
}

func TestCheckOutDir(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, checkOutDir(dir, dir))
	assert.Error(t, checkOutDir(dir, filepath.Join(dir, "sub", "..")))
	assert.Error(t, checkOutDir(dir+string(filepath.Separator), dir))
	assert.NoError(t, checkOutDir(dir, filepath.Join(dir, "translated")))
	assert.NoError(t, checkOutDir(dir, t.TempDir()))
}

func TestHistoryRow(t *testing.T) {
	row := historyRow(models.Upload{
		OriginalFilename: "a-very-long-file-name-for-a-manga-chapter.pdf",
		Status:           models.StatusFailed,
		ObjectName:       "result.pdf",
		ErrorDetails:     "failed to download processed file",
	})
	assert.Contains(t, row, "FAILED")
	assert.Contains(t, row, "…")
	assert.Contains(t, row, "result.pdf")
	assert.Contains(t, row, "failed to download processed file")
	assert.Equal(t, "short", truncate("short", 30))
}
