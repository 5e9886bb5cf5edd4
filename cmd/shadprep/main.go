package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"shad-prep/app"
	"shad-prep/codec"
	"shad-prep/model"
	"shad-prep/store"
	"shad-prep/tui"
)

var CLI struct {
	Data    string `short:"d" help:"Path to the state snapshot (default: $SHADPREP_DATA or the user config dir)"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct{} `cmd:"" default:"1" help:"Open the interactive tracker"`

	Export struct {
		Dir string `arg:"" optional:"" default:"." help:"Directory for the dated backup file"`
	} `cmd:"" help:"Write a dated backup file with all data"`

	Import struct {
		File string `arg:"" help:"Snapshot file to import"`
	} `cmd:"" help:"Replace all data with a snapshot file"`

	Reset struct{} `cmd:"" help:"Reset all data to the default state"`
}

func main() {
	// Best-effort; a missing .env is not an error.
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	path := CLI.Data
	if path == "" {
		path = store.DefaultPath()
	}

	switch ctx.Command() {
	case "run":
		if err := runTracker(path); err != nil {
			slog.Error("Tracker failed", "error", err)
			os.Exit(1)
		}
	case "export", "export <dir>":
		if err := runExport(path, CLI.Export.Dir); err != nil {
			slog.Error("Export failed", "error", err)
			os.Exit(1)
		}
	case "import <file>":
		if err := runImport(path, CLI.Import.File); err != nil {
			slog.Error("Import failed", "error", err)
			os.Exit(1)
		}
	case "reset":
		if err := runReset(path); err != nil {
			slog.Error("Reset failed", "error", err)
			os.Exit(1)
		}
	}
}

func runTracker(path string) error {
	state, recovered, err := store.LoadWithRecovery(path)
	if err != nil {
		return err
	}
	svc := app.NewService(state)
	return tui.Run(svc, path, recovered)
}

func runExport(path, dir string) error {
	state, _, err := store.LoadWithRecovery(path)
	if err != nil {
		return err
	}
	// Route through the service so the exported stats block is consistent.
	out, err := codec.ExportFile(app.NewService(state).State(), dir, time.Now())
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runImport(path, file string) error {
	state, err := codec.ImportFile(file)
	if err != nil {
		return err
	}
	if err := store.Autosave(path, state); err != nil {
		return err
	}
	slog.Info("Snapshot imported", "from", file, "to", path)
	return nil
}

func runReset(path string) error {
	fmt.Print("Сбросить все данные без возможности восстановления? [y/N] ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return err
	}
	if strings.ToLower(strings.TrimSpace(line)) != "y" {
		fmt.Println("Отменено.")
		return nil
	}
	if err := store.Autosave(path, model.NewState()); err != nil {
		return err
	}
	slog.Info("State reset", "path", path)
	return nil
}
