package persistence

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/talgya/swarm-economy/internal/config"
	"github.com/talgya/swarm-economy/internal/engine"
)

// Report file names inside a run directory.
const (
	ReportFile  = "report.yaml"
	DailyFile   = "daily.csv"
	AgentsFile  = "agents.csv"
	EconomyFile = "economy.csv"
	ConfigFile  = "config.yaml"
	ArchiveFile = "runs.db"
)

// WriteReport writes the report for one run into <dir>/<run id>/ and returns
// that directory. cfg may be nil.
func WriteReport(dir string, r *engine.Report, cfg *config.Config) (string, error) {
	runDir := filepath.Join(dir, r.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, ReportFile), data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", ReportFile, err)
	}

	if err := writeCSV(filepath.Join(runDir, DailyFile), &r.DailySnapshots); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, AgentsFile), &r.Agents); err != nil {
		return "", err
	}
	if err := writeCSV(filepath.Join(runDir, EconomyFile), &r.EconomyHistory); err != nil {
		return "", err
	}

	if cfg != nil {
		if err := cfg.WriteYAML(filepath.Join(runDir, ConfigFile)); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

// writeCSV writes rows with a header line. Empty tables still get a header.
func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if err := gocsv.Marshal(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Archive writes the flat report and, when enabled, records the run in the
// SQLite archive under dir. The report directory is returned even when only
// the archive step fails.
func Archive(dir string, r *engine.Report, cfg *config.Config) (string, error) {
	runDir, err := WriteReport(dir, r, cfg)
	if err != nil {
		return "", err
	}
	if cfg != nil && !cfg.Output.SQLite {
		return runDir, nil
	}

	db, err := Open(filepath.Join(dir, ArchiveFile))
	if err != nil {
		return runDir, err
	}
	defer db.Close()
	if err := db.SaveRun(r); err != nil {
		return runDir, fmt.Errorf("save run: %w", err)
	}
	return runDir, nil
}
