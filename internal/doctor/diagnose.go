package doctor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/a-kowalski/mindkeep/internal/config"
	"github.com/a-kowalski/mindkeep/internal/storage"
)

// Diagnostics holds the outcome of a full check run
type Diagnostics struct {
	Checks []CheckResult `json:"checks"`
	Issues []string      `json:"issues"`
	Status string        `json:"status"`
}

// CheckResult represents the result of a single check
type CheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"` // "pass", "fail", "warn"
	Message  string `json:"message"`
	Severity string `json:"severity"` // "info", "warning", "error"
}

// Runner runs diagnostic checks
type Runner struct {
	config *config.Config
	db     *storage.DB
}

// NewRunner creates a new diagnostic runner
func NewRunner(cfg *config.Config, db *storage.DB) *Runner {
	return &Runner{
		config: cfg,
		db:     db,
	}
}

// RunAll runs all diagnostic checks
func (d *Runner) RunAll() *Diagnostics {
	var results []CheckResult
	var issues []string

	results = append(results, d.checkDatabase()...)
	results = append(results, d.checkDataDir()...)
	results = append(results, d.checkConfiguration()...)
	results = append(results, d.checkAnalysisBackend()...)

	for _, result := range results {
		if result.Status == "fail" {
			issues = append(issues, result.Message)
		}
	}

	status := "healthy"
	if len(issues) > 0 {
		status = "issues_found"
	}

	return &Diagnostics{
		Checks: results,
		Issues: issues,
		Status: status,
	}
}

func (d *Runner) checkDatabase() []CheckResult {
	var results []CheckResult

	if err := d.db.GetConnection().Ping(); err != nil {
		results = append(results, CheckResult{
			Name:     "database_connectivity",
			Status:   "fail",
			Message:  fmt.Sprintf("Cannot connect to database: %v", err),
			Severity: "error",
		})
		return results
	}
	results = append(results, CheckResult{
		Name:     "database_connectivity",
		Status:   "pass",
		Message:  "Database connection successful",
		Severity: "info",
	})

	var integrity string
	if err := d.db.GetConnection().QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil || integrity != "ok" {
		results = append(results, CheckResult{
			Name:     "database_integrity",
			Status:   "fail",
			Message:  fmt.Sprintf("Database integrity check failed: %s %v", integrity, err),
			Severity: "error",
		})
	} else {
		results = append(results, CheckResult{
			Name:     "database_integrity",
			Status:   "pass",
			Message:  "Database integrity check passed",
			Severity: "info",
		})
	}

	// The learning tables must all exist or every write path breaks.
	for _, table := range []string{"facts", "profiles", "conversations", "summaries"} {
		var count int
		err := d.db.GetConnection().QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&count)
		if err != nil || count == 0 {
			results = append(results, CheckResult{
				Name:     fmt.Sprintf("table_%s", table),
				Status:   "fail",
				Message:  fmt.Sprintf("Missing table %s", table),
				Severity: "error",
			})
		} else {
			results = append(results, CheckResult{
				Name:     fmt.Sprintf("table_%s", table),
				Status:   "pass",
				Message:  fmt.Sprintf("Table %s present", table),
				Severity: "info",
			})
		}
	}

	return results
}

func (d *Runner) checkDataDir() []CheckResult {
	var results []CheckResult

	dir := d.config.MindkeepDir
	if _, err := os.Stat(dir); err != nil {
		results = append(results, CheckResult{
			Name:     "data_directory_access",
			Status:   "fail",
			Message:  fmt.Sprintf("Cannot access data directory %s: %v", dir, err),
			Severity: "error",
		})
		return results
	}

	if err := testDirectoryWritable(dir); err != nil {
		results = append(results, CheckResult{
			Name:     "data_directory_writable",
			Status:   "fail",
			Message:  fmt.Sprintf("Data directory is not writable: %v", err),
			Severity: "error",
		})
	} else {
		results = append(results, CheckResult{
			Name:     "data_directory_writable",
			Status:   "pass",
			Message:  fmt.Sprintf("Data directory is writable: %s", dir),
			Severity: "info",
		})
	}

	logDir := filepath.Dir(d.config.LogFile)
	if _, err := os.Stat(logDir); err != nil {
		results = append(results, CheckResult{
			Name:     "log_directory_access",
			Status:   "warn",
			Message:  fmt.Sprintf("Log directory missing: %s", logDir),
			Severity: "warning",
		})
	} else {
		results = append(results, CheckResult{
			Name:     "log_directory_access",
			Status:   "pass",
			Message:  fmt.Sprintf("Log directory accessible: %s", logDir),
			Severity: "info",
		})
	}

	return results
}

func testDirectoryWritable(dir string) error {
	testFile := filepath.Join(dir, ".permission_test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return err
	}
	os.Remove(testFile)
	return nil
}

func (d *Runner) checkConfiguration() []CheckResult {
	var results []CheckResult

	if err := d.config.Validate(); err != nil {
		results = append(results, CheckResult{
			Name:     "configuration_validation",
			Status:   "fail",
			Message:  fmt.Sprintf("Configuration validation failed: %v", err),
			Severity: "error",
		})
	} else {
		results = append(results, CheckResult{
			Name:     "configuration_validation",
			Status:   "pass",
			Message:  "Configuration is valid",
			Severity: "info",
		})
	}

	return results
}

func (d *Runner) checkAnalysisBackend() []CheckResult {
	var results []CheckResult

	if !d.config.LearningEnabled {
		results = append(results, CheckResult{
			Name:     "learning_enabled",
			Status:   "warn",
			Message:  "Learning is disabled; conversation analysis will not run",
			Severity: "warning",
		})
		return results
	}

	if d.config.LLMProvider == "anthropic" && d.config.LLMAPIKey == "" {
		results = append(results, CheckResult{
			Name:     "llm_api_key",
			Status:   "warn",
			Message:  "No API key configured for the anthropic provider",
			Severity: "warning",
		})
	} else {
		results = append(results, CheckResult{
			Name:     "llm_backend",
			Status:   "pass",
			Message:  fmt.Sprintf("Analysis backend configured: %s (%s)", d.config.LLMProvider, d.config.LLMModel),
			Severity: "info",
		})
	}

	return results
}

// PrintReport prints a formatted diagnostic report
func (d *Diagnostics) PrintReport() {
	fmt.Printf("=== mindkeep Diagnostic Report ===\n")
	fmt.Printf("Status: %s\n\n", d.Status)

	if len(d.Issues) > 0 {
		fmt.Printf("Issues Found:\n")
		for i, issue := range d.Issues {
			fmt.Printf("  %d. %s\n", i+1, issue)
		}
		fmt.Println()
	}

	fmt.Printf("Detailed Checks:\n")
	for _, check := range d.Checks {
		statusSymbol := "✓"
		if check.Status == "fail" {
			statusSymbol = "✗"
		} else if check.Status == "warn" {
			statusSymbol = "!"
		}

		fmt.Printf("  %s %s: %s\n", statusSymbol, check.Name, check.Message)
	}
}
