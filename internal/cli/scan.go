package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/therickybobbeh/depscan/internal/config"
	"github.com/therickybobbeh/depscan/internal/model"
	"github.com/therickybobbeh/depscan/internal/parser"
)

var (
	jsonOutput     string
	noIncludeDev   bool
	ignoreSeverity []string
)

var scanCmd = &cobra.Command{
	Use:   "scan PATH",
	Short: "Scan a project directory for vulnerable dependencies",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runScan(args[0]))
	},
}

func init() {
	scanCmd.Flags().StringVar(&jsonOutput, "json", "", "write the full report as JSON to FILE")
	scanCmd.Flags().BoolVar(&noIncludeDev, "no-include-dev", false, "exclude development dependencies")
	scanCmd.Flags().StringArrayVar(&ignoreSeverity, "ignore-severity", nil, "suppress findings of this severity (repeatable)")
	rootCmd.AddCommand(scanCmd)
}

// runScan executes one scan synchronously and returns the process exit
// code: 0 for a clean scan, 1 when findings remain, 2 on failure.
func runScan(path string) int {
	log := newLogger()
	app := buildApp(log)

	opts := model.DefaultScanOptions()
	opts.IncludeDevDependencies = !noIncludeDev
	for _, s := range ignoreSeverity {
		sev, ok := model.ParseSeverity(s)
		if !ok {
			fmt.Fprintf(os.Stderr, "error: unknown severity %q\n", s)
			return 2
		}
		opts.IgnoreSeverities = append(opts.IgnoreSeverities, sev)
	}

	files, err := collectFiles(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "error: no supported dependency files found in %s\n", path)
		return 2
	}

	comps, err := config.BuildComponents(app)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	jobID, err := comps.Orchestrator.StartScan(files, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	streamProgress(comps.Orchestrator, jobID)

	report, status, err := comps.Registry.Report(jobID)
	if err != nil || report == nil {
		msg := string(status)
		if progress, perr := comps.Orchestrator.Progress(jobID); perr == nil && progress.ErrorMessage != "" {
			msg = progress.ErrorMessage
		}
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		return 2
	}

	printTable(report)
	if jsonOutput != "" {
		if err := writeJSONReport(report, jsonOutput); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
	}
	if report.VulnerableCount > 0 {
		return 1
	}
	return 0
}

// streamProgress polls the job until it finishes, printing at most one
// progress line to stderr every 250ms.
func streamProgress(orch progressSource, jobID string) {
	var lastPrint time.Time
	var lastLine string
	for {
		progress, err := orch.Progress(jobID)
		if err != nil {
			return
		}
		line := fmt.Sprintf("[%3d%%] %s", progress.ProgressPercent, progress.CurrentStep)
		if line != lastLine && time.Since(lastPrint) >= 250*time.Millisecond {
			fmt.Fprintln(os.Stderr, line)
			lastPrint = time.Now()
			lastLine = line
		}
		if progress.Status.Terminal() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

type progressSource interface {
	Progress(jobID string) (model.ScanProgress, error)
}

// collectFiles reads every supported dependency file in the directory.
// A PATH pointing at a single supported file is accepted too.
func collectFiles(path string) (map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string)
	if !info.IsDir() {
		if _, ok := parser.Ecosystem(info.Name()); !ok {
			return nil, fmt.Errorf("%s is not a supported dependency file", path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		files[info.Name()] = string(content)
		return files, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := parser.Ecosystem(entry.Name()); !ok {
			continue
		}
		content, err := os.ReadFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		files[entry.Name()] = string(content)
	}
	return files, nil
}

// printTable writes the severity-sorted findings to stdout.
func printTable(report *model.Report) {
	fmt.Printf("Scanned %d dependencies across %d ecosystem(s)\n",
		report.TotalDependencies, len(report.Meta.Ecosystems))
	if report.SuppressedCount > 0 {
		fmt.Printf("Suppressed %d finding(s) by severity filter\n", report.SuppressedCount)
	}
	if report.VulnerableCount == 0 {
		fmt.Println("No known vulnerabilities found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEVERITY\tPACKAGE\tVERSION\tID\tFIXED\tPATH")
	for _, v := range report.VulnerablePackages {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Severity, v.Package, v.Version, v.VulnerabilityID, v.FixedRange, pathString(v.DependencyPath))
	}
	w.Flush()
	fmt.Printf("\n%d vulnerability finding(s)\n", report.VulnerableCount)
}

func pathString(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " > "
		}
		out += p
	}
	return out
}

func writeJSONReport(report *model.Report, file string) error {
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, payload, 0o644)
}
