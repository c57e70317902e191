package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/clinicore/imagingest/cmd/imagingest/wizard"
	"github.com/clinicore/imagingest/internal/archive"
	"github.com/clinicore/imagingest/internal/config"
	"github.com/clinicore/imagingest/internal/dicomfile"
	"github.com/clinicore/imagingest/internal/ingest"
	"github.com/clinicore/imagingest/internal/logging"
	"github.com/clinicore/imagingest/internal/registry"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	configFile := flag.String("config", "", "Load configuration from YAML file")
	interactive := flag.Bool("interactive", false, "Launch interactive wizard")
	flag.BoolVar(interactive, "i", false, "Launch interactive wizard (shortcut)")

	inputDir := flag.String("dir", "", "Directory with files to ingest (headless mode)")
	orderID := flag.String("order", "", "Clinical order to associate the upload with")

	var tagFlags []string
	flag.Func("tag", "Override a tag: 'FieldName=Value' (repeatable)", func(s string) error {
		tagFlags = append(tagFlags, s)
		return nil
	})

	health := flag.Bool("health", false, "Check archive reachability and exit")
	showVersion := flag.Bool("version", false, "Show version")
	help := flag.Bool("help", false, "Show help message")
	flag.Parse()

	if *showVersion {
		fmt.Printf("imagingest %s\n", version)
		os.Exit(0)
	}
	if *help {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Archive.URL == "" {
		fmt.Fprintln(os.Stderr, "Error: archive URL is not configured (set archive.url or IMAGINGEST_ARCHIVE_URL)")
		os.Exit(1)
	}

	archiveClient := archive.NewClient(
		cfg.Archive.URL, cfg.Archive.Username, cfg.Archive.Password,
		cfg.UploadTimeout(), nil,
	)

	if *health {
		info, err := archiveClient.Health(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: archive unreachable: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Archive reachable: %s %s\n", info.Name, info.Version)
		os.Exit(0)
	}

	if cfg.Registry.URL == "" {
		fmt.Fprintln(os.Stderr, "Error: registry URL is not configured (set registry.url or IMAGINGEST_REGISTRY_URL)")
		os.Exit(1)
	}

	if *interactive {
		// Log lines would corrupt the rendered screen.
		matcher := registry.NewMatcher(registry.NewClient(cfg.Registry.URL, cfg.Registry.Token, cfg.LookupTimeout(), nil))
		orch := ingest.NewOrchestrator(archiveClient, cfg.UploadTimeout(), nil)
		core := ingest.NewWizard(matcher, orch, cfg.MaxFileBytes(), nil)
		if err := wizard.Run(core, *inputDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *inputDir == "" {
		fmt.Fprintln(os.Stderr, "Error: --dir is required in headless mode (or use -i for the wizard)")
		printUsage()
		os.Exit(1)
	}

	override, err := parseTagFlags(tagFlags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := runHeadless(cfg, archiveClient, log, *inputDir, *orderID, override); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runHeadless drives the session without a UI: the batch must resolve to an
// exact registry match, otherwise the operator is told to use the wizard.
func runHeadless(cfg config.Config, store *archive.Client, log *logging.Logger, dir, orderID string, override dicomfile.Override) error {
	matcher := registry.NewMatcher(registry.NewClient(cfg.Registry.URL, cfg.Registry.Token, cfg.LookupTimeout(), log))
	orch := ingest.NewOrchestrator(store, cfg.UploadTimeout(), log)
	core := ingest.NewWizard(matcher, orch, cfg.MaxFileBytes(), log)
	core.Session().OrderID = orderID

	inputs, err := readInputs(dir)
	if err != nil {
		return err
	}

	fmt.Println("imagingest")
	fmt.Println("==========")
	fmt.Println()

	report, err := core.SelectFiles(inputs)
	if err != nil {
		return err
	}
	fmt.Printf("Validated %d file(s): %d accepted, %d rejected\n", len(inputs), report.Valid, report.Invalid)
	for _, f := range core.Session().InvalidFiles() {
		fmt.Printf("  ✗ %s: %v\n", f.Name, f.Reason)
	}
	if report.Divergent > 0 {
		fmt.Printf("  ⚠ %d file(s) belong to a different study than the first one\n", report.Divergent)
	}

	if err := core.ToPreview(); err != nil {
		return err
	}
	if err := core.ApplyOverride(override); err != nil {
		return err
	}
	if err := core.ToMatch(); err != nil {
		return fmt.Errorf("%w (supply the missing values with --tag)", err)
	}

	// Ctrl+C stops the run between files; the file in flight finishes.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	candidates, err := core.FindCandidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 || candidates[0].Tier != registry.TierExact {
		return fmt.Errorf("no exact patient match for MRN %q; run with -i to resolve interactively",
			core.Session().Resolved.PatientID)
	}
	chosen := candidates[0]
	if err := core.SelectCandidate(chosen); err != nil {
		return err
	}
	fmt.Printf("Matched patient %s (MRN %s)\n", chosen.Patient.DisplayName(), chosen.Patient.MRN)

	events, err := core.StartUpload(ctx)
	if err != nil {
		return err
	}
	sum := ingest.WaitSummary(events, func(ev ingest.ProgressEvent) {
		switch ev.State {
		case ingest.TaskCompleted:
			fmt.Printf("  ✓ %s\n", ev.FileName)
		case ingest.TaskError:
			fmt.Printf("  ✗ %s: %v\n", ev.FileName, ev.Err)
		}
	})
	if err := core.Finish(); err != nil {
		return err
	}

	fmt.Printf("\nUploaded %d file(s), %d failed, in %.1fs\n", sum.Completed, sum.Errored, sum.Duration.Seconds())
	for _, id := range sum.RemoteStudyIDs {
		stats, err := store.GetStudyStatistics(ctx, id)
		if err != nil {
			fmt.Printf("  Study %s\n", id)
			continue
		}
		fmt.Printf("  Study %s: %d series, %d instance(s), %d MB\n",
			id, stats.CountSeries, stats.CountInstances, stats.DiskSizeMB)
	}
	if sum.Errored > 0 {
		return fmt.Errorf("%d file(s) failed to upload", sum.Errored)
	}
	return nil
}

func readInputs(dir string) ([]ingest.FileInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var inputs []ingest.FileInput
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		inputs = append(inputs, ingest.FileInput{Name: e.Name(), Content: content})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no files in %s", dir)
	}
	return inputs, nil
}

// parseTagFlags turns repeated 'FieldName=Value' flags into an override.
func parseTagFlags(flags []string) (dicomfile.Override, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	ov := dicomfile.Override{}
	for _, raw := range flags {
		name, value, found := strings.Cut(raw, "=")
		if !found {
			return nil, fmt.Errorf("invalid --tag %q, expected 'FieldName=Value'", raw)
		}
		field, err := dicomfile.FieldByName(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		ov[field] = value
	}
	return ov, nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "\nUsage:")
	fmt.Fprintln(os.Stderr, "  imagingest --dir <DIR> [options]")
	fmt.Fprintln(os.Stderr, "  imagingest -i")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()
}

func printHelp() {
	fmt.Println("imagingest")
	fmt.Println("==========")
	fmt.Println()
	fmt.Println("Validate DICOM files, match them to a registry patient and upload")
	fmt.Println("them to the imaging archive.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  imagingest --dir <DIR> [options]    Headless batch ingestion")
	fmt.Println("  imagingest -i                       Interactive wizard")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <FILE>       Load configuration from YAML file")
	fmt.Println("  --dir <DIR>           Directory with files to ingest")
	fmt.Println("  --order <ID>          Clinical order to associate the upload with")
	fmt.Println("  --tag <NAME=VALUE>    Override a tag before upload (repeatable)")
	fmt.Println("                        Example: --tag \"AccessionNumber=ACC-1234\"")
	fmt.Println("  --health              Check archive reachability and exit")
	fmt.Println("  -i, --interactive     Launch the interactive wizard")
	fmt.Println("  --version             Show version")
	fmt.Println("  --help                Show this help message")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  Settings come from the YAML file and IMAGINGEST_* environment")
	fmt.Println("  variables (env wins). Required: archive.url, registry.url.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Upload a study folder under order ORD-77")
	fmt.Println("  imagingest --dir ./incoming --order ORD-77")
	fmt.Println()
	fmt.Println("  # Fix a wrong accession number during ingestion")
	fmt.Println("  imagingest --dir ./incoming --tag \"AccessionNumber=ACC-1234\"")
	fmt.Println()
	fmt.Println("  # Resolve an ambiguous patient interactively")
	fmt.Println("  imagingest -i")
}
