package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattjoyce/leasehook/internal/account"
	"github.com/mattjoyce/leasehook/internal/automation"
	"github.com/mattjoyce/leasehook/internal/config"
	"github.com/mattjoyce/leasehook/internal/inspect"
	"github.com/mattjoyce/leasehook/internal/log"
	"github.com/mattjoyce/leasehook/internal/n1"
	"github.com/mattjoyce/leasehook/internal/tenant"
)

// --- config ---

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: leasehook config <action>")
	fmt.Fprintln(w, "Actions: check, lock")
}

func runConfigNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			fmt.Fprintln(os.Stdout, "Usage: leasehook config check [--config PATH]")
			fmt.Fprintln(os.Stdout, "Loads the configuration, verifies integrity hashes and validates every section.")
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			fmt.Fprintln(os.Stdout, "Usage: leasehook config lock [--config PATH]")
			fmt.Fprintln(os.Stdout, "Writes BLAKE3 hashes of the config file and its .env files to .checksums.")
			return 0
		}
		return runConfigLock(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		printConfigNounHelp(os.Stderr)
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	fmt.Printf("Configuration valid (state: %s, delivery: %s, api: %t)\n",
		cfg.State.Path, cfg.Queue.Delivery, cfg.API.Enabled)
	return 0
}

// configFile resolves a file or directory argument to the config file.
func configFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return filepath.Join(abs, "config.yaml"), nil
	}
	return abs, nil
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	file, err := configFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config not found: %v\n", err)
		return 1
	}
	dir := filepath.Dir(file)
	manifest, err := config.Lock(dir, []string{filepath.Base(file), ".env", ".env.local"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	for name, sum := range manifest.Hashes {
		fmt.Printf("  %s  %s\n", sum[:16], name)
	}
	fmt.Printf("Wrote %s (%d file(s))\n", filepath.Join(dir, config.ChecksumFile), len(manifest.Hashes))
	return 0
}

// --- tenant ---

func printTenantNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: leasehook tenant <action>")
	fmt.Fprintln(w, "Actions: import, show")
}

func runTenantNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printTenantNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	switch action {
	case "import":
		if hasHelpFlag(actionArgs) {
			fmt.Fprintln(os.Stdout, "Usage: leasehook tenant import --account ID --file PATH [--config PATH]")
			fmt.Fprintln(os.Stdout, "Creates or replaces the tenant document with the JSON object in PATH.")
			return 0
		}
		return runTenantImport(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			fmt.Fprintln(os.Stdout, "Usage: leasehook tenant show --account ID [--config PATH]")
			return 0
		}
		return runTenantShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown tenant action: %s\n", action)
		printTenantNounHelp(os.Stderr)
		return 1
	}
}

// withApp loads config, opens state and runs fn. Errors from fn are
// printed and turn into exit code 1.
func withApp(configPath string, fn func(ctx context.Context, a *app) error) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.SetupTo(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx := context.Background()
	a, err := openApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

func runTenantImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	accountID := fs.String("account", "", "Vendor account id")
	file := fs.String("file", "", "JSON document to import")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *accountID == "" || *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: leasehook tenant import --account ID --file PATH [--config PATH]")
		return 1
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", *file, err)
		return 1
	}
	doc, err := tenant.Decode(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tenant document must be a JSON object: %v\n", err)
		return 1
	}

	return withApp(*configPath, func(ctx context.Context, a *app) error {
		if err := a.tenants.Put(ctx, *accountID, doc); err != nil {
			return fmt.Errorf("import tenant %s: %w", *accountID, err)
		}
		fmt.Printf("Imported tenant %s (%d top-level keys)\n", *accountID, len(doc))
		return nil
	})
}

func runTenantShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	accountID := fs.String("account", "", "Vendor account id")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *accountID == "" {
		fmt.Fprintln(os.Stderr, "Usage: leasehook tenant show --account ID [--config PATH]")
		return 1
	}

	return withApp(*configPath, func(ctx context.Context, a *app) error {
		doc, err := a.tenants.Get(ctx, *accountID)
		if err != nil {
			return fmt.Errorf("load tenant %s: %w", *accountID, err)
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	})
}

// --- secret ---

func printSecretNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: leasehook secret <action>")
	fmt.Fprintln(w, "Actions: put")
}

func runSecretNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printSecretNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	switch action {
	case "put":
		if hasHelpFlag(actionArgs) {
			fmt.Fprintln(os.Stdout, "Usage: leasehook secret put --id SECRET_ID (--value V | --value-file PATH) [--project P] [--account ID --kind webhook|api] [--config PATH]")
			fmt.Fprintln(os.Stdout, "Stores a new version. With --account the tenant's secret reference is pointed at it.")
			return 0
		}
		return runSecretPut(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown secret action: %s\n", action)
		printSecretNounHelp(os.Stderr)
		return 1
	}
}

// secretRefKey is the tenant key a bound secret is written to.
func secretRefKey(kind string) (string, error) {
	switch kind {
	case "webhook":
		return account.WebhookSecretRefKeys[0], nil
	case "api":
		return account.APISecretRefKeys[0], nil
	default:
		return "", fmt.Errorf("--kind must be webhook or api (got %q)", kind)
	}
}

func runSecretPut(args []string) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	secretID := fs.String("id", "", "Secret id")
	value := fs.String("value", "", "Secret value")
	valueFile := fs.String("value-file", "", "Read the secret value from a file")
	project := fs.String("project", "", "Project (defaults to secrets.project_id)")
	accountID := fs.String("account", "", "Bind the new version to this tenant")
	kind := fs.String("kind", "webhook", "Reference to bind: webhook or api")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *secretID == "" || (*value == "") == (*valueFile == "") {
		fmt.Fprintln(os.Stderr, "secret put needs --id and exactly one of --value or --value-file")
		return 1
	}

	payload := []byte(*value)
	if *valueFile != "" {
		raw, err := os.ReadFile(*valueFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", *valueFile, err)
			return 1
		}
		payload = []byte(strings.TrimRight(string(raw), "\r\n"))
	}

	var refKey string
	if *accountID != "" {
		key, err := secretRefKey(*kind)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		refKey = key
	}

	return withApp(*configPath, func(ctx context.Context, a *app) error {
		proj := *project
		if proj == "" {
			proj = a.cfg.Secrets.ProjectID
		}
		ref, err := a.secrets.Put(ctx, proj, *secretID, payload)
		if err != nil {
			return fmt.Errorf("store secret: %w", err)
		}
		fmt.Printf("Stored %s\n", ref.String())

		if refKey == "" {
			return nil
		}
		if err := a.tenants.SetPath(ctx, *accountID, refKey, ref.String()); err != nil {
			return fmt.Errorf("bind secret to tenant %s: %w", *accountID, err)
		}
		fmt.Printf("Tenant %s %s -> %s\n", *accountID, refKey, ref.String())
		return nil
	})
}

// --- automation ---

func printAutomationNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: leasehook automation <action>")
	fmt.Fprintln(w, "Actions: run")
}

func runAutomationNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printAutomationNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	switch action {
	case "run":
		if hasHelpFlag(actionArgs) {
			kinds := make([]string, 0, len(automation.Kinds()))
			for _, k := range automation.Kinds() {
				kinds = append(kinds, k.String())
			}
			fmt.Fprintln(os.Stdout, "Usage: leasehook automation run <kind> (--account ID[,ID...] | --all) [--json] [--config PATH]")
			fmt.Fprintf(os.Stdout, "Kinds: %s\n", strings.Join(kinds, ", "))
			return 0
		}
		return runAutomationRun(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown automation action: %s\n", action)
		printAutomationNounHelp(os.Stderr)
		return 1
	}
}

// splitPositional lets a leading positional argument precede flags.
func splitPositional(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func runAutomationRun(args []string) int {
	kindArg, args := splitPositional(args)

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	accounts := fs.String("account", "", "Comma-separated account ids")
	all := fs.Bool("all", false, "Run for every tenant")
	jsonOut := fs.Bool("json", false, "Output results as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if kindArg == "" && fs.NArg() > 0 {
		kindArg = fs.Arg(0)
	}

	kind, err := automation.ParseKind(kindArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if (*accounts == "") == !*all {
		fmt.Fprintln(os.Stderr, "automation run needs exactly one of --account or --all")
		return 1
	}

	failed := false
	code := withApp(*configPath, func(ctx context.Context, a *app) error {
		var ids []string
		if *all {
			listed, err := a.tenants.List(ctx)
			if err != nil {
				return err
			}
			ids = listed
		} else {
			for _, id := range strings.Split(*accounts, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		}

		results := a.router.RunBatch(ctx, kind, a.resolver, ids)
		for _, r := range results {
			if r.Error != "" {
				failed = true
			}
		}

		if *jsonOut {
			data, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		for _, r := range results {
			line := fmt.Sprintf("%s\t%s\t%s", r.AccountID, kind, r.Outcome.Status)
			if r.Outcome.Reason != "" {
				line += "\t" + r.Outcome.Reason
			} else if r.Error != "" {
				line += "\t" + r.Error
			}
			fmt.Println(line)
		}
		return nil
	})
	if code == 0 && failed {
		return 1
	}
	return code
}

// --- payload ---

func printPayloadNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: leasehook payload <action>")
	fmt.Fprintln(w, "Actions: inspect")
}

func runPayloadNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printPayloadNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	switch action {
	case "inspect":
		if hasHelpFlag(actionArgs) {
			fmt.Fprintln(os.Stdout, "Usage: leasehook payload inspect --account ID [--csv] [--config PATH]")
			fmt.Fprintln(os.Stdout, "Decodes the tenant's prepared n1 chunks and prints the schedules.")
			return 0
		}
		return runPayloadInspect(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown payload action: %s\n", action)
		printPayloadNounHelp(os.Stderr)
		return 1
	}
}

func runPayloadInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	accountID := fs.String("account", "", "Vendor account id")
	csvOut := fs.Bool("csv", false, "Render the summary CSV instead of JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if *accountID == "" {
		fmt.Fprintln(os.Stderr, "Usage: leasehook payload inspect --account ID [--csv] [--config PATH]")
		return 1
	}

	return withApp(*configPath, func(ctx context.Context, a *app) error {
		schedules, preparedAt, err := preparedSchedules(ctx, a, *accountID)
		if err != nil {
			return err
		}

		if *csvOut {
			date := time.Now().UTC().Format("2006-01-02")
			if len(preparedAt) >= len(date) {
				date = preparedAt[:len(date)]
			}
			doc, err := n1.RenderSummary(schedules, date)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(doc.Content)
			return err
		}

		data, err := json.MarshalIndent(schedules, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	})
}

func preparedSchedules(ctx context.Context, a *app, accountID string) ([]n1.Schedule, string, error) {
	doc, err := a.tenants.Get(ctx, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("load tenant %s: %w", accountID, err)
	}
	state, err := automation.ReadN1State(doc)
	if err != nil {
		return nil, "", err
	}
	if len(state.Chunks) == 0 {
		return nil, "", fmt.Errorf("tenant %s has no prepared n1 payload", accountID)
	}

	codec, err := a.keys.Codec(ctx, accountID)
	if err != nil {
		return nil, "", err
	}
	records, err := codec.DecodeAll(state.Chunks)
	if err != nil {
		return nil, "", fmt.Errorf("decode n1 payload: %w", err)
	}

	schedules := make([]n1.Schedule, 0, len(records))
	for i, rec := range records {
		var s n1.Schedule
		if err := json.Unmarshal(rec, &s); err != nil {
			return nil, "", fmt.Errorf("n1 record %d: %w", i, err)
		}
		schedules = append(schedules, s)
	}
	return schedules, state.PreparedAt, nil
}

// --- job ---

func printJobNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: leasehook job <action>")
	fmt.Fprintln(w, "Actions: inspect")
}

func runJobNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printJobNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]
	switch action {
	case "inspect":
		if hasHelpFlag(actionArgs) {
			fmt.Fprintln(os.Stdout, "Usage: leasehook job inspect <job_id> [--json] [--config PATH]")
			fmt.Fprintln(os.Stdout, "Shows the job state and every finished delivery attempt.")
			return 0
		}
		return runJobInspect(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", action)
		printJobNounHelp(os.Stderr)
		return 1
	}
}

func runJobInspect(args []string) int {
	jobID, args := splitPositional(args)

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output the report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if jobID == "" && fs.NArg() > 0 {
		jobID = fs.Arg(0)
	}
	if jobID == "" {
		fmt.Fprintln(os.Stderr, "Usage: leasehook job inspect <job_id> [--json] [--config PATH]")
		return 1
	}

	return withApp(*configPath, func(ctx context.Context, a *app) error {
		build := inspect.BuildReport
		if *jsonOut {
			build = inspect.BuildJSONReport
		}
		out, err := build(ctx, a.db, jobID)
		if err != nil {
			return err
		}
		fmt.Print(out)
		if *jsonOut {
			fmt.Println()
		}
		return nil
	})
}
