package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/systemstart/launchpad/pkg/api"
	"github.com/systemstart/launchpad/pkg/gateway"
	"github.com/systemstart/launchpad/pkg/logging"
	"github.com/systemstart/launchpad/pkg/output"
	"github.com/systemstart/launchpad/pkg/poll"
	"github.com/systemstart/launchpad/pkg/processing"
	"github.com/systemstart/launchpad/pkg/s3check"
	"github.com/systemstart/launchpad/pkg/state"
	"github.com/systemstart/launchpad/pkg/tasks"
)

var version = "dev"

const (
	_ = iota
	exitUnknownCommand
	exitDotenvError
	exitLoggingSetupFailed
	exitLoadManifestFailed
	exitToolNotFound
	exitToolVersionFailed
	exitOpenStateFailed
	exitDeployFailed
	exitDeployTimedOut
	exitLogsFailed
	exitListResourcesFailed
	exitDiscoverFailed
)

const (
	commandDeploy    = "deploy"
	commandLogs      = "logs"
	commandResources = "resources"
	commandList      = "list"
)

var (
	manifestFile    string
	environment     string
	contextFile     string
	outputDirectory string
	stateDatabase   string
	flyBinary       string
	follow          bool
	maxDepth        int
	loggingType     string
	logLevel        string
	showVersion     bool
)

func init() {
	flag.StringVar(
		&manifestFile,
		"manifest",
		api.DefaultManifestFilename,
		"deployment manifest")
	flag.StringVar(
		&environment,
		"environment",
		"",
		"environment declared in the manifest")
	flag.StringVar(
		&contextFile,
		"context-file",
		"",
		"YAML file overriding owner, region, org, workDir and secrets")
	flag.StringVar(
		&outputDirectory,
		"output-directory",
		"deployments",
		"directory receiving deployment.yaml and .env per deployment")
	flag.StringVar(
		&stateDatabase,
		"state-db",
		".launchpad/state.db",
		"SQLite ledger of runs and created resources (empty disables it)")
	flag.StringVar(
		&flyBinary,
		"fly-binary",
		"fly",
		"platform command-line tool")
	flag.BoolVar(
		&follow,
		"follow",
		false,
		"logs: keep streaming")
	flag.IntVar(
		&maxDepth,
		"max-depth",
		-1,
		"list: max directory depth (-1 = unlimited, 0 = root only)")
	flag.StringVar(
		&loggingType,
		"logging-type",
		"tint",
		"logging type: json, text or tint")
	flag.StringVar(
		&logLevel,
		"log-level",
		"info",
		"logging level: debug, info, warn, error")
	flag.BoolVar(
		&showVersion,
		"version",
		false,
		"print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [deploy|logs|resources|list]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	command := commandDeploy
	if flag.NArg() > 0 {
		command = flag.Arg(0)
		// flags may also follow the command
		_ = flag.CommandLine.Parse(flag.Args()[1:])
	}

	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := logging.Initialize(loggingType, logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitLoggingSetupFailed)
	}

	includeEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case commandDeploy:
		runDeploy(ctx)
	case commandLogs:
		runLogs(ctx)
	case commandResources:
		runResources(ctx)
	case commandList:
		runList()
	default:
		slog.Error("unknown command", "command", command)
		flag.Usage()
		os.Exit(exitUnknownCommand)
	}
}

func runDeploy(ctx context.Context) {
	gw := newGateway(ctx)

	ledger := openLedger()
	if ledger != nil {
		defer func() { _ = ledger.Close() }()
	}

	res, err := processing.Deploy(ctx, processing.Options{
		ManifestFile: manifestFile,
		Environment:  environment,
		ContextFile:  contextFile,
		OutputDir:    outputDirectory,
		Gateway:      gw,
		Ledger:       ledger,
		Tasks: tasks.Deps{
			BucketChecker: s3check.New(),
		},
	})
	if err != nil {
		if res == nil {
			slog.Error("failed to start deployment", "manifest", manifestFile, "error", err)
			exit(ledger, exitLoadManifestFailed)
		}
		if errors.Is(err, poll.ErrTimedOut) {
			slog.Error("resource may still be creating; check manually", "error", err)
			exit(ledger, exitDeployTimedOut)
		}
		slog.Error("deployment failed", "run", res.RunID, "error", err)
		exit(ledger, exitDeployFailed)
	}

	slog.Info("done", "output", res.OutputDir, "run", res.RunID)
}

func runLogs(ctx context.Context) {
	m := loadManifest()
	gw := newGateway(ctx)
	if err := gw.StreamLogs(ctx, m.App, os.Stdout, follow); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("failed to stream logs", "app", m.App, "error", err)
		os.Exit(exitLogsFailed)
	}
}

func runResources(ctx context.Context) {
	ledger := openLedger()
	if ledger == nil {
		slog.Error("-state-db is empty, no ledger to read")
		os.Exit(exitOpenStateFailed)
	}
	defer func() { _ = ledger.Close() }()

	app := ""
	if _, err := os.Stat(manifestFile); err == nil {
		app = loadManifest().App
	}

	records, err := ledger.ListResources(ctx, app)
	if err != nil {
		slog.Error("failed to list resources", "error", err)
		exit(ledger, exitListResourcesFailed)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tNAME\tAPP\tCREATED\tRUN\tSTATUS")
	for _, r := range records {
		status := string(r.RunStatus)
		if r.Orphaned() {
			status += " (orphaned)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Kind, r.Name, r.App, r.CreatedAt.Local().Format(time.DateTime), r.RunID, status)
	}
	_ = w.Flush()
}

func runList() {
	deployments, err := output.Discover(outputDirectory, maxDepth)
	if err != nil {
		slog.Error("failed to discover deployments", "directory", outputDirectory, "error", err)
		os.Exit(exitDiscoverFailed)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tAPP\tHOSTNAME\tREGION\tCREATED\tDIR")
	for _, d := range deployments {
		m := d.Metadata
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.Name, m.App, m.Hostname, m.Region, m.CreatedAt.Local().Format(time.DateTime), d.Dir)
	}
	_ = w.Flush()
}

func loadManifest() *api.Manifest {
	m, _, err := processing.LoadDeployment(manifestFile, environment, "")
	if err != nil {
		slog.Error("failed to load manifest", "manifest", manifestFile, "error", err)
		os.Exit(exitLoadManifestFailed)
	}
	return m
}

// newGateway routes app, secret and add-on calls through the typed API when
// FLY_API_TOKEN is set and everything else through the command-line tool.
func newGateway(ctx context.Context) gateway.Gateway {
	runner := gateway.NewExecRunner(flyBinary)
	if err := runner.LookPath(); err != nil {
		slog.Error("platform tool not available", "binary", flyBinary, "error", err)
		os.Exit(exitToolNotFound)
	}

	cli := gateway.NewCLI(runner, "")
	if err := cli.CheckVersion(ctx); err != nil {
		slog.Error("platform tool version check failed", "binary", flyBinary, "error", err)
		os.Exit(exitToolVersionFailed)
	}

	gw := &gateway.Hybrid{Command: cli}
	if token := os.Getenv("FLY_API_TOKEN"); token != "" {
		gw.Typed = gateway.NewAPI(os.Getenv("FLY_API_URL"), token)
		slog.Debug("using typed API for apps, secrets and add-ons")
	} else {
		slog.Info("FLY_API_TOKEN not set, using the command-line tool for every operation")
	}
	return gw
}

func openLedger() *state.Ledger {
	if stateDatabase == "" {
		return nil
	}
	ledger, err := state.Open(stateDatabase)
	if err != nil {
		slog.Error("failed to open state database", "path", stateDatabase, "error", err)
		os.Exit(exitOpenStateFailed)
	}
	return ledger
}

// exit closes the ledger before leaving, since deferred calls do not run on
// os.Exit.
func exit(ledger *state.Ledger, code int) {
	if ledger != nil {
		_ = ledger.Close()
	}
	os.Exit(code)
}

func includeEnv() {
	err := godotenv.Load()
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to load .env", "error", err)
			os.Exit(exitDotenvError)
		}
		slog.Debug("no .env file found")
	} else {
		slog.Info("using .env file")
	}
}
