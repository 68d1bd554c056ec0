// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/adapter"
	"github.com/replicant-partners/chrysalis/pkg/adapter/mcpcap"
	"github.com/replicant-partners/chrysalis/pkg/adapter/rolegoal"
	"github.com/replicant-partners/chrysalis/pkg/adapter/toolcall"
	"github.com/replicant-partners/chrysalis/pkg/bridge"
	"github.com/replicant-partners/chrysalis/pkg/cache"
	"github.com/replicant-partners/chrysalis/pkg/config"
	"github.com/replicant-partners/chrysalis/pkg/registry"
	"github.com/replicant-partners/chrysalis/pkg/roundtrip"
	"github.com/replicant-partners/chrysalis/pkg/service"
	"github.com/replicant-partners/chrysalis/pkg/store"
	"github.com/replicant-partners/chrysalis/pkg/telemetry"
)

const version = "dev"

type globalFlags struct {
	ConfigPath string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

// app bundles the wired subsystem for command handlers.
type app struct {
	cfg          *config.Config
	registry     *registry.Registry
	store        store.Store
	cache        *cache.Cache
	orchestrator *bridge.Orchestrator
	service      *service.Service
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cmd := args[0]
	switch cmd {
	case "help":
		printUsage()
		return
	case "version":
		fmt.Println(version)
		return
	}

	// With an explicit config file the process tracks edits to it for
	// the lifetime of the command, so long-running work (chains,
	// roundtrip suites) honors log-level changes.
	var cfg *config.Config
	if global.ConfigPath != "" {
		watcher, err := config.NewWatcher([]string{global.ConfigPath})
		if err != nil {
			fatal(err)
		}
		watcher.OnChange(func(next *config.Config) {
			telemetry.ConfigureSlog(os.Stderr, next.Log.Level, next.Log.Format)
		})
		watcher.Start(ctx)
		defer watcher.Stop()
		cfg = watcher.Config()
	} else {
		loaded, err := config.Load("")
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitWithConfig(cfg.Telemetry.ServiceName, version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.Endpoint,
			OTLPInsecure: true,
		})
		if err != nil {
			fatal(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	a, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer a.close()

	switch cmd {
	case "import":
		runImport(ctx, a, global, args[1:])
	case "export":
		runExport(ctx, a, global, args[1:])
	case "translate":
		runTranslate(ctx, a, global, args[1:])
	case "chain":
		runChain(ctx, a, global, args[1:])
	case "agents":
		runAgents(ctx, a, global, args[1:])
	case "history":
		runHistory(ctx, a, global, args[1:])
	case "roundtrip":
		runRoundtrip(ctx, a, global, args[1:])
	case "stats":
		runStats(ctx, a, global, args[1:])
	default:
		fatal(fmt.Errorf("unknown command %q", cmd))
	}
}

func buildApp(cfg *config.Config) (*app, error) {
	var st store.Store
	switch cfg.Store.Backend {
	case "memory":
		st = store.NewMemoryStore()
	case "", "sqlite":
		s, err := store.OpenSQLite(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	c := cache.New(cache.Config{
		CapacityPerShard: cfg.Cache.CapacityPerShard,
		Shards:           cfg.Cache.Shards,
		DefaultTTL:       cfg.Cache.TTL,
		SweepInterval:    cfg.Cache.SweepInterval,
	})

	reg := registry.New()
	reg.Register(toolcall.New(), registry.Options{Enabled: true})
	reg.Register(rolegoal.New(), registry.Options{Enabled: true})
	reg.Register(mcpcap.New(), registry.Options{Enabled: true})

	o := bridge.New(reg, st, c)
	return &app{
		cfg:          cfg,
		registry:     reg,
		store:        st,
		cache:        c,
		orchestrator: o,
		service:      service.New(reg, st, c, o),
	}, nil
}

func (a *app) close() {
	a.cache.Close()
	_ = a.store.Close()
}

func (a *app) adapterFor(protocol string) adapter.Adapter {
	ad := a.registry.GetAdapter(protocol)
	if ad == nil {
		fatal(fmt.Errorf("unknown protocol %q (registered: %s)", protocol, strings.Join(a.registry.Protocols(), ", ")))
	}
	return ad
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{Timeout: 30 * time.Second}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func runImport(ctx context.Context, a *app, global globalFlags, args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	format := fs.String("format", "", "source protocol id")
	file := fs.String("file", "-", "native description file, - for stdin")
	parseFlags(fs, args)
	if *format == "" {
		fatal(fmt.Errorf("usage: chrysalis import --format <protocol> --file <path>"))
	}

	data := readInput(*file)
	ctx, cancel := withTimeout(ctx, global)
	defer cancel()
	res, err := a.service.ImportAgent(ctx, *format, data)
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(res)
		return
	}
	fmt.Printf("imported %s version %d (fidelity %.4f)\n", res.AgentID, res.Version, res.Report.FidelityScore)
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}

func runExport(ctx context.Context, a *app, global globalFlags, args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "", "target protocol id")
	ver := fs.Int64("version", 0, "snapshot version, 0 for latest")
	out := fs.String("out", "-", "output file, - for stdout")
	parseFlags(fs, args)
	if fs.NArg() != 1 || *format == "" {
		fatal(fmt.Errorf("usage: chrysalis export <agent_id> --format <protocol> [--version N]"))
	}

	ctx, cancel := withTimeout(ctx, global)
	defer cancel()
	resp, err := a.service.ExportAgent(ctx, fs.Arg(0), *format, *ver)
	if err != nil {
		fatal(err)
	}
	if !resp.Success {
		fatal(fmt.Errorf("export failed: %s", strings.Join(resp.Errors, "; ")))
	}
	writeOutput(*out, resp.Native.Data)
	if *out != "-" {
		fmt.Printf("exported %s version %d to %s (fidelity %.4f)\n", resp.AgentID, resp.Version, *out, resp.TotalFidelity)
	}
}

func runTranslate(ctx context.Context, a *app, global globalFlags, args []string) {
	fs := flag.NewFlagSet("translate", flag.ExitOnError)
	from := fs.String("from", "", "source protocol id")
	to := fs.String("to", "", "target protocol id")
	file := fs.String("file", "-", "native description file, - for stdin")
	agentID := fs.String("agent", "", "agent id for caching and persistence")
	persist := fs.Bool("persist", false, "persist the canonical snapshot")
	useCache := fs.Bool("use-cache", false, "serve repeated requests from cache")
	maxLoss := fs.Float64("max-loss", 0, "reject when forward fidelity loss exceeds this fraction")
	out := fs.String("out", "-", "output file, - for stdout")
	parseFlags(fs, args)
	if *from == "" || *to == "" {
		fatal(fmt.Errorf("usage: chrysalis translate --from <protocol> --to <protocol> --file <path>"))
	}

	ctx, cancel := withTimeout(ctx, global)
	defer cancel()
	resp, err := a.orchestrator.Translate(ctx, bridge.Request{
		AgentID:      *agentID,
		SourceFormat: *from,
		TargetFormat: *to,
		SourceData:   readInput(*file),
		Options: bridge.Options{
			UseCache:        *useCache,
			Persist:         *persist,
			MaxFidelityLoss: *maxLoss,
			Timeout:         global.Timeout,
		},
	})
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(resp)
		return
	}
	if !resp.Success {
		fatal(fmt.Errorf("translation failed: %s", strings.Join(resp.Errors, "; ")))
	}
	writeOutput(*out, resp.Native.Data)
	fmt.Fprintf(os.Stderr, "fidelity: forward %.4f reverse %.4f total %.4f cached=%t\n",
		resp.ForwardReport.FidelityScore, resp.ReverseReport.FidelityScore, resp.TotalFidelity, resp.Cached)
}

func runChain(ctx context.Context, a *app, global globalFlags, args []string) {
	fs := flag.NewFlagSet("chain", flag.ExitOnError)
	formats := fs.String("formats", "", "comma-separated protocol chain, e.g. toolcall,rolegoal,mcpcap")
	file := fs.String("file", "-", "native description file, - for stdin")
	agentID := fs.String("agent", "", "agent id")
	persist := fs.Bool("persist", false, "persist the final hop")
	out := fs.String("out", "-", "output file, - for stdout")
	parseFlags(fs, args)

	chain := splitList(*formats)
	if len(chain) < 2 {
		fatal(fmt.Errorf("usage: chrysalis chain --formats <p1,p2,...> --file <path>"))
	}

	ctx, cancel := withTimeout(ctx, global)
	defer cancel()
	res, err := a.orchestrator.TranslateChain(ctx, *agentID, readInput(*file), chain, bridge.Options{
		Persist: *persist,
		Timeout: global.Timeout,
	})
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(res)
		return
	}
	if !res.Success {
		fatal(fmt.Errorf("chain failed after %d hops: %s", len(res.Hops), strings.Join(res.Errors, "; ")))
	}
	writeOutput(*out, res.Native.Data)
	fmt.Fprintf(os.Stderr, "cumulative fidelity: %.4f over %d hops\n", res.CumulativeFidelity, len(res.Hops))
}

func runAgents(ctx context.Context, a *app, global globalFlags, args []string) {
	fs := flag.NewFlagSet("agents", flag.ExitOnError)
	capability := fs.String("capability", "", "filter by capability")
	protocol := fs.String("protocol", "", "filter by source protocol")
	query := fs.String("query", "", "filter by name or description text")
	parseFlags(fs, args)

	ctx, cancel := withTimeout(ctx, global)
	defer cancel()
	agents, err := a.service.DiscoverAgents(ctx, store.Criteria{
		Capability: *capability,
		Protocol:   *protocol,
		TextQuery:  *query,
	})
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(agents)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT ID\tNAME\tVERSION\tSOURCE\tUPDATED")
	for _, agent := range agents {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			agent.AgentID, agent.Name, agent.LatestVersion, agent.SourceFormat, formatTime(agent.UpdatedAt))
	}
	w.Flush()
}

func runHistory(ctx context.Context, a *app, global globalFlags, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	parseFlags(fs, args)
	if fs.NArg() != 1 {
		fatal(fmt.Errorf("usage: chrysalis history <agent_id>"))
	}

	ctx, cancel := withTimeout(ctx, global)
	defer cancel()
	history, err := a.service.GetAgentHistory(ctx, fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(history)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSOURCE\tTIMESTAMP")
	for _, entry := range history {
		fmt.Fprintf(w, "%d\t%s\t%s\n", entry.Version, entry.SourceFormat, formatTime(entry.Timestamp))
	}
	w.Flush()
}

func runRoundtrip(ctx context.Context, a *app, global globalFlags, args []string) {
	fs := flag.NewFlagSet("roundtrip", flag.ExitOnError)
	format := fs.String("format", "", "protocol id under test")
	cross := fs.String("cross", "", "optional second protocol for the cross-framework chain")
	file := fs.String("file", "-", "native sample file, - for stdin")
	minFidelity := fs.Float64("min", 0.95, "minimum acceptable fidelity")
	report := fs.String("report", "", "write a JSON CI report to this path")
	parseFlags(fs, args)
	if *format == "" {
		fatal(fmt.Errorf("usage: chrysalis roundtrip --format <protocol> --file <path> [--cross <protocol>]"))
	}

	sample := adapter.Native{Protocol: *format, Data: readInput(*file)}
	c := roundtrip.Case{
		Name:        *format,
		Source:      a.adapterFor(*format),
		Sample:      sample,
		MinFidelity: *minFidelity,
	}
	if *cross != "" {
		c.Name = *format + "->" + *cross
		c.Target = a.adapterFor(*cross)
	}

	ctx, cancel := withTimeout(ctx, global)
	defer cancel()
	suite := roundtrip.RunSuite(ctx, []roundtrip.Case{c})
	if *report != "" {
		if err := roundtrip.WriteReport(*report, suite); err != nil {
			fatal(err)
		}
	}
	if global.JSON {
		printJSON(suite)
	} else {
		for _, cr := range suite.Cases {
			status := "PASS"
			if !cr.Passed {
				status = "FAIL"
			}
			fmt.Printf("%s %s fidelity=%.4f threshold=%.4f\n", status, cr.Name, cr.Fidelity, cr.Threshold)
			if cr.Failure != "" {
				fmt.Printf("  %s\n", cr.Failure)
			}
		}
	}
	if suite.Failed > 0 {
		os.Exit(1)
	}
}

func runStats(ctx context.Context, a *app, global globalFlags, args []string) {
	ensureNoArgs(args)
	ctx, cancel := withTimeout(ctx, global)
	defer cancel()
	stats, err := a.service.GetStats(ctx)
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(stats)
		return
	}
	fmt.Printf("agents: %d\n", stats.Store.Agents)
	fmt.Printf("snapshots: %d\n", stats.Store.Snapshots)
	fmt.Printf("activities: %d\n", stats.Store.Activities)
	fmt.Printf("cache entries: %d\n", stats.CacheEntries)
	fmt.Printf("protocols: %s\n", strings.Join(stats.Protocols, ", "))
	for format, count := range stats.Store.ByFormat {
		fmt.Printf("  %s: %d\n", format, count)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
}

func withTimeout(ctx context.Context, global globalFlags) (context.Context, context.CancelFunc) {
	if global.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, global.Timeout)
}

func readInput(path string) []byte {
	if path == "-" {
		data, err := os.ReadFile("/dev/stdin")
		if err != nil {
			fatal(fmt.Errorf("read stdin: %w", err))
		}
		return data
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}
	return data
}

func writeOutput(path string, data []byte) {
	if path == "-" {
		os.Stdout.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Println()
		}
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fatal(err)
	}
}

func printJSON(value any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(value); err != nil {
		fatal(err)
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format(time.RFC3339)
}

func splitList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func ensureNoArgs(args []string) {
	if len(args) > 0 {
		fatal(fmt.Errorf("unexpected args: %v", args))
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`Chrysalis CLI

Usage:
  chrysalis [global flags] <command> [args]

Global flags:
  --config <path>      Path to chrysalis.yaml
  --timeout <dur>      Operation timeout (default 30s)
  --json               JSON output

Commands:
  import --format <protocol> --file <path>
  export <agent_id> --format <protocol> [--version N] [--out <path>]
  translate --from <p> --to <p> --file <path> [--agent <id>] [--persist] [--use-cache] [--max-loss F]
  chain --formats <p1,p2,...> --file <path> [--agent <id>] [--persist]
  agents [--capability <c>] [--protocol <p>] [--query <text>]
  history <agent_id>
  roundtrip --format <protocol> --file <path> [--cross <protocol>] [--min F] [--report <path>]
  stats
  version
`)
}
