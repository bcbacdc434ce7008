package main

import (
	"bufio"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"neuropipe/internal/builtin"
	"neuropipe/internal/parser"
	"neuropipe/internal/runner"
	"neuropipe/internal/store"
)

var runFlags struct {
	parserName string
	vars       []string
	workers    int
	failFast   bool
	logLevel   string
	logFormat  string
	storePath  string
	noPrompt   bool
}

var runCmd = &cobra.Command{
	Use:   "run <input-file>",
	Short: "Run the pipelines described by a configuration file",
	Long: `Run parses a configuration file (YAML, JSON or HCL, inferred from the
extension unless --parser is given), resolves its loaders and pipelines,
and processes every discovered item.

Template variables referenced by the file can be supplied with --var; any
still missing are prompted for interactively.

Usage:
  neuropipe run study.yaml
  neuropipe run study.yaml --var data_dir=/data/eeg --workers 8
  neuropipe run study.json --parser json --fail-fast`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.parserName, "parser", "", "Parser override: yaml, json or hcl (default: by file extension)")
	f.StringArrayVarP(&runFlags.vars, "var", "V", nil, "Template variable as name=value (repeatable)")
	f.IntVar(&runFlags.workers, "workers", 0, "Concurrent items per loader (default: from config, else CPU count)")
	f.BoolVar(&runFlags.failFast, "fail-fast", false, "Cancel a loader's pending items after the first failure")
	f.StringVar(&runFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&runFlags.logFormat, "log-format", "", "Log format: text or json")
	f.StringVar(&runFlags.storePath, "store", "", "SQLite path for run records (default: from config)")
	f.BoolVar(&runFlags.noPrompt, "no-prompt", false, "Fail on missing template variables instead of prompting")
}

func runRun(cmd *cobra.Command, args []string) error {
	input := args[0]

	vars, err := parseVarFlags(runFlags.vars)
	if err != nil {
		return err
	}

	p := parser.New(builtin.Scope())
	if !runFlags.noPrompt {
		if err := promptMissingVars(cmd, p, input, vars); err != nil {
			return err
		}
	}

	res, err := p.ParseFile(input, runFlags.parserName, vars)
	if err != nil {
		return err
	}

	logCfg := res.Logging
	if cmd.Flags().Changed("log-level") {
		logCfg.Level = runFlags.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		logCfg.Format = runFlags.logFormat
	}
	if err := logCfg.Apply(); err != nil {
		return err
	}

	opts := res.Runner
	if cmd.Flags().Changed("workers") {
		opts.Workers = runFlags.workers
	}
	if cmd.Flags().Changed("fail-fast") {
		opts.FailFast = runFlags.failFast
	}

	r := runner.New(opts)
	storePath := runFlags.storePath
	if storePath == "" {
		storePath = res.StorePath
	}
	if storePath != "" {
		st, err := store.Open(storePath)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer st.Close()
		r = r.WithStore(st)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, runErr := r.Run(ctx, res.Pairs)
	fmt.Fprintln(cmd.OutOrStdout(), report.String())
	if runErr != nil {
		return runErr
	}
	if failed := report.Summary().Failed; failed > 0 {
		return fmt.Errorf("%d item(s) failed", failed)
	}
	return nil
}

func parseVarFlags(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --var %q, expected name=value", pair)
		}
		vars[name] = value
	}
	return vars, nil
}

// promptMissingVars asks for every template variable the file references but
// vars does not cover, filling vars in place.
func promptMissingVars(cmd *cobra.Command, p *parser.Parser, input string, vars map[string]any) error {
	missing, err := p.UndeclaredVars(input, vars)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	for _, name := range missing {
		fmt.Fprintf(cmd.OutOrStdout(), "Value for %q: ", name)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read value for %q: %w", name, err)
		}
		vars[name] = strings.TrimSpace(line)
	}
	return nil
}
