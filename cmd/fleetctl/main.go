package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fleetwall/internal/app"
	"fleetwall/internal/codec"
	"fleetwall/internal/config"
	"fleetwall/internal/deploy"
	"fleetwall/internal/domain"
	"fleetwall/internal/loader"
	"fleetwall/internal/parser"
)

var errDeployFailures = errors.New("deployment finished with failures")

type options struct {
	configPath  string
	definitions string
	format      string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "fleetctl",
		Short: "Render and deploy firewall rules to device fleets",
		Long: `fleetctl checks firewall rule and address-list definitions, renders the
device commands they produce and deploys them to device groups over SSH.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			if !opts.verbose {
				log.SetOutput(io.Discard)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: search standard locations)")
	rootCmd.PersistentFlags().StringVarP(&opts.definitions, "definitions", "d", "", "definitions YAML file")
	rootCmd.PersistentFlags().StringVarP(&opts.format, "format", "o", "text", "output format: text, json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(
		newParseCmd(opts),
		newValidateCmd(opts),
		newRenderCmd(opts),
		newDeployCmd(opts),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newParseCmd(opts *options) *cobra.Command {
	var family string

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse tabular device output (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			result := parser.NewFamilies(nil).Parser(family).ParseDetailed(string(raw))
			out := cmd.OutOrStdout()
			if opts.format != "text" {
				return encode(out, opts.format, result)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tFLAGS\tNAME\tTYPE")
			for _, r := range result.Records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Index, r.Flags, r.Name, r.Type)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			for _, s := range result.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped line %d (%s): %s\n", s.Line, s.Reason, s.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", parser.FamilyRouterOS, "firmware family")
	return cmd
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a definitions file",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d address lists, %d rules, %d groups\n",
				len(defs.AddressLists), len(defs.Rules), len(defs.Groups))
			return nil
		},
	}
}

func newRenderCmd(opts *options) *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the commands a group deployment would send",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(opts)
			if err != nil {
				return err
			}
			plan, _, err := planFor(defs, group)
			if err != nil {
				return err
			}
			return writePlan(cmd, opts.format, plan)
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "device group ID (required)")
	cmd.MarkFlagRequired("group")
	return cmd
}

func newDeployCmd(opts *options) *cobra.Command {
	var (
		group  string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a group's rules to its devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(opts)
			if err != nil {
				return err
			}
			plan, g, err := planFor(defs, group)
			if err != nil {
				return err
			}

			if dryRun {
				out := cmd.OutOrStdout()
				if opts.format == "text" {
					fmt.Fprintf(out, "dry run: %d operations to %d devices\n", len(plan.Operations), len(g.Devices))
				}
				return writePlan(cmd, opts.format, plan)
			}

			return runDeploy(cmd, opts, defs, group)
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "device group ID (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the plan without contacting devices")
	cmd.MarkFlagRequired("group")
	return cmd
}

func runDeploy(cmd *cobra.Command, opts *options, defs *domain.Definitions, group string) error {
	exporter, err := codec.ExporterFor(opts.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Service.ImportDefinitions(ctx, defs); err != nil {
		return err
	}
	report, err := a.Service.DeployGroup(ctx, group)
	if err != nil {
		return err
	}

	if err := exporter.Export(report, cmd.OutOrStdout()); err != nil {
		return err
	}
	if report.Failed > 0 || len(report.Rejected) > 0 {
		return errDeployFailures
	}
	return nil
}

func loadDefinitions(opts *options) (*domain.Definitions, error) {
	if opts.definitions == "" {
		cfg, err := loadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		opts.definitions = cfg.Definitions.Path
	}
	if opts.definitions == "" {
		return nil, errors.New("no definitions file: pass --definitions or set definitions.path")
	}
	return loader.LoadYAML(opts.definitions)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, _, err := config.LoadFromPath(path)
		return cfg, err
	}
	cfg, _, err := config.Load()
	return cfg, err
}

func planFor(defs *domain.Definitions, groupID string) (*deploy.Plan, *domain.DeviceGroup, error) {
	g, ok := defs.Group(groupID)
	if !ok {
		return nil, nil, fmt.Errorf("device group %s: %w", groupID, domain.ErrNotFound)
	}
	rules := defs.RulesForGroup(groupID)
	return deploy.BuildPlan(rules, domain.ListsReferencedBy(rules, defs.AddressLists)), g, nil
}

func writePlan(cmd *cobra.Command, format string, plan *deploy.Plan) error {
	out := cmd.OutOrStdout()
	if format != "text" {
		return encode(out, format, plan)
	}
	for _, c := range plan.Commands() {
		fmt.Fprintln(out, c)
	}
	for _, rej := range plan.Rejected {
		fmt.Fprintf(cmd.ErrOrStderr(), "rejected: %s\n", rej.Error())
	}
	return nil
}

func encode(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unsupported format %q (want text, json or yaml)", format)
}
