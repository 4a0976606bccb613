package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	domainservices "conceptgraph/domain/services"
	"conceptgraph/infrastructure/config"
	"conceptgraph/infrastructure/di"
)

type options struct {
	dbDir       string
	scope       string
	metricsFile string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "conceptgraph",
		Short:        "Maintain concept-dependency graphs for study material",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dbDir, "db", "", "BadgerDB directory (defaults to BADGER_DIR)")
	root.PersistentFlags().StringVarP(&opts.scope, "scope", "s", "", "study-material scope")
	root.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file after the command")

	root.AddCommand(
		newImportCmd(opts),
		newOrderCmd(opts),
		newStagesCmd(opts),
		newTraverseCmd(opts),
		newHealthCmd(opts),
		newCyclesCmd(opts),
		newFixCyclesCmd(opts),
	)
	return root
}

// withContainer opens the local store for the duration of fn
func withContainer(opts *options, fn func(*di.Container) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if opts.dbDir != "" {
		cfg.BadgerDir = opts.dbDir
	}
	if cfg.BadgerDir == "" {
		return fmt.Errorf("no database directory: pass --db or set BADGER_DIR")
	}

	container, cleanup, err := di.InitializeLocalContainer(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	defer container.Logger.Sync()

	if err := fn(container); err != nil {
		return err
	}
	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, container.Metrics.Registry()); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func requireScope(opts *options) (valueobjects.ScopeID, error) {
	if opts.scope == "" {
		return "", fmt.Errorf("--scope is required")
	}
	return valueobjects.ScopeID(opts.scope), nil
}

func conceptIDs(args []string) []valueobjects.ConceptID {
	ids := make([]valueobjects.ConceptID, 0, len(args))
	for _, a := range args {
		ids = append(ids, valueobjects.ConceptID(a))
	}
	return ids
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newOrderCmd(opts *options) *cobra.Command {
	var bestEffort bool
	cmd := &cobra.Command{
		Use:   "order [concept...]",
		Short: "Print a learning order, prerequisites first",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := requireScope(opts)
			if err != nil {
				return err
			}
			return withContainer(opts, func(c *di.Container) error {
				plan, err := c.Service.LearningOrder(cmd.Context(), scope, conceptIDs(args), bestEffort)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), plan)
			})
		},
	}
	cmd.Flags().BoolVar(&bestEffort, "best-effort", false, "order around cycles instead of failing")
	return cmd
}

func newStagesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stages [concept...]",
		Short: "Group concepts into stages that can be studied in parallel",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := requireScope(opts)
			if err != nil {
				return err
			}
			return withContainer(opts, func(c *di.Container) error {
				stages, err := c.Service.LearningStages(cmd.Context(), scope, conceptIDs(args))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stages)
			})
		},
	}
}

func newTraverseCmd(opts *options) *cobra.Command {
	var (
		depth     int
		fanout    int
		timeout   time.Duration
		direction string
		types     []string
	)
	cmd := &cobra.Command{
		Use:   "traverse <seed> [seed...]",
		Short: "Collect related concepts around seed concepts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := requireScope(opts)
			if err != nil {
				return err
			}
			req := domainservices.TraversalRequest{
				Seeds:          conceptIDs(args),
				MaxDepth:       depth,
				Timeout:        timeout,
				PerLevelFanout: fanout,
				Direction:      domainservices.Direction(direction),
			}
			for _, t := range types {
				req.Types = append(req.Types, entities.RelationshipType(t))
			}
			return withContainer(opts, func(c *di.Container) error {
				result, err := c.Service.Traverse(cmd.Context(), scope, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum depth (0 uses the configured default)")
	cmd.Flags().IntVar(&fanout, "fanout", 0, "neighbours kept per level (0 uses the configured default)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "traversal deadline (0 uses the configured default)")
	cmd.Flags().StringVar(&direction, "direction", string(domainservices.DirectionOutgoing), "outgoing or both")
	cmd.Flags().StringSliceVar(&types, "type", nil, "relationship types to follow")
	return cmd
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report cycles, orphans and depth problems with a 0-100 score",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := requireScope(opts)
			if err != nil {
				return err
			}
			return withContainer(opts, func(c *di.Container) error {
				report, err := c.Service.Health(cmd.Context(), scope)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

func newCyclesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cycles",
		Short: "List prerequisite cycles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := requireScope(opts)
			if err != nil {
				return err
			}
			return withContainer(opts, func(c *di.Container) error {
				cycles, err := c.Service.DetectCycles(cmd.Context(), scope)
				if err != nil {
					return err
				}
				if cycles == nil {
					cycles = [][]valueobjects.ConceptID{}
				}
				return printJSON(cmd.OutOrStdout(), cycles)
			})
		},
	}
}

func newFixCyclesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-cycles",
		Short: "Deactivate the weakest edge of every prerequisite cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := requireScope(opts)
			if err != nil {
				return err
			}
			return withContainer(opts, func(c *di.Container) error {
				report, err := c.Service.FixCycles(cmd.Context(), scope)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}
