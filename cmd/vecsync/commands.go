package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsync"
	"github.com/hupe1980/vecsync/config"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withEngine loads the configuration, opens the engine and closes it after fn.
func withEngine(cmd *cobra.Command, fn func(e *vecsync.Engine) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); err == nil {
			err = cerr
		}
	}()
	if e.Degraded() {
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING: running without backing file: %v\n", e.DegradedReason())
	}
	return fn(e)
}

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultFile
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Write(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var putIndices string

var putCmd = &cobra.Command{
	Use:   "put VALUES...",
	Short: "Store a vector, or values at explicit slots with --at",
	Example: `  vecsync put 0.1,0.2,0.3
  vecsync put --at 4,5 1.5 2.5`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseFloats(args)
		if err != nil {
			return err
		}
		return withEngine(cmd, func(e *vecsync.Engine) error {
			if putIndices != "" {
				indices, err := parseInts([]string{putIndices})
				if err != nil {
					return err
				}
				written, err := e.StoreAt(cmd.Context(), indices, values)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), written)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote slots %v\n", written)
				return nil
			}
			idx, err := e.Store(cmd.Context(), values)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]int{"index": idx})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored at %d\n", idx)
			return nil
		})
	},
}

var getRow bool

var getCmd = &cobra.Command{
	Use:   "get INDICES...",
	Short: "Read slots, or whole rows with --row",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		indices, err := parseInts(args)
		if err != nil {
			return err
		}
		return withEngine(cmd, func(e *vecsync.Engine) error {
			var values any
			if getRow {
				rows := make([][]float64, 0, len(indices))
				for _, start := range indices {
					row, err := e.ReadVector(start)
					if err != nil {
						return err
					}
					rows = append(rows, row)
				}
				values = rows
			} else {
				v, err := e.Read(indices)
				if err != nil {
					return err
				}
				values = v
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), values)
			}
			fmt.Fprintln(cmd.OutOrStdout(), values)
			return nil
		})
	},
}

var searchK int

var searchCmd = &cobra.Command{
	Use:   "search QUERY...",
	Short: "Find the stored vectors most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := parseFloats(args)
		if err != nil {
			return err
		}
		return withEngine(cmd, func(e *vecsync.Engine) error {
			results, err := e.Search(cmd.Context(), query, searchK)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), results)
			}
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%.6f\n", r.Index, r.Score)
			}
			return nil
		})
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload the local store to the remote object",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *vecsync.Engine) error {
			if err := e.SyncPush(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pushed %s\n", e.Syncer().ObjectName())
			return nil
		})
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the local store with the remote object",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *vecsync.Engine) error {
			if err := e.SyncPull(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pulled %s\n", e.Syncer().ObjectName())
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and sync state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(e *vecsync.Engine) error {
			st := e.Stats()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), st)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Capacity:   %d slots (%d rows of %d)\n", st.Capacity, st.Rows, st.Dimension)
			fmt.Fprintf(w, "Occupied:   %d rows\n", st.OccupiedRows)
			fmt.Fprintf(w, "Degraded:   %t\n", st.Degraded)
			fmt.Fprintf(w, "Sync state: %s\n", st.SyncState)
			if st.NeedsPull {
				fmt.Fprintln(w, "Needs pull: restored from .bak")
			}
			return nil
		})
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	putCmd.Flags().StringVar(&putIndices, "at", "", "comma-separated slot indices to write")
	getCmd.Flags().BoolVar(&getRow, "row", false, "read whole rows starting at the given slots")
	searchCmd.Flags().IntVarP(&searchK, "top", "k", 5, "number of results")
}
