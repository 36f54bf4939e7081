package coremain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/pmkol/tlesync/constant"
	"github.com/pmkol/tlesync/pkg/timespec"
	"github.com/pmkol/tlesync/pkg/tle"
)

// withApp loads the config named by the --config flag, builds an App,
// runs fn and closes the App.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	p, _ := cmd.Flags().GetString("config")
	cfg, _, err := loadConfig(p)
	if err != nil {
		return err
	}
	a, err := NewApp(cfg)
	if err != nil {
		return err
	}
	err = fn(cmd.Context(), a)
	if cerr := a.Close(); cerr != nil {
		a.logger.Warn("failed to close app", zap.Error(cerr))
	}
	return err
}

func parseIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, s := range args {
		for _, f := range strings.Split(s, ",") {
			if len(f) == 0 {
				continue
			}
			id, err := strconv.Atoi(f)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid catalog id %q", f)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func printRecord(w io.Writer, r tle.Record) {
	fmt.Fprintln(w, strings.Repeat("-", tle.LineLength))
	fmt.Fprintln(w, r.Epoch().UTC().Format(time.DateTime))
	fmt.Fprintln(w, r.Line1)
	fmt.Fprintln(w, r.Line2)
}

func printRecords(w io.Writer, recs []tle.Record) {
	for _, r := range recs {
		printRecord(w, r)
	}
}

type windowFlags struct {
	start string
	end   string
}

func (f *windowFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "start of the time window (default: end minus window_days)")
	cmd.Flags().StringVar(&f.end, "end", "", "end of the time window (default: now)")
}

func (f *windowFlags) resolve(a *App) (time.Time, time.Time, error) {
	return timespec.Window(f.start, f.end, a.engine.WindowDays(), time.Now())
}

func newUpdateCmd() *cobra.Command {
	var (
		w        windowFlags
		all      bool
		existing bool
	)
	c := &cobra.Command{
		Use:   "update [ids...] [--start time] [--end time] [--all|--existing]",
		Short: "Download element sets and add the missing ones to storage.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if len(ids) == 0 && !all && !existing {
				return errors.New("no catalog ids given")
			}
			if len(ids) > 0 && (all || existing) {
				return errors.New("catalog ids cannot be combined with --all or --existing")
			}
			return withApp(cmd, func(ctx context.Context, a *App) error {
				start, end, err := w.resolve(a)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Downloading element sets for %s -- %s...\n", start.Format(time.DateTime), end.Format(time.DateTime))

				var recs []tle.Record
				switch {
				case all:
					recs, err = a.engine.UpdateAll(ctx, start, end)
				case existing:
					recs, err = a.engine.UpdateExisting(ctx, start, end)
				default:
					recs, err = a.engine.Update(ctx, ids, start, end)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nDownloaded element sets: %d\n", len(recs))
				printRecords(out, recs)
				return nil
			})
		},
		SilenceUsage: true,
	}
	w.bind(c)
	c.Flags().BoolVar(&all, "all", false, "update every object of the satellite catalog")
	c.Flags().BoolVar(&existing, "existing", false, "update every object already in storage")
	c.MarkFlagsMutuallyExclusive("all", "existing")
	return c
}

func newGetCmd() *cobra.Command {
	var (
		at         string
		windowDays int
	)
	c := &cobra.Command{
		Use:   "get id [--time time] [--window-days n]",
		Short: "Print the stored element set nearest to a time.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			t, err := timespec.Parse(at, time.Now())
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *App) error {
				days := windowDays
				if days <= 0 {
					days = a.engine.WindowDays()
				}
				r, err := a.engine.GetWithin(ctx, ids[0], t, days)
				if err != nil {
					return err
				}
				printRecord(cmd.OutOrStdout(), r)
				return nil
			})
		},
		SilenceUsage: true,
	}
	c.Flags().StringVar(&at, "time", "now", "time of interest")
	c.Flags().IntVar(&windowDays, "window-days", 0, "search window on either side of --time (default: window_days)")
	return c
}

func newRangeCmd() *cobra.Command {
	var w windowFlags
	c := &cobra.Command{
		Use:   "range id [--start time] [--end time]",
		Short: "Print the stored element sets within a time window.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *App) error {
				start, end, err := w.resolve(a)
				if err != nil {
					return err
				}
				recs, err := a.engine.GetRange(ctx, ids[0], start, end)
				if err != nil {
					return err
				}
				printRecords(cmd.OutOrStdout(), recs)
				return nil
			})
		},
		SilenceUsage: true,
	}
	w.bind(c)
	return c
}

func newRequestCmd() *cobra.Command {
	var (
		w        windowFlags
		download bool
	)
	c := &cobra.Command{
		Use:   "request ids... [--start time] [--end time] [--download]",
		Short: "Print the stored element sets of several objects as JSON.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *App) error {
				start, end, err := w.resolve(a)
				if err != nil {
					return err
				}
				res, err := a.engine.Lookup(ctx, ids, start, end, download)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
		SilenceUsage: true,
	}
	w.bind(c)
	c.Flags().BoolVar(&download, "download", false, "update objects without stored element sets first")
	return c
}

func newIDsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ids",
		Short: "List the catalog ids having stored element sets.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *App) error {
				ids, err := a.engine.IDs(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
		SilenceUsage: true,
	}
}

func newRemoveCmd() *cobra.Command {
	var at string
	c := &cobra.Command{
		Use:   "remove id --time epoch",
		Short: "Remove a stored element set.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			t, err := timespec.Parse(at, time.Now())
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *App) error {
				return a.engine.Remove(ctx, ids[0], t)
			})
		},
		SilenceUsage: true,
	}
	c.Flags().StringVar(&at, "time", "", "epoch of the element set")
	c.MarkFlagRequired("time")
	return c
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _ := cmd.Flags().GetString("config")
			cfg, _, err := loadConfig(p)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg.redacted()); err != nil {
				return err
			}
			return enc.Close()
		},
		SilenceUsage: true,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), constant.Version)
		},
	}
}
