package cli

import (
	"fmt"
	"time"

	"github.com/rustyeddy/cryptobot/journal"
	"github.com/spf13/cobra"
)

func newJournalCmd(ro *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read the sqlite order journal",
		Long: `Print journaled orders as Org-mode blocks, or a daily summary.

Examples:
  cryptobot journal order 01JH5Z...
  cryptobot journal today
  cryptobot journal day 2026-01-24
  cryptobot journal report 2026-01-24`,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the sqlite journal (default: journal.db_path from the config)")

	open := func() (*journal.SQLite, error) {
		if dbPath != "" {
			return journal.NewSQLite(dbPath)
		}
		cfg, err := ro.loadConfig()
		if err != nil {
			return nil, err
		}
		return openSQLite(cfg)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "order <id>",
			Short: "Show one order by client id, broker id or log name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				j, err := open()
				if err != nil {
					return err
				}
				defer j.Close()

				rec, err := j.GetOrder(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), journal.FormatOrderOrg(rec))
				return nil
			},
		},
		&cobra.Command{
			Use:   "today",
			Short: "List today's orders (UTC)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return printDay(cmd, open, time.Now())
			},
		},
		&cobra.Command{
			Use:   "day <YYYY-MM-DD>",
			Short: "List the orders of one day (UTC)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				day, err := parseDay(args[0])
				if err != nil {
					return err
				}
				return printDay(cmd, open, day)
			},
		},
		&cobra.Command{
			Use:   "report [YYYY-MM-DD]",
			Short: "Summarize a day's orders, fees and balance (default today)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				day := time.Now()
				if len(args) == 1 {
					var err error
					if day, err = parseDay(args[0]); err != nil {
						return err
					}
				}
				j, err := open()
				if err != nil {
					return err
				}
				defer j.Close()

				start, end := journal.DayBounds(day)
				orders, err := j.ListOrdersBetween(start, end)
				if err != nil {
					return err
				}
				cycles, err := j.ListCyclesBetween(start, end)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), journal.FormatReportOrg(journal.DailyReport(day, orders, cycles)))
				return nil
			},
		},
	)
	return cmd
}

func printDay(cmd *cobra.Command, open func() (*journal.SQLite, error), day time.Time) error {
	j, err := open()
	if err != nil {
		return err
	}
	defer j.Close()

	start, end := journal.DayBounds(day)
	recs, err := j.ListOrdersBetween(start, end)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no orders on %s\n", start.Format("2006-01-02"))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatOrdersOrg(recs))
	return nil
}

func parseDay(s string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q (want YYYY-MM-DD): %w", s, err)
	}
	return day, nil
}
