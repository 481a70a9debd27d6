package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/cidian/pkg/types"
)

// dateLayout is the --date format for test record.
const dateLayout = "2006-01-02"

func (a *app) newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Pick notes to study and record results",
	}
	cmd.AddCommand(a.newTestSelectCmd())
	cmd.AddCommand(a.newTestRecordCmd())
	cmd.AddCommand(a.newTestHistoryCmd())
	return cmd
}

func (a *app) newTestSelectCmd() *cobra.Command {
	var (
		count int
		mode  string
	)
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Choose notes for a test",
		Long: `Select picks up to --count notes using one of four policies:

  most-recent  newest notes first
  random       uniformly at random
  most-wrong   weighted towards notes answered wrongly
  auto         blends most-wrong with recency

Example:
  cidian test select --count 20
  cidian test select --count 10 --mode most-wrong --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := types.ParseSelectionMode(mode)
			if err != nil {
				return err
			}

			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			notes, err := store.Selector().SelectForTest(cmd.Context(), count, m)
			if err != nil {
				return fmt.Errorf("select notes: %w", err)
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), notes)
			}
			printNotes(cmd.OutOrStdout(), notes)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 10, "number of notes to select")
	cmd.Flags().StringVar(&mode, "mode", string(types.SelectAuto), "selection mode: most-recent, random, most-wrong or auto")
	return cmd
}

func (a *app) newTestRecordCmd() *cobra.Command {
	var (
		right []string
		wrong []string
		date  string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the results of a test",
		Long: `Record adds one test session to each note's history. Results on the same
calendar day are added together. An id may appear more than once.

Example:
  cidian test record --right 3,7,9 --wrong 4
  cidian test record --wrong 4 --wrong 4 --date 2024-03-10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rightIDs, err := parseIDs(right)
			if err != nil {
				return err
			}
			wrongIDs, err := parseIDs(wrong)
			if err != nil {
				return err
			}
			if len(rightIDs)+len(wrongIDs) == 0 {
				return fmt.Errorf("%w: pass --right or --wrong", errUsage)
			}

			submittedAt := time.Now()
			if date != "" {
				submittedAt, err = time.ParseInLocation(dateLayout, date, time.Local)
				if err != nil {
					return fmt.Errorf("%w: --date must be YYYY-MM-DD", types.ErrInvalidInput)
				}
			}

			ids := make([]int64, 0, len(rightIDs)+len(wrongIDs))
			correct := make([]bool, 0, cap(ids))
			for _, id := range rightIDs {
				ids = append(ids, id)
				correct = append(correct, true)
			}
			for _, id := range wrongIDs {
				ids = append(ids, id)
				correct = append(correct, false)
			}

			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			if err := store.Ledger().RecordResults(cmd.Context(), ids, correct, submittedAt); err != nil {
				return fmt.Errorf("record results: %w", err)
			}
			if !a.flags.jsonMode {
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d right, %d wrong\n", len(rightIDs), len(wrongIDs))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&right, "right", nil, "ids answered correctly")
	cmd.Flags().StringSliceVar(&wrong, "wrong", nil, "ids answered wrongly")
	cmd.Flags().StringVar(&date, "date", "", "day of the test, YYYY-MM-DD (default: today)")
	return cmd
}

func (a *app) newTestHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the test history of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			store, err := a.attachBackend()
			if err != nil {
				return err
			}
			defer store.Detach()

			history, err := store.Ledger().History(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return printJSON(cmd.OutOrStdout(), history)
			}

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DAY\tRIGHT\tWRONG")
			for _, e := range history {
				day := time.UnixMilli(e.Day).In(time.Local).Format(dateLayout)
				fmt.Fprintf(tw, "%s\t%d\t%d\n", day, e.Correct, e.Incorrect)
			}
			tw.Flush()
			fmt.Fprintf(out, "Total: %d\n", len(history))
			return nil
		},
	}
}
