package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailsweep/internal/store"
)

func newStatsCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cleanup statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer sess.Close()

			if reset {
				if err := sess.db.ResetStats(ctx, sess.accountID); err != nil {
					return err
				}
				if jsonFlag {
					return printJSON(jsonAction{OK: true, Action: "reset", AccountID: sess.accountID})
				}
				fmt.Println("Statistics reset.")
				return nil
			}

			st, err := sess.db.GetStats(ctx, sess.accountID)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(jsonStats{
					AccountID:    sess.accountID,
					Processed:    st.Processed,
					Unsubscribed: st.Unsubscribed,
					Deleted:      st.Deleted,
				})
			}
			fmt.Println(titleStyle.Render("Statistics for " + sess.accountID))
			fmt.Printf("  Processed:     %d\n", st.Processed)
			fmt.Printf("  Unsubscribed:  %d\n", st.Unsubscribed)
			fmt.Printf("  Deleted:       %d\n", st.Deleted)
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "reset the counters to zero")
	cmd.AddCommand(newStatsSendersCmd())
	return cmd
}

func newStatsSendersCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "senders",
		Short: "Rank senders of cached mail by volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer sess.Close()

			senders, err := sess.db.TopSenders(ctx, sess.accountID, top)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(toJSONSenders(senders))
			}
			if len(senders) == 0 {
				fmt.Println("No sender data yet. Run 'mailsweep sync' first.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COUNT\tSENDER\tNAME\tFIRST SEEN")
			for _, s := range senders {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Count, s.Email, truncate(s.Name, 30), s.FirstSeen.Format(time.DateOnly))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&top, "top", 20, "number of senders to show")
	return cmd
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect the activity log (kinds: unsubscribed, deleted, failed)",
	}
	cmd.AddCommand(newLogListCmd())
	cmd.AddCommand(newLogExportCmd())
	cmd.AddCommand(newLogClearCmd())
	return cmd
}

func newLogListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list KIND",
		Short: "Show activity log entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := store.ParseActivityKind(args[0])
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.ListActivity(cmd.Context(), kind, limit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(toJSONActivity(entries))
			}
			if len(entries) == 0 {
				fmt.Printf("No %s entries.\n", kind)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tSENDER\tSUBJECT\tREASON")
			for _, a := range entries {
				sender := a.SenderName
				if sender == "" {
					sender = a.SenderEmail
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					a.Timestamp.Local().Format(time.DateTime),
					truncate(sender, 28), truncate(a.Subject, 40), truncate(a.Reason, 50))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "max entries (newest kept)")
	return cmd
}

func newLogExportCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export KIND",
		Short: "Export activity log entries as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := store.ParseActivityKind(args[0])
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.ListActivity(cmd.Context(), kind, 0)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no entries to export in %s log", kind)
			}

			if file == "" {
				file = fmt.Sprintf("mailsweep-%s-log-%s.csv", kind, time.Now().UTC().Format(time.DateOnly))
			}
			var out io.Writer = os.Stdout
			if file != "-" {
				f, err := os.Create(file)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", file, err)
				}
				defer f.Close()
				out = f
			}
			if err := writeActivityCSV(out, entries); err != nil {
				return err
			}
			if file != "-" {
				fmt.Fprintf(os.Stderr, "Exported %d entries to %s\n", len(entries), file)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `output file ("-" for stdout)`)
	return cmd
}

func newLogClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear KIND",
		Short: "Delete all activity log entries of one kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := store.ParseActivityKind(args[0])
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.ClearActivity(cmd.Context(), kind); err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "clear"})
			}
			fmt.Printf("Cleared the %s log.\n", kind)
			return nil
		},
	}
}

const csvTimestamp = "2006-01-02T15:04:05.000Z07:00"

// writeActivityCSV writes the header row followed by one row per entry with
// every cell quoted.
func writeActivityCSV(w io.Writer, entries []store.Activity) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("Timestamp,Sender Email,Sender Name,Subject,Reason")
	for _, a := range entries {
		cells := []string{
			a.Timestamp.UTC().Format(csvTimestamp),
			a.SenderEmail,
			a.SenderName,
			a.Subject,
			a.Reason,
		}
		bw.WriteByte('\n')
		for i, c := range cells {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(`"` + strings.ReplaceAll(c, `"`, `""`) + `"`)
		}
	}
	bw.WriteByte('\n')
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}
