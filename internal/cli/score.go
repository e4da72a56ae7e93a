package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailsweep/internal/app"
	"github.com/lu-zhengda/mailsweep/internal/decide"
	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/junk"
)

func newScoreCmd() *cobra.Command {
	var (
		rec      domain.EmailRecord
		date     string
		decision bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a single message described by flags",
		Example: `  mailsweep score --from deals@mailchimp.com --subject "Limited time offer"
  mailsweep score --from boss@work.com --subject "Q3 plan" --starred --decide`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				t, err := parseDate(date)
				if err != nil {
					return err
				}
				rec.Date = t
			}

			if !decision {
				res := junk.NewScorer(nil).Score(rec)
				if jsonFlag {
					return printJSON(res)
				}
				printScore(res)
				return nil
			}

			ctx := cmd.Context()
			sess, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			cleaner := app.NewCleaner(sess.db, decide.New(nil, sess.log), nil, sess.log)
			in, err := cleaner.Snapshot(ctx, sess.cfg.Cleanup.MinConfidence, sess.cfg.Cleanup.RulesOverrideAllowList)
			if err != nil {
				return err
			}
			d := cleaner.Engine.Decide(rec, in)
			if jsonFlag {
				return printJSON(toJSONDecision(d))
			}
			fmt.Printf("%s  %s (confidence %s)\n", renderStatus(d.Status()), d.Reason, percent(d.Confidence))
			if len(d.MatchedRules) > 0 {
				fmt.Printf("Matched rules: %v\n", d.MatchedRules)
			}
			if d.Junk != nil {
				printScore(*d.Junk)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&rec.SenderEmail, "from", "", "sender address")
	f.StringVar(&rec.SenderName, "name", "", "sender display name")
	f.StringVar(&rec.Subject, "subject", "", "subject line")
	f.StringVar(&rec.Body, "body", "", "plain-text body")
	f.StringVar(&date, "date", "", "message date (RFC 3339 or YYYY-MM-DD)")
	f.BoolVar(&rec.HasAttachments, "attachments", false, "message has attachments")
	f.BoolVar(&rec.IsStarred, "starred", false, "message is starred")
	f.BoolVar(&rec.IsImportant, "important", false, "message is marked important")
	f.StringSliceVar(&rec.Labels, "label", nil, "user label names")
	f.BoolVar(&decision, "decide", false, "run the full decision with the stored lists and rules")
	return cmd
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (use RFC 3339 or YYYY-MM-DD)", s)
}

func printScore(res junk.Result) {
	fmt.Printf("Junk score: %s (%s)\n", percent(res.Score), res.Recommendation)
	if len(res.Factors) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  FACTOR\tIMPACT")
	for _, f := range res.Factors {
		fmt.Fprintf(w, "  %s\t%+.2f\n", f.Name, f.Impact)
	}
	w.Flush()
}
