package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailsweep/internal/app"
	"github.com/lu-zhengda/mailsweep/internal/decide"
	"github.com/lu-zhengda/mailsweep/internal/domain"
	"github.com/lu-zhengda/mailsweep/internal/provider/mbox"
	"github.com/lu-zhengda/mailsweep/internal/rate"
	"github.com/lu-zhengda/mailsweep/internal/store"
	"github.com/lu-zhengda/mailsweep/internal/unsubscribe"
)

func newClassifyCmd() *cobra.Command {
	var (
		label         string
		limit         int
		query         string
		mboxFile      string
		minConfidence float64
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Preview decisions for cached messages or an mbox file",
		Long: "Classify messages without changing anything. Messages come from the local\n" +
			"cache (run 'mailsweep sync' first), a full-text --query, or an --mbox export.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, mboxFile == "")
			if err != nil {
				return err
			}
			defer sess.Close()

			if limit <= 0 {
				limit = sess.cfg.Cleanup.MaxEmails
			}
			opts := cleanOptions(sess, cmd, minConfidence)

			var (
				emails     []domain.Email
				userLabels map[string]string
			)
			switch {
			case mboxFile != "":
				emails, err = mbox.NewReader(sess.log).ReadFile(mboxFile, limit)
				if err != nil {
					return err
				}
				userLabels = mbox.UserLabels(emails)
			default:
				if query != "" {
					emails, err = sess.db.SearchEmails(ctx, query, sess.accountID)
				} else {
					emails, err = sess.db.ListEmails(ctx, store.ListEmailOptions{
						AccountID: sess.accountID,
						LabelID:   label,
						Limit:     limit,
					})
				}
				if err != nil {
					return fmt.Errorf("failed to load emails: %w", err)
				}
				if len(emails) > limit {
					emails = emails[:limit]
				}
				labels, err := sess.db.ListLabels(ctx, sess.accountID)
				if err != nil {
					return fmt.Errorf("failed to load labels: %w", err)
				}
				userLabels = domain.UserLabelNames(labels)
			}

			cleaner := app.NewCleaner(sess.db, decide.New(nil, sess.log), nil, sess.log)
			items, err := cleaner.Classify(ctx, emails, userLabels, opts)
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(toJSONItems(items))
			}
			if len(items) == 0 {
				fmt.Println("No messages found.")
				return nil
			}
			return printItems(items, false)
		},
	}

	cmd.Flags().StringVar(&label, "label", "INBOX", "label to classify")
	cmd.Flags().IntVar(&limit, "limit", 0, "max messages (default cleanup.max_emails)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "classify full-text search results instead of a label")
	cmd.Flags().StringVar(&mboxFile, "mbox", "", "classify messages from an mbox file (e.g. a Google Takeout export)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "junk score needed to delete (default cleanup.min_confidence)")
	cmd.Flags().Bool("auto-unsubscribe", false, "plan unsubscribes for every message that supports it")
	cmd.Flags().Bool("auto-delete", false, "plan deletes from list and score decisions, not just rules")
	return cmd
}

func newCleanCmd() *cobra.Command {
	var (
		label         string
		limit         int
		apply         bool
		minConfidence float64
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Classify cached messages and apply the resulting actions",
		Long: "Classify cached messages and apply deletes, archives, labels and unsubscribes.\n" +
			"Nothing changes unless --apply is given or cleanup.preview_mode is false.\n" +
			"Deletes from the deny list or junk score also need --auto-delete.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer sess.Close()

			opts := cleanOptions(sess, cmd, minConfidence)
			opts.LabelID = label
			opts.Limit = limit
			if opts.Limit <= 0 {
				opts.Limit = sess.cfg.Cleanup.MaxEmails
			}
			opts.Apply = apply || !sess.cfg.Cleanup.PreviewMode

			var executor *app.Executor
			if opts.Apply {
				var stop func()
				executor, stop, err = newExecutor(cmd, sess)
				if err != nil {
					return err
				}
				defer stop()
			}

			cleaner := app.NewCleaner(sess.db, decide.New(nil, sess.log), executor, sess.log)
			report, err := cleaner.Run(ctx, opts)
			if report == nil {
				return err
			}

			if jsonFlag {
				if jerr := printJSON(toJSONReport(report)); jerr != nil {
					return jerr
				}
				return err
			}
			if len(report.Items) == 0 {
				fmt.Println("No messages found.")
				return err
			}
			if perr := printItems(report.Items, !report.Preview); perr != nil {
				return perr
			}
			fmt.Println()
			if report.Preview {
				fmt.Println(titleStyle.Render("Preview only.") + " Re-run with --apply to make these changes.")
			}
			fmt.Printf("Processed %d, unsubscribed %d, deleted %d, failed %d.\n",
				report.Processed, report.Unsubscribed, report.Deleted, report.Failed)
			return err
		},
	}

	cmd.Flags().StringVar(&label, "label", "INBOX", "label to clean")
	cmd.Flags().IntVar(&limit, "limit", 0, "max messages (default cleanup.max_emails)")
	cmd.Flags().BoolVar(&apply, "apply", false, "execute the actions instead of previewing them")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "junk score needed to delete (default cleanup.min_confidence)")
	cmd.Flags().Bool("auto-unsubscribe", false, "unsubscribe from every message that supports it (default cleanup.auto_unsubscribe)")
	cmd.Flags().Bool("auto-delete", false, "delete on list and score decisions, not just rules (default cleanup.auto_delete)")
	return cmd
}

func newPurgeUnreadCmd() *cobra.Command {
	var (
		limit          int
		apply          bool
		checkAllowList bool
	)

	cmd := &cobra.Command{
		Use:   "purge-unread",
		Short: "Delete every cached unread message",
		Long: "Move every cached unread message to the trash. With --check-allowlist,\n" +
			"messages from allow-listed senders are marked read instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			defer sess.Close()

			opts := app.PurgeOptions{
				AccountID:        sess.accountID,
				Limit:            limit,
				Apply:            apply,
				RespectAllowList: checkAllowList,
			}
			var executor *app.Executor
			if apply {
				var stop func()
				executor, stop, err = newExecutor(cmd, sess)
				if err != nil {
					return err
				}
				defer stop()
			}

			cleaner := app.NewCleaner(sess.db, decide.New(nil, sess.log), executor, sess.log)
			report, err := cleaner.PurgeUnread(ctx, opts)
			if report == nil {
				return err
			}
			if jsonFlag {
				if jerr := printJSON(jsonPurge{
					Preview:    report.Preview,
					Candidates: len(report.Candidates),
					Deleted:    report.Deleted,
					MarkedRead: report.MarkedRead,
					Failed:     report.Failed,
				}); jerr != nil {
					return jerr
				}
				return err
			}
			if report.Preview {
				fmt.Printf("%d unread messages would be deleted. Re-run with --apply to delete them.\n", len(report.Candidates))
				return err
			}
			fmt.Printf("Deleted %d, marked read %d, failed %d.\n", report.Deleted, report.MarkedRead, report.Failed)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 500, "max messages")
	cmd.Flags().BoolVar(&apply, "apply", false, "delete instead of previewing")
	cmd.Flags().BoolVar(&checkAllowList, "check-allowlist", true, "mark allow-listed messages read instead of deleting them")
	return cmd
}

// cleanOptions merges the [cleanup] config with flags that were set explicitly.
func cleanOptions(sess *session, cmd *cobra.Command, minConfidence float64) app.CleanOptions {
	c := sess.cfg.Cleanup
	opts := app.CleanOptions{
		AccountID:              sess.accountID,
		AutoUnsubscribe:        c.AutoUnsubscribe,
		AutoDelete:             c.AutoDelete,
		MinConfidence:          c.MinConfidence,
		RulesOverrideAllowList: c.RulesOverrideAllowList,
		Workers:                c.Workers,
	}
	if minConfidence > 0 {
		opts.MinConfidence = minConfidence
	}
	if cmd.Flags().Changed("auto-unsubscribe") {
		opts.AutoUnsubscribe, _ = cmd.Flags().GetBool("auto-unsubscribe")
	}
	if cmd.Flags().Changed("auto-delete") {
		opts.AutoDelete, _ = cmd.Flags().GetBool("auto-delete")
	}
	return opts
}

// newExecutor wires the Gmail provider, unsubscribe client and rate limiter.
// The returned func stops the limiter.
func newExecutor(cmd *cobra.Command, sess *session) (*app.Executor, func(), error) {
	p, err := sess.gmailProvider()
	if err != nil {
		return nil, nil, err
	}
	from := domain.Address{Email: sess.accountID}
	if acct, err := sess.db.GetAccount(cmd.Context(), sess.accountID); err == nil {
		from = domain.Address{Name: acct.DisplayName, Email: acct.Email}
	}
	unsub := unsubscribe.NewClient(p, from, sess.log)
	limiter, stop := rate.New(sess.cfg.Cleanup.Delay())
	return app.NewExecutor(p, sess.db, unsub, limiter, sess.accountID, sess.log), stop, nil
}

// printItems renders classified messages as a table. When applied is set
// the outcome column shows what happened instead of what would happen.
func printItems(items []app.Item, applied bool) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	last := "ACTIONS"
	if applied {
		last = "RESULT"
	}
	fmt.Fprintf(w, "STATUS\tCONF\tFROM\tSUBJECT\tREASON\t%s\n", last)
	for _, it := range items {
		from := it.Email.From.Name
		if from == "" {
			from = it.Email.From.Email
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			renderStatus(it.Decision.Status()),
			percent(it.Decision.Confidence),
			truncate(from, 28),
			truncate(it.Email.Subject, 48),
			it.Decision.Reason,
			itemResult(it, applied),
		)
	}
	return w.Flush()
}

func itemResult(it app.Item, applied bool) string {
	if !applied || it.Plan.IsZero() {
		actions := it.Plan.Actions()
		if len(actions) == 0 {
			return mutedStyle.Render("-")
		}
		return strings.Join(actions, ",")
	}
	if it.Err != nil {
		return errStyle.Render("failed: " + truncate(it.Err.Error(), 40))
	}
	return okStyle.Render("done")
}
