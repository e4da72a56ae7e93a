package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailsweep/internal/gmailctl"
	"github.com/lu-zhengda/mailsweep/internal/rules"
	"github.com/lu-zhengda/mailsweep/internal/store"
	"github.com/lu-zhengda/mailsweep/internal/store/sqlite"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage filter rules",
		Long: "Filter rules map conditions on a message to actions. Enabled rules run by\n" +
			"descending priority and every matching rule contributes its actions.",
	}
	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesAddCmd())
	cmd.AddCommand(newRulesRemoveCmd())
	cmd.AddCommand(newRulesToggleCmd(true))
	cmd.AddCommand(newRulesToggleCmd(false))
	cmd.AddCommand(newRulesExportCmd())
	cmd.AddCommand(newRulesImportCmd())
	cmd.AddCommand(newRulesImportGmailctlCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List filter rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			rs, err := db.ListRules(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(toJSONRules(rs))
			}
			if len(rs) == 0 {
				fmt.Println("No rules. Add one with 'mailsweep rules add'.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tENABLED\tPRIORITY\tCONDITIONS\tACTIONS")
			for _, r := range rs {
				conds := make([]string, len(r.Conditions))
				for i, c := range r.Conditions {
					conds[i] = c.String()
				}
				enabled := okStyle.Render("yes")
				if !r.Enabled {
					enabled = mutedStyle.Render("no")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					shortID(r.ID), truncate(r.Name, 30), enabled, r.Priority,
					strings.Join(conds, " AND "), strings.Join(r.Actions.Names(), ","))
			}
			return w.Flush()
		},
	}
}

func newRulesAddCmd() *cobra.Command {
	var (
		name       string
		priority   int
		stop       bool
		disabled   bool
		conditions []string
		actions    []string
		label      string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a filter rule",
		Example: `  mailsweep rules add --name "Old promos" --when "daysOld greaterThan 30" \
    --when "senderEmail contains promo" --action delete
  mailsweep rules add --when "subject contains invoice" --action archive,markAsRead --label Bills`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := rules.NewRule(uuid.NewString())
			if name != "" {
				r.Name = name
			}
			r.Priority = priority
			r.StopOnMatch = stop
			r.Enabled = !disabled
			for _, s := range conditions {
				c, err := rules.ParseCondition(s)
				if err != nil {
					return err
				}
				r.Conditions = append(r.Conditions, c)
			}
			set, err := parseActions(actions)
			if err != nil {
				return err
			}
			set.AddLabel = strings.TrimSpace(label)
			r.Actions = set
			if err := rules.Validate(r); err != nil {
				return err
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.SaveRule(cmd.Context(), &r); err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(toJSONRule(r))
			}
			fmt.Printf("Rule added: %s (%s)\n", r.Name, r.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().IntVar(&priority, "priority", 0, "higher priorities run first")
	cmd.Flags().BoolVar(&stop, "stop", false, "stop evaluating further rules when this one matches")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "create the rule disabled")
	cmd.Flags().StringArrayVar(&conditions, "when", nil, `condition "field operator value" (repeatable, all must match)`)
	cmd.Flags().StringSliceVar(&actions, "action", nil, "actions: unsubscribe, delete, archive, markAsRead, markAsUnread, star")
	cmd.Flags().StringVar(&label, "label", "", "label to add to matching messages")
	return cmd
}

// parseActions maps action names to an ActionSet.
func parseActions(names []string) (rules.ActionSet, error) {
	var a rules.ActionSet
	for _, n := range names {
		switch strings.TrimSpace(n) {
		case "unsubscribe":
			a.Unsubscribe = true
		case "delete":
			a.Delete = true
		case "archive":
			a.Archive = true
		case "markAsRead", "read":
			a.MarkAsRead = true
		case "markAsUnread", "unread":
			a.MarkAsUnread = true
		case "star":
			a.Star = true
		case "":
		default:
			return a, fmt.Errorf("unknown action %q", n)
		}
	}
	return a, nil
}

func newRulesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a filter rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			r, err := findRule(cmd, db, args[0])
			if err != nil {
				return err
			}
			if err := db.DeleteRule(cmd.Context(), r.ID); err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: "remove", RuleID: r.ID})
			}
			fmt.Printf("Rule removed: %s\n", r.Name)
			return nil
		},
	}
}

func newRulesToggleCmd(enable bool) *cobra.Command {
	use, short := "disable ID", "Disable a filter rule"
	if enable {
		use, short = "enable ID", "Enable a filter rule"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			r, err := findRule(cmd, db, args[0])
			if err != nil {
				return err
			}
			r.Enabled = enable
			if err := db.SaveRule(cmd.Context(), r); err != nil {
				return err
			}
			action := strings.Fields(use)[0]
			if jsonFlag {
				return printJSON(jsonAction{OK: true, Action: action, RuleID: r.ID})
			}
			fmt.Printf("Rule %sd: %s\n", action, r.Name)
			return nil
		},
	}
}

// findRule resolves a full rule ID or a unique ID prefix.
func findRule(cmd *cobra.Command, db *sqlite.DB, id string) (*rules.FilterRule, error) {
	r, err := db.GetRule(cmd.Context(), id)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	all, err := db.ListRules(cmd.Context())
	if err != nil {
		return nil, err
	}
	var found *rules.FilterRule
	for i := range all {
		if strings.HasPrefix(all[i].ID, id) {
			if found != nil {
				return nil, fmt.Errorf("rule id %q is ambiguous", id)
			}
			found = &all[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("rule not found: %s", id)
	}
	return found, nil
}

func newRulesExportCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export filter rules as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			rs, err := db.ListRules(cmd.Context())
			if err != nil {
				return err
			}
			if rs == nil {
				rs = []rules.FilterRule{}
			}
			if file == "" || file == "-" {
				return printJSON(rs)
			}
			f, err := os.Create(file)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", file, err)
			}
			defer f.Close()
			if err := fprintJSON(f, rs); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported %d rules to %s\n", len(rs), file)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "output file (default stdout)")
	return cmd
}

// decodeRules accepts either a JSON array of rules or a settings document
// carrying a filterRules array.
func decodeRules(r io.Reader) ([]rules.FilterRule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	var rs []rules.FilterRule
	if err := json.Unmarshal(data, &rs); err == nil {
		return rs, nil
	}
	var doc struct {
		FilterRules []rules.FilterRule `json:"filterRules"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return doc.FilterRules, nil
}

func newRulesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import filter rules from a JSON file",
		Long:  "Import rules from a JSON array or a settings export. Rules with an existing ID are replaced.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			rs, err := decodeRules(f)
			if err != nil {
				return err
			}

			var errs []error
			for i := range rs {
				if rs[i].ID == "" {
					rs[i].ID = uuid.NewString()
				}
				if err := rules.Validate(rs[i]); err != nil {
					errs = append(errs, fmt.Errorf("rule %q: %w", rs[i].Name, err))
				}
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			for i := range rs {
				if err := db.SaveRule(cmd.Context(), &rs[i]); err != nil {
					return err
				}
			}
			if jsonFlag {
				return printJSON(jsonImport{OK: true, Imported: len(rs)})
			}
			fmt.Printf("Imported %d rules.\n", len(rs))
			return nil
		},
	}
}

func newRulesImportGmailctlCmd() *cobra.Command {
	var (
		file      string
		binary    string
		configDir string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "import-gmailctl",
		Short: "Convert gmailctl filters into rules",
		Long: "Convert Gmail filters compiled by gmailctl into rules. Without --file the\n" +
			"gmailctl binary is run to export them. Filters on to: or raw queries are skipped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				export gmailctl.Export
				err    error
			)
			if file != "" {
				f, openErr := os.Open(file)
				if openErr != nil {
					return fmt.Errorf("failed to open %s: %w", file, openErr)
				}
				export, err = gmailctl.Decode(f)
				f.Close()
			} else {
				export, err = gmailctl.Runner{Binary: binary, ConfigDir: configDir}.ExportFilters(cmd.Context())
			}
			if err != nil {
				return err
			}

			converted, skipped := gmailctl.ToFilterRules(export)
			if !dryRun {
				db, err := openDB()
				if err != nil {
					return err
				}
				defer db.Close()
				for i := range converted {
					if err := db.SaveRule(cmd.Context(), &converted[i]); err != nil {
						return err
					}
				}
			}

			if jsonFlag {
				out := jsonImport{OK: true, Imported: len(converted), DryRun: dryRun, Rules: toJSONRules(converted)}
				for _, s := range skipped {
					out.Skipped = append(out.Skipped, jsonSkipped{Name: s.Filter.Name, Reason: s.Reason})
				}
				return printJSON(out)
			}

			verb := "Imported"
			if dryRun {
				verb = "Would import"
			}
			fmt.Printf("%s %d rules from gmailctl.\n", verb, len(converted))
			for _, r := range converted {
				fmt.Printf("  %s  %s\n", okStyle.Render("+"), r.Name)
			}
			for _, s := range skipped {
				name := s.Filter.Name
				if name == "" {
					name = s.Filter.ID
				}
				fmt.Printf("  %s  %s: %s\n", warnStyle.Render("-"), name, s.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read a gmailctl JSON export instead of running gmailctl")
	cmd.Flags().StringVar(&binary, "gmailctl", "gmailctl", "gmailctl binary")
	cmd.Flags().StringVar(&configDir, "gmailctl-config", "", "gmailctl config directory")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the conversion without saving")
	return cmd
}
