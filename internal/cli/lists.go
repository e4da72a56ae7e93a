package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailsweep/internal/lists"
)

const (
	listAllow = lists.Allow
	listDeny  = lists.Deny
)

// newListCmd builds the "allow" or "deny" command tree.
func newListCmd(kind lists.Kind) *cobra.Command {
	short := "Manage the allow list (senders that are never deleted)"
	if kind == lists.Deny {
		short = "Manage the deny list (senders that are always deleted)"
	}
	cmd := &cobra.Command{
		Use:   string(kind),
		Short: short,
		Long: short + ".\n\nA pattern is an exact address, a domain (\"example.com\", \"@example.com\", \"*@example.com\"),\n" +
			"or a substring of the sender address or display name. Matching ignores case.",
	}
	cmd.AddCommand(newListShowCmd(kind))
	cmd.AddCommand(newListAddCmd(kind))
	cmd.AddCommand(newListRemoveCmd(kind))
	return cmd
}

func newListShowCmd(kind lists.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("Show %s list patterns", kind),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			patterns, err := db.ListEntries(cmd.Context(), kind)
			if err != nil {
				return err
			}
			if jsonFlag {
				if patterns == nil {
					patterns = []string{}
				}
				return printJSON(patterns)
			}
			if len(patterns) == 0 {
				fmt.Printf("The %s list is empty.\n", kind)
				return nil
			}
			for _, p := range patterns {
				fmt.Println(p)
			}
			return nil
		},
	}
}

func newListAddCmd(kind lists.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "add PATTERN...",
		Short: fmt.Sprintf("Add patterns to the %s list", kind),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var added []string
			for _, p := range args {
				ok, err := db.AddListEntry(cmd.Context(), kind, p)
				if err != nil {
					return err
				}
				if !ok {
					if !jsonFlag {
						fmt.Printf("%s is already on the %s list.\n", p, kind)
					}
					continue
				}
				added = append(added, p)
				if !jsonFlag {
					fmt.Printf("Added %s to the %s list.\n", p, kind)
				}
			}
			if jsonFlag {
				return printJSON(jsonListChange{OK: true, List: string(kind), Action: "add", Patterns: added})
			}
			return nil
		},
	}
}

func newListRemoveCmd(kind lists.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "remove PATTERN...",
		Short: fmt.Sprintf("Remove patterns from the %s list", kind),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			var removed []string
			for _, p := range args {
				ok, err := db.RemoveListEntry(cmd.Context(), kind, p)
				if err != nil {
					return err
				}
				if !ok {
					if !jsonFlag {
						fmt.Printf("%s is not on the %s list.\n", p, kind)
					}
					continue
				}
				removed = append(removed, p)
				if !jsonFlag {
					fmt.Printf("Removed %s from the %s list.\n", p, kind)
				}
			}
			if jsonFlag {
				return printJSON(jsonListChange{OK: true, List: string(kind), Action: "remove", Patterns: removed})
			}
			return nil
		},
	}
}
