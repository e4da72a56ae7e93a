package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailsweep/internal/config"
	"github.com/lu-zhengda/mailsweep/internal/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Export or import lists, rules and cleanup settings",
	}
	cmd.AddCommand(newSettingsExportCmd())
	cmd.AddCommand(newSettingsImportCmd())
	return cmd
}

func newSettingsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write settings, lists and rules to a JSON file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			doc, err := settings.Export(ctx, sess.db, sess.cfg.Cleanup, time.Now())
			if err != nil {
				return err
			}
			if len(args) == 0 || args[0] == "-" {
				return settings.Encode(os.Stdout, doc)
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			defer f.Close()
			if err := settings.Encode(f, doc); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Settings exported to %s\n", args[0])
			return nil
		},
	}
}

func newSettingsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace settings, lists and rules from a JSON file",
		Long: "Replace the cleanup settings and both sender lists with the file's contents.\n" +
			"Rules are replaced only when the file contains filterRules.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			doc, err := settings.Decode(f)
			if err != nil {
				return err
			}

			sess, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := settings.Import(ctx, sess.db, doc)
			if err != nil {
				return err
			}
			doc.Settings.ApplyTo(&sess.cfg.Cleanup)
			if err := config.Save(configPath(), sess.cfg); err != nil {
				return err
			}

			if jsonFlag {
				return printJSON(jsonSettingsImport{
					OK:            true,
					Whitelist:     res.Whitelist,
					Blacklist:     res.Blacklist,
					Rules:         res.Rules,
					RulesReplaced: res.RulesReplaced,
				})
			}
			fmt.Printf("Imported %d allow and %d deny patterns.\n", res.Whitelist, res.Blacklist)
			if res.RulesReplaced {
				fmt.Printf("Replaced rules with %d from the file.\n", res.Rules)
			}
			fmt.Printf("Cleanup settings saved to %s\n", configPath())
			return nil
		},
	}
}
