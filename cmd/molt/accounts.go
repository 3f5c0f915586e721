package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/benaskins/molt/internal/accounts"
	"github.com/benaskins/molt/internal/watch"
	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"account"},
	Short:   "Manage stored agent accounts",
}

var accountsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored accounts, most recent first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		printAccounts(cmd.OutOrStdout(), rt.store)
		return nil
	},
}

var accountsUseCmd = &cobra.Command{
	Use:   "use <id|label>",
	Short: "Make an account active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		acct, err := findAccount(rt.store, args[0])
		if err != nil {
			return err
		}
		if err := rt.store.Activate(acct.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Active account: %s\n", acct.Label)
		return nil
	},
}

var accountsRemoveCmd = &cobra.Command{
	Use:     "remove <id|label>",
	Aliases: []string{"rm"},
	Short:   "Remove a stored account",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		acct, err := findAccount(rt.store, args[0])
		if err != nil {
			return err
		}
		if err := rt.store.RemoveAccount(acct.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", acct.Label)
		return nil
	},
}

var accountsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the account list whenever another terminal changes it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		path := rt.durablePath()
		if path == "" {
			return fmt.Errorf("backend %q cannot be watched", rt.cfg.Backend)
		}

		out := cmd.OutOrStdout()
		printAccounts(out, rt.store)
		w := watch.New(func(string) {
			fmt.Fprintln(out)
			printAccounts(out, rt.store)
		}, path)
		return w.Run(cmd.Context())
	},
}

var modeCmd = &cobra.Command{
	Use:   "mode [local|session]",
	Short: "Show or change where the active key is kept",
	Long: "Without arguments, print the persistence mode.\n" +
		"With an argument, switch modes and move the active key to match:\n" +
		"  local    remember the key on this device\n" +
		"  session  keep the key for this terminal session only",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		if len(args) == 0 {
			m := rt.store.PersistenceMode()
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", m, modeName(m))
			return nil
		}
		m, ok := accounts.ParseMode(args[0])
		if !ok {
			return fmt.Errorf("unknown mode %q (want local or session)", args[0])
		}
		if err := rt.store.SwitchPersistenceMode(m); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Mode set to %s (%s)\n", m, modeName(m))
		return nil
	},
}

func printAccounts(out io.Writer, store *accounts.Store) {
	st := store.Snapshot()
	if len(st.Accounts) == 0 {
		fmt.Fprintln(out, "No accounts stored")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tLABEL\tADDED")
	for _, a := range st.Accounts {
		marker := ""
		if a.Active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", marker, a.ID, a.Label, a.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

// findAccount matches an exact id, then a unique id prefix, then a label.
func findAccount(store *accounts.Store, ref string) (accounts.Account, error) {
	list := store.Accounts()
	for _, a := range list {
		if a.ID == ref {
			return a, nil
		}
	}
	var matches []accounts.Account
	for _, a := range list {
		if strings.HasPrefix(a.ID, ref) || strings.EqualFold(a.Label, ref) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return accounts.Account{}, fmt.Errorf("no account matches %q", ref)
	case 1:
		return matches[0], nil
	}
	return accounts.Account{}, fmt.Errorf("%q matches %d accounts, use the id", ref, len(matches))
}

func init() {
	accountsCmd.AddCommand(accountsListCmd, accountsUseCmd, accountsRemoveCmd, accountsWatchCmd)
	rootCmd.AddCommand(accountsCmd, modeCmd)
}
