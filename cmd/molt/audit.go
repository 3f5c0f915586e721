package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/benaskins/molt/internal/audit"
	"github.com/spf13/cobra"
)

var (
	auditAccount string
	auditActions []string
	auditSince   time.Duration
	auditLimit   int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent account and key activity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		if rt.cfg.AuditLog == "" {
			return fmt.Errorf("no audit log configured")
		}

		f := audit.Filter{Account: auditAccount}
		for _, a := range auditActions {
			f.Actions = append(f.Actions, audit.Action(a))
		}
		if auditSince > 0 {
			f.Since = time.Now().Add(-auditSince)
		}
		if auditAccount != "" {
			if acct, err := findAccount(rt.store, auditAccount); err == nil {
				f.Account = acct.ID
			}
		}

		entries, bad, err := audit.ReadFile(rt.cfg.AuditLog, f)
		if err != nil {
			return err
		}
		if auditLimit > 0 && len(entries) > auditLimit {
			entries = entries[len(entries)-auditLimit:]
		}
		printAudit(cmd.OutOrStdout(), entries)
		if bad > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d unreadable lines\n", bad)
		}
		return nil
	},
}

func printAudit(out io.Writer, entries []audit.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit entries")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tACTOR\tTIER\tKEY/ACCOUNT\tDETAIL")
	for _, e := range entries {
		subject := e.Account
		if subject == "" {
			subject = e.Key
		}
		detail := e.Detail
		if e.Error != "" {
			detail = "error: " + e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Action, dash(e.Actor), dash(e.Tier), dash(subject), detail)
	}
	w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	auditCmd.Flags().StringVar(&auditAccount, "account", "", "Only entries for this account (id or label)")
	auditCmd.Flags().StringSliceVar(&auditActions, "action", nil, "Only these actions, e.g. account_add,credential_read")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only entries newer than this, e.g. 24h")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Show at most this many entries (0 for all)")
	rootCmd.AddCommand(auditCmd)
}
