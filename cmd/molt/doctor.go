package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/benaskins/molt/internal/accounts"
	"github.com/benaskins/molt/internal/health"
	"github.com/benaskins/molt/internal/kv"
	"github.com/spf13/cobra"
)

var doctorOffline bool

// tierReport lists a tier's key names. Values are never read.
type tierReport struct {
	Name string
	Path string
	Keys []string
	Err  error
}

type doctorReport struct {
	Backend    string
	Inert      bool
	Mode       accounts.Mode
	SessionID  string
	SessionDir error // nil when the directory is private or not yet created
	AuditLog   string
	Tiers      []tierReport
	APIBase    string
	API        error
	APIChecked bool
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check storage tiers, session directory and API reachability",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		r := rt.diagnose(cmd.Context(), !doctorOffline)
		printDoctor(cmd.OutOrStdout(), r)
		return nil
	},
}

func (rt *runtime) diagnose(ctx context.Context, checkAPI bool) doctorReport {
	r := doctorReport{
		Backend:   rt.cfg.Backend,
		Inert:     rt.store.Inert(),
		Mode:      rt.store.PersistenceMode(),
		SessionID: kv.SessionID(),
		AuditLog:  rt.cfg.AuditLog,
		APIBase:   rt.cfg.APIBase,
	}
	if rt.cfg.SessionDir != "" {
		if err := kv.CheckPrivateDir(rt.cfg.SessionDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.SessionDir = err
		}
	}
	if rt.durable != nil {
		r.Tiers = append(r.Tiers, listTier("durable", rt.durable))
	}
	if rt.session != nil {
		r.Tiers = append(r.Tiers, listTier("session", rt.session))
	}
	if checkAPI {
		r.APIChecked = true
		r.API = health.Check(ctx, rt.cfg.APIBase, 10*time.Second)
	}
	return r
}

func listTier(name string, s kv.Store) tierReport {
	t := tierReport{Name: name}
	if p, ok := s.(kv.Pather); ok {
		t.Path = p.Path()
	}
	t.Keys, t.Err = s.List()
	return t
}

func printDoctor(out io.Writer, r doctorReport) {
	fmt.Fprintf(out, "Backend:   %s\n", r.Backend)
	if r.Inert {
		fmt.Fprintln(out, "Storage:   unavailable, accounts are read-only")
	}
	fmt.Fprintf(out, "Mode:      %s\n", r.Mode)
	fmt.Fprintf(out, "Session:   %s\n", r.SessionID)
	if r.SessionDir != nil {
		fmt.Fprintf(out, "  warning: %v\n", r.SessionDir)
	}
	fmt.Fprintf(out, "Audit log: %s\n", dash(r.AuditLog))

	for _, t := range r.Tiers {
		fmt.Fprintf(out, "\n%s tier", t.Name)
		if t.Path != "" {
			fmt.Fprintf(out, " (%s)", filepath.Clean(t.Path))
		}
		fmt.Fprintln(out)
		switch {
		case t.Err != nil:
			fmt.Fprintf(out, "  error: %v\n", t.Err)
		case len(t.Keys) == 0:
			fmt.Fprintln(out, "  (empty)")
		default:
			fmt.Fprintf(out, "  %s\n", strings.Join(t.Keys, "\n  "))
		}
	}

	if r.APIChecked {
		fmt.Fprintln(out)
		if r.API != nil {
			fmt.Fprintf(out, "API:       %s unreachable: %v\n", r.APIBase, r.API)
		} else {
			fmt.Fprintf(out, "API:       %s reachable\n", r.APIBase)
		}
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "Skip the API reachability check")
	rootCmd.AddCommand(doctorCmd)
}
