package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benaskins/molt/internal/accounts"
	"github.com/benaskins/molt/internal/moltbook"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginLabel    string
	loginKey      string
	loginRemember bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Connect an agent with its API key",
	Long: "Store an agent's API key and make it the active account.\n" +
		"Without --remember the key is only usable from this terminal session.\n" +
		"If --key is omitted the key is read from the terminal or stdin.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		key := strings.TrimSpace(loginKey)
		if key == "" {
			if key, err = readSecret(cmd, "API key: "); err != nil {
				return err
			}
		}
		if key == "" {
			return fmt.Errorf("API key is required")
		}

		acct, err := rt.store.Connect(loginLabel, key, loginRemember)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Connected %q (%s, %s)\n", acct.Label, acct.Redacted(), modeName(rt.store.PersistenceMode()))
		return nil
	},
}

var (
	registerName        string
	registerDescription string
	registerRemember    bool
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new agent and connect it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := moltbook.ValidateRegistration(registerName, registerDescription); err != nil {
			return err
		}
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		reg, err := rt.client().RegisterAgent(cmd.Context(), registerName, registerDescription)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Agent %q registered. Save the API key now, it is not shown again:\n\n", registerName)
		fmt.Fprintf(out, "  API key:           %s\n", reg.APIKey)
		fmt.Fprintf(out, "  Claim URL:         %s\n", reg.ClaimURL)
		fmt.Fprintf(out, "  Verification code: %s\n\n", reg.VerificationCode)

		if _, err := rt.store.Connect(registerName, reg.APIKey, registerRemember); err != nil {
			return fmt.Errorf("agent registered but not stored: %w", err)
		}
		fmt.Fprintln(out, "Connected. Open the claim URL to verify ownership.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget every stored account and the session key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.store.Teardown(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cleared stored accounts & session")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active agent and its claim status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("cli")
		if err != nil {
			return err
		}
		defer rt.Close()

		out := cmd.OutOrStdout()
		st := rt.store.Snapshot()
		if st.Inert {
			fmt.Fprintln(out, "Storage: unavailable")
		}
		fmt.Fprintf(out, "Mode:     %s\n", modeName(st.Mode))
		fmt.Fprintf(out, "Accounts: %d\n", len(st.Accounts))

		active, ok := rt.store.ActiveAccount()
		if !ok {
			fmt.Fprintln(out, "Active:   none")
		} else {
			fmt.Fprintf(out, "Active:   %s (%s)\n", active.Label, active.ID)
		}
		if !st.Connected {
			fmt.Fprintln(out, "Status:   not connected")
			return nil
		}

		res, err := rt.client().Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Status:   %s\n", moltbook.StatusText(res.Status))
		if res.Agent != nil {
			fmt.Fprintf(out, "Agent:    %s\n", res.Agent.Name)
		}
		return nil
	},
}

// readSecret prompts without echo on a terminal, otherwise reads one line
// from stdin.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func modeName(m accounts.Mode) string {
	if m == accounts.ModeDurable {
		return "remembered on this device"
	}
	return "this terminal session only"
}

func init() {
	loginCmd.Flags().StringVar(&loginLabel, "label", "My agent", "Name shown in the account list")
	loginCmd.Flags().StringVar(&loginKey, "key", "", "API key (prompted if omitted)")
	loginCmd.Flags().BoolVar(&loginRemember, "remember", false, "Remember the key on this device")

	registerCmd.Flags().StringVar(&registerName, "name", "", "Agent name (2-30 characters)")
	registerCmd.Flags().StringVar(&registerDescription, "description", "", "What the agent does (10-500 characters)")
	registerCmd.Flags().BoolVar(&registerRemember, "remember", false, "Remember the key on this device")
	registerCmd.MarkFlagRequired("name")
	registerCmd.MarkFlagRequired("description")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, statusCmd)
}
