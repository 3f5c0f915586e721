package main

import (
	"fmt"
	"time"

	"github.com/benaskins/molt/internal/accounts"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	pickerFrame  = lipgloss.NewStyle().Margin(1, 2)
	pickerTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#E2725B")).Padding(0, 1)
	pickerStatus = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#7A4B3A", Dark: "#F0B8A8"})
	pickerError  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

var (
	keyActivate = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "use"))
	keyRemove   = key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "remove"))
)

// accountItem is a list row.
type accountItem struct {
	summary accounts.Summary
}

func (i accountItem) Title() string {
	if i.summary.Active {
		return "● " + i.summary.Label
	}
	return i.summary.Label
}

func (i accountItem) Description() string {
	return fmt.Sprintf("%s · added %s", shortID(i.summary.ID), i.summary.CreatedAt.Local().Format(time.DateOnly))
}

func (i accountItem) FilterValue() string { return i.summary.Label + " " + i.summary.ID }

// pickerModel lets the user choose the active account.
type pickerModel struct {
	store  *accounts.Store
	list   list.Model
	status string
	err    error
	chosen string
}

func newPicker(store *accounts.Store) pickerModel {
	l := list.New(nil, list.NewDefaultDelegate(), 80, 20)
	l.Title = "Moltbook accounts"
	l.Styles.Title = pickerTitle
	l.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{keyActivate, keyRemove} }
	l.AdditionalFullHelpKeys = l.AdditionalShortHelpKeys
	m := pickerModel{store: store, list: l}
	m.reload()
	return m
}

// reload re-reads the store; another terminal may have changed it.
func (m *pickerModel) reload() {
	st := m.store.Snapshot()
	items := make([]list.Item, 0, len(st.Accounts))
	selected := 0
	for i, a := range st.Accounts {
		items = append(items, accountItem{summary: a})
		if a.Active {
			selected = i
		}
	}
	m.list.SetItems(items)
	m.list.Select(selected)
	m.list.Title = fmt.Sprintf("Moltbook accounts · %s mode", st.Mode)
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		h, v := pickerFrame.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v-1)
		return m, nil
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case msg.String() == "ctrl+c" || msg.String() == "q" || msg.String() == "esc":
			return m, tea.Quit
		case key.Matches(msg, keyActivate):
			item, ok := m.list.SelectedItem().(accountItem)
			if !ok {
				return m, nil
			}
			if err := m.store.Activate(item.summary.ID); err != nil {
				m.err = err
				return m, nil
			}
			m.chosen = item.summary.Label
			return m, tea.Quit
		case key.Matches(msg, keyRemove):
			item, ok := m.list.SelectedItem().(accountItem)
			if !ok {
				return m, nil
			}
			if err := m.store.RemoveAccount(item.summary.ID); err != nil {
				m.err = err
				return m, nil
			}
			m.err = nil
			m.status = "Removed " + item.summary.Label
			m.reload()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	footer := pickerStatus.Render(m.status)
	if m.err != nil {
		footer = pickerError.Render(m.err.Error())
	}
	return pickerFrame.Render(m.list.View() + "\n" + footer)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var switchCmd = &cobra.Command{
	Use:   "switch",
	Short: "Pick the active account interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime("tui")
		if err != nil {
			return err
		}
		defer rt.Close()

		if rt.store.Inert() {
			return &accounts.EnvironmentError{Op: "switch"}
		}
		if len(rt.store.Accounts()) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No accounts stored. Run `molt login` first.")
			return nil
		}

		final, err := tea.NewProgram(newPicker(rt.store), tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
		if err != nil {
			return err
		}
		if m, ok := final.(pickerModel); ok && m.chosen != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Now using %s\n", m.chosen)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(switchCmd)
}
