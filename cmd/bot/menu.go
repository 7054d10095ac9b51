package main

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("2"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

type choice struct {
	title string
	mode  string // 为空表示进入子菜单
}

var mainChoices = []choice{
	{title: "1) Generate new database", mode: modeGenerate},
	{title: "2) Work with existing database", mode: modeWork},
	{title: "3) Forks mode"},
	{title: "4) Get deposit addresses", mode: modeDepositAddresses},
	{title: "5) Check proxies", mode: modeCheckProxies},
}

var forkChoices = []choice{
	{title: "1) Generate new forks database", mode: modeForksCreate},
	{title: "2) Work with existing forks database", mode: modeForksResume},
}

// menuModel 选择要运行的模式，退出时 mode 为空
type menuModel struct {
	choices []choice
	cursor  int
	sub     bool
	mode    string
}

func newMenu() menuModel {
	return menuModel{choices: mainChoices}
}

func (m menuModel) Init() tea.Cmd {
	return nil
}

func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q":
		m.mode = ""
		return m, tea.Quit
	case "esc":
		if m.sub {
			m.sub, m.choices, m.cursor = false, mainChoices, 2
			return m, nil
		}
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.choices)-1 {
			m.cursor++
		}
	case "1", "2", "3", "4", "5":
		if i := int(key.String()[0] - '1'); i < len(m.choices) {
			m.cursor = i
			return m.pick()
		}
	case "enter":
		return m.pick()
	}
	return m, nil
}

func (m menuModel) pick() (tea.Model, tea.Cmd) {
	c := m.choices[m.cursor]
	if c.mode == "" {
		m.sub, m.choices, m.cursor = true, forkChoices, 0
		return m, nil
	}
	m.mode = c.mode
	return m, tea.Quit
}

func (m menuModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("⚙️  Choose module"))
	b.WriteString("\n\n")
	for i, c := range m.choices {
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("✅ " + c.title))
		} else {
			b.WriteString("   " + c.title)
		}
		b.WriteByte('\n')
	}
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("↑/↓ move • enter select • esc back • q quit"))
	b.WriteByte('\n')
	return b.String()
}

// chooseMode 运行交互菜单
func chooseMode() (string, error) {
	final, err := tea.NewProgram(newMenu()).Run()
	if err != nil {
		return "", err
	}
	return final.(menuModel).mode, nil
}
