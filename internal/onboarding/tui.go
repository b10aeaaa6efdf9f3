// Package onboarding is the first-run setup wizard. It discovers local
// Ollama models, collects connector tokens and writes the config file.
package onboarding

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"curie/internal/config"
)

var (
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1).
			Bold(true)

	docStyle = lipgloss.NewStyle().Padding(1, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().Padding(0, 1)

	windowStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1)
)

type state int

const (
	stateModel state = iota
	stateOllamaURL
	stateTelegram
	stateDiscord
	stateCheckin
	stateDone
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title }

// TUIModel drives the wizard.
type TUIModel struct {
	state state
	cfg   *config.Config
	path  string

	list     list.Model
	input    textinput.Model
	err      error
	quitting bool
	width    int
	height   int
}

type ollamaModel struct {
	Name string `json:"name"`
}

type ollamaResponse struct {
	Models []ollamaModel `json:"models"`
}

// fetchOllamaModels queries the local Ollama daemon for installed models,
// falling back to the default when it is not running.
func fetchOllamaModels(baseURL string) []item {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/api/tags")
	if err != nil {
		return []item{{title: "tinyllama", desc: "Default fallback (Ollama not responding)"}}
	}
	defer resp.Body.Close()

	var data ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || len(data.Models) == 0 {
		return []item{{title: "tinyllama", desc: "Default fallback"}}
	}

	items := make([]item, len(data.Models))
	for i, m := range data.Models {
		items[i] = item{title: m.Name, desc: "Local Ollama model"}
	}
	return items
}

// NewTUIModel builds the wizard over the existing config so re-running it
// keeps earlier answers.
func NewTUIModel(path string) TUIModel {
	cfg := config.Load(path)

	models := fetchOllamaModels(cfg.OllamaURL)
	listItems := make([]list.Item, len(models))
	for i, m := range models {
		listItems[i] = m
	}

	l := list.New(listItems, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select Preferred Model"
	l.SetShowHelp(false)

	ti := textinput.New()
	ti.Focus()

	return TUIModel{
		state: stateModel,
		cfg:   cfg,
		path:  path,
		list:  l,
		input: ti,
	}
}

func (m TUIModel) Init() tea.Cmd {
	return nil
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width-10, msg.Height-15)

	case error:
		m.err = msg
		m.quitting = true
		return m, tea.Quit
	}

	var cmd tea.Cmd

	switch m.state {
	case stateModel:
		m.list, cmd = m.list.Update(msg)
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "enter" {
			if i, ok := m.list.SelectedItem().(item); ok {
				m.cfg.Model = i.title
				if !contains(m.cfg.Models, i.title) {
					m.cfg.Models = append([]string{i.title}, m.cfg.Models...)
				}
				m.state = stateOllamaURL
				m.input.Prompt = "Ollama URL: "
				m.input.SetValue(m.cfg.OllamaURL)
			}
		}

	case stateOllamaURL:
		m.input, cmd = m.input.Update(msg)
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "enter" {
			if v := strings.TrimSpace(m.input.Value()); v != "" {
				m.cfg.OllamaURL = v
			}
			m.state = stateTelegram
			m.input.Prompt = "Telegram Bot Token (optional): "
			m.input.SetValue(m.cfg.TelegramToken)
		}

	case stateTelegram:
		m.input, cmd = m.input.Update(msg)
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "enter" {
			m.cfg.TelegramToken = strings.TrimSpace(m.input.Value())
			m.state = stateDiscord
			m.input.Prompt = "Discord Bot Token (optional): "
			m.input.SetValue(m.cfg.DiscordToken)
		}

	case stateDiscord:
		m.input, cmd = m.input.Update(msg)
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "enter" {
			m.cfg.DiscordToken = strings.TrimSpace(m.input.Value())
			m.state = stateCheckin
			m.input.Prompt = "Idle check-in after minutes (0 disables): "
			m.input.SetValue(strconv.Itoa(m.cfg.IdleCheckinMinutes))
		}

	case stateCheckin:
		m.input, cmd = m.input.Update(msg)
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.String() == "enter" {
			if n, err := strconv.Atoi(strings.TrimSpace(m.input.Value())); err == nil && n >= 0 {
				m.cfg.IdleCheckinMinutes = n
			}
			m.state = stateDone
			return m, m.saveConfig()
		}

	case stateDone:
		m.quitting = true
		return m, tea.Quit
	}

	return m, cmd
}

func (m TUIModel) View() string {
	if m.quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render(" Curie Setup Wizard "))
	s.WriteString("\n\n")

	tabs := []string{"Model", "Ollama", "Telegram", "Discord", "Check-ins", "Finish"}
	for i, t := range tabs {
		if i == int(m.state) {
			s.WriteString(activeTabStyle.Render(t))
		} else {
			s.WriteString(inactiveTabStyle.Render(t))
		}
	}
	s.WriteString("\n\n")

	var content string
	switch m.state {
	case stateModel:
		content = m.list.View()
	case stateOllamaURL, stateTelegram, stateDiscord, stateCheckin:
		content = "\n" + m.input.View() + "\n\n" + helpStyle.Render("Press enter to continue")
	case stateDone:
		content = fmt.Sprintf("\nSaving configuration to %s...\nDone! Press any key to exit.", m.path)
	}

	s.WriteString(windowStyle.Width(m.width - 10).Height(m.height - 15).Render(content))

	if m.state != stateDone {
		s.WriteString("\n\n" + helpStyle.Render("ctrl+c: quit • ↑/↓: navigate • enter: select"))
	}

	return docStyle.Render(s.String())
}

func (m TUIModel) saveConfig() tea.Cmd {
	return func() tea.Msg {
		if err := m.cfg.Save(m.path); err != nil {
			return err
		}
		return nil
	}
}

// Run starts the wizard; path "" saves to the default config location.
func Run(path string) error {
	if path == "" {
		path = config.DefaultConfigPath()
	}
	p := tea.NewProgram(NewTUIModel(path), tea.WithAltScreen())
	model, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := model.(TUIModel); ok && m.err != nil {
		return m.err
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
