package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kosss26/storybot/pkg/engine"
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config        *ConsoleConfig
	client        *http.Client
	sceneViewport viewport.Model
	metaViewport  viewport.Model
	ready         bool
	width         int
	height        int
	err           error
	loading       bool

	// Story selection state
	showStoryModal bool
	stories        []StorySummary
	selectedStory  int
	loadingStories bool

	// Play state
	storyID        string
	result         *engine.Result
	selectedChoice int
	notice         string

	// Quit confirmation state
	showQuitModal bool
}

type storiesLoadedMsg struct {
	stories []StorySummary
	err     error
}

type playResultMsg struct {
	result *engine.Result
	err    error
}

type resetDoneMsg struct {
	err error
}

var (
	scenePanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	sceneTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	selectedChoiceStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)

	lockedNoticeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	successEndingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("46")).
				Bold(true)

	failureEndingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)

	neutralEndingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250")).
				Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

var titleCaser = cases.Title(language.English)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	sceneVp := viewport.New(50, 20)
	sceneVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:         cfg,
		client:         client,
		sceneViewport:  sceneVp,
		metaViewport:   metaVp,
		showStoryModal: true,
		loadingStories: true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadStories()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}
	if m.showStoryModal {
		return m.updateStoryModal(msg)
	}

	var (
		svCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.sceneViewport, svCmd = m.sceneViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(svCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.writeSceneContent()
		m.writeMetadata()

	case playResultMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.applyResult(msg.result)
		}
		m.writeSceneContent()
		m.writeMetadata()

	case resetDoneMsg:
		if msg.err != nil {
			m.loading = false
			m.err = msg.err
			m.writeSceneContent()
			return m, nil
		}
		// Fresh run after the reset.
		return m, m.start(m.storyID)

	case tea.KeyMsg:
		return m.handlePlayKey(msg)
	}

	m.sceneViewport, svCmd = m.sceneViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)
	return m, tea.Batch(svCmd, mvCmd)
}

// applyResult folds an interpreter outcome into the UI state. Denials
// keep the current render and explain themselves in the notice line.
func (m *ConsoleUI) applyResult(result *engine.Result) {
	switch result.Outcome {
	case engine.OutcomeConditionsNotMet:
		m.notice = "That choice is not available yet."
	case engine.OutcomeSceneChanged:
		m.notice = "The story had moved on; showing where you are now."
		m.result = result
		m.selectedChoice = 0
	case engine.OutcomeRestartDenied:
		m.notice = "This story is finished and does not allow restarts."
	default:
		m.notice = ""
		m.result = result
		m.selectedChoice = 0
	}
}

func (m ConsoleUI) handlePlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.showQuitModal = true
		return m, nil

	case tea.KeyUp:
		if m.selectedChoice > 0 {
			m.selectedChoice--
			m.writeSceneContent()
		}
		return m, nil

	case tea.KeyDown:
		if m.result != nil && m.result.Render != nil && m.selectedChoice < len(m.result.Render.Choices)-1 {
			m.selectedChoice++
			m.writeSceneContent()
		}
		return m, nil

	case tea.KeyEnter:
		return m.submitSelected()
	}

	switch key := msg.String(); key {
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if m.result == nil || m.result.Render == nil {
			return m, nil
		}
		idx := int(key[0] - '1')
		if idx < len(m.result.Render.Choices) {
			m.selectedChoice = idx
			return m.submitSelected()
		}

	case "r":
		// Reset the active run and start over.
		if m.loading || m.storyID == "" {
			return m, nil
		}
		m.loading = true
		m.notice = ""
		return m, m.reset(m.storyID)

	case "c":
		if m.result != nil {
			if err := clipboard.WriteAll(m.result.RunID.String()); err == nil {
				m.notice = "Run ID copied to clipboard."
			} else {
				m.notice = "Could not access the clipboard."
			}
			m.writeSceneContent()
		}

	case "b":
		// Back to the story list.
		m.showStoryModal = true
		m.loadingStories = true
		m.result = nil
		m.notice = ""
		return m, m.loadStories()
	}

	return m, nil
}

func (m ConsoleUI) submitSelected() (tea.Model, tea.Cmd) {
	if m.loading || m.result == nil || m.result.Render == nil || m.result.Render.Ended {
		return m, nil
	}
	choices := m.result.Render.Choices
	if m.selectedChoice >= len(choices) {
		return m, nil
	}
	m.loading = true
	m.notice = ""
	return m, m.choose(m.result.RunID, m.result.Render.Position, choices[m.selectedChoice].ID)
}

func (m *ConsoleUI) resize() {
	sceneWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - sceneWidth - 6

	m.sceneViewport.Width = sceneWidth - 2
	m.sceneViewport.Height = m.height - 4
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
}

func (m *ConsoleUI) writeSceneContent() {
	sceneWidth := m.sceneViewport.Width - 6
	if sceneWidth < 20 {
		sceneWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("STORYBOT") + "\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", sceneWidth)) + "\n\n")

	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
		m.sceneViewport.SetContent(content.String())
		return
	}

	if m.result == nil || m.result.Render == nil {
		content.WriteString("Loading...\n")
		m.sceneViewport.SetContent(content.String())
		return
	}

	render := m.result.Render
	content.WriteString(sceneTextStyle.Render(wordwrap.String(render.Text, sceneWidth)) + "\n\n")

	if render.Ended {
		content.WriteString(m.endingBanner(render.EndingType) + "\n\n")
		content.WriteString(promptStyle.Render("Press R to play again, B for the story list, Esc to quit") + "\n")
	} else {
		for i, choice := range render.Choices {
			line := fmt.Sprintf("%d. %s", i+1, choice.Text)
			if i == m.selectedChoice {
				content.WriteString(selectedChoiceStyle.Render("▶ "+line) + "\n")
			} else {
				content.WriteString(choiceStyle.Render("  "+line) + "\n")
			}
		}
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ or number keys, Enter to choose") + "\n")
	}

	if m.notice != "" {
		content.WriteString("\n" + lockedNoticeStyle.Render(m.notice) + "\n")
	}
	if m.loading {
		content.WriteString("\n" + promptStyle.Render("...") + "\n")
	}

	m.sceneViewport.SetContent(content.String())
	m.sceneViewport.GotoTop()
}

func (m *ConsoleUI) endingBanner(endingType string) string {
	if endingType == "" {
		endingType = "neutral"
	}
	label := "— " + titleCaser.String(endingType) + " Ending —"
	switch endingType {
	case "success":
		return successEndingStyle.Render(label)
	case "failure":
		return failureEndingStyle.Render(label)
	default:
		return neutralEndingStyle.Render(label)
	}
}

func (m *ConsoleUI) writeMetadata() {
	var content strings.Builder
	content.WriteString(titleStyle.Render("RUN") + "\n\n")

	if m.result != nil {
		content.WriteString("Run ID:\n")
		content.WriteString(m.result.RunID.String()[:8] + "...\n\n")
	}

	content.WriteString("Story:\n")
	content.WriteString(m.storyID + "\n\n")

	if m.result != nil && m.result.Render != nil {
		content.WriteString("Position:\n")
		content.WriteString(m.result.Render.Position + "\n\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• 1-9/Enter: Choose\n")
	content.WriteString("• R: Restart run\n")
	content.WriteString("• B: Story list\n")
	content.WriteString("• C: Copy run ID\n")
	content.WriteString("• Esc: Quit\n")

	m.metaViewport.SetContent(content.String())
}

func (m ConsoleUI) loadStories() tea.Cmd {
	return func() tea.Msg {
		stories, err := listStories(m.client, m.config.APIBaseURL)
		return storiesLoadedMsg{stories, err}
	}
}

func (m ConsoleUI) start(storyID string) tea.Cmd {
	return func() tea.Msg {
		result, err := startStory(m.client, m.config.APIBaseURL, m.config, storyID)
		return playResultMsg{result, err}
	}
}

func (m ConsoleUI) choose(runID uuid.UUID, sceneID, choiceID string) tea.Cmd {
	return func() tea.Msg {
		res, err := submitChoice(m.client, m.config.APIBaseURL, runID, sceneID, choiceID)
		return playResultMsg{res, err}
	}
}

func (m ConsoleUI) reset(storyID string) tea.Cmd {
	return func() tea.Msg {
		err := resetRun(m.client, m.config.APIBaseURL, m.config, storyID)
		return resetDoneMsg{err}
	}
}

func (m ConsoleUI) updateStoryModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case storiesLoadedMsg:
		m.loadingStories = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.stories = msg.stories
			if m.selectedStory >= len(m.stories) {
				m.selectedStory = 0
			}
		}

	case playResultMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.applyResult(msg.result)
		if m.result != nil {
			m.showStoryModal = false
			m.writeSceneContent()
			m.writeMetadata()
			m.ready = true
		}
		return m, nil

	case tea.KeyMsg:
		if m.loadingStories || m.loading {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyUp:
			if m.selectedStory > 0 {
				m.selectedStory--
			}
		case tea.KeyDown:
			if m.selectedStory < len(m.stories)-1 {
				m.selectedStory++
			}
		case tea.KeyEnter:
			if len(m.stories) > 0 {
				m.storyID = m.stories[m.selectedStory].ID
				m.loading = true
				return m, m.start(m.storyID)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N", "esc":
				m.showQuitModal = false
				return m, nil
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Your run is saved; you can pick up where you left off.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to keep playing"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderStoryModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	if m.loadingStories {
		content.WriteString(modalTitleStyle.Render("Loading Stories..."))
	} else if m.err != nil {
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load stories: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	} else if m.loading {
		content.WriteString(modalTitleStyle.Render("Starting..."))
	} else if len(m.stories) == 0 {
		content.WriteString(modalTitleStyle.Render("No Stories"))
		content.WriteString("\n\n")
		content.WriteString("The server has no stories loaded.")
	} else {
		content.WriteString(modalTitleStyle.Render("Select a Story"))
		content.WriteString("\n\n")

		for i, st := range m.stories {
			label := st.ID
			if st.Title != "" {
				label = fmt.Sprintf("%s (%d scenes)", st.Title, st.Scenes)
			}
			if i == m.selectedStory {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + label))
			} else {
				content.WriteString(modalItemStyle.Render("  " + label))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if m.showStoryModal {
		return m.renderStoryModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	sceneWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - sceneWidth - 6

	scenePanel := scenePanelStyle.Width(sceneWidth).Height(m.height - 2).Render(
		m.sceneViewport.View(),
	)
	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, scenePanel, metaPanel)
}
