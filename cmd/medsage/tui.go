package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/medsage-ai/medsage/internal/service"
	"github.com/medsage-ai/medsage/internal/status"
	"github.com/medsage-ai/medsage/internal/triage"
)

type uiState int

const (
	stateWelcome uiState = iota
	statePreparing
	stateReady
	stateInferring
	stateResult
	stateFailed
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("105"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	urgencyStyles = map[triage.Urgency]lipgloss.Style{
		triage.UrgencyLow:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		triage.UrgencyMedium:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
		triage.UrgencyHigh:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		triage.UrgencyEmergency: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")).Blink(true),
	}
)

// Messages flowing into Update.
type (
	statusMsg   status.Status
	preparedMsg struct{}
	resultMsg   *triage.Analysis
	failMsg     struct{ err error }
)

type model struct {
	svc      *service.Service
	statusCh chan status.Status

	state    uiState
	st       status.Status
	analysis *triage.Analysis
	err      error

	input    textinput.Model
	progress progress.Model
	spin     spinner.Model
}

func newModel(svc *service.Service) model {
	ti := textinput.New()
	ti.Placeholder = "Describe your symptoms, e.g. \"headache for two days with nausea\""
	ti.CharLimit = 500
	ti.Width = 72

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	statusCh := make(chan status.Status, 16)
	svc.OnStatusChange(func(s status.Status) {
		select {
		case statusCh <- s:
		default: // UI lagging; the next snapshot supersedes this one
		}
	})

	return model{
		svc:      svc,
		statusCh: statusCh,
		state:    stateWelcome,
		st:       svc.Status(),
		input:    ti,
		progress: progress.New(progress.WithDefaultGradient()),
		spin:     sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.waitForStatus(), m.spin.Tick)
}

// waitForStatus delivers the next tracker snapshot to Update.
func (m model) waitForStatus() tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-m.statusCh)
	}
}

// prepareCmd downloads and initializes the model.
func (m model) prepareCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if err := m.svc.DownloadModel(ctx); err != nil {
			return failMsg{err}
		}
		if err := m.svc.InitializeModel(ctx); err != nil {
			return failMsg{err}
		}
		return preparedMsg{}
	}
}

// inferCmd runs one assessment.
func (m model) inferCmd(query string) tea.Cmd {
	return func() tea.Msg {
		analysis, err := m.svc.InferSymptoms(context.Background(), query, "")
		if err != nil {
			return failMsg{err}
		}
		return resultMsg(analysis)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateReady || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
		case "enter":
			switch m.state {
			case stateWelcome, stateFailed:
				m.state = statePreparing
				m.err = nil
				return m, m.prepareCmd()
			case stateReady:
				query := strings.TrimSpace(m.input.Value())
				if query == "" {
					return m, nil
				}
				m.state = stateInferring
				return m, m.inferCmd(query)
			case stateResult:
				m.state = stateReady
				m.input.SetValue("")
				m.input.Focus()
				return m, textinput.Blink
			}
		}

	case statusMsg:
		m.st = status.Status(msg)
		return m, m.waitForStatus()

	case preparedMsg:
		m.state = stateReady
		m.input.Focus()
		return m, textinput.Blink

	case resultMsg:
		m.state = stateResult
		m.analysis = msg
		return m, nil

	case failMsg:
		m.state = stateFailed
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	if m.state == stateReady {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("MedSage — on-device symptom triage"))
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render("Not a diagnosis. In an emergency, call your local emergency number."))
	b.WriteString("\n\n")

	switch m.state {
	case stateWelcome:
		b.WriteString("The triage model is not loaded yet.\n\n")
		b.WriteString("Press " + sectionStyle.Render("enter") + " to download and initialize it, " +
			subtleStyle.Render("q") + " to quit.\n")

	case statePreparing:
		label := string(m.st.Phase)
		if m.st.CurrentAsset != "" {
			label = fmt.Sprintf("%s %s", m.st.Phase, m.st.CurrentAsset)
		}
		b.WriteString(fmt.Sprintf("%s %s\n\n", m.spin.View(), label))
		b.WriteString(m.progress.ViewAs(float64(m.st.Progress)/100) + "\n")

	case stateReady:
		b.WriteString("Describe what you are experiencing and press " + sectionStyle.Render("enter") + ".\n\n")
		b.WriteString(m.input.View() + "\n")

	case stateInferring:
		b.WriteString(fmt.Sprintf("%s Assessing symptoms…\n", m.spin.View()))

	case stateResult:
		b.WriteString(m.renderAnalysis())
		b.WriteString("\n" + subtleStyle.Render("enter: new assessment · q: quit") + "\n")

	case stateFailed:
		b.WriteString(errorStyle.Render("Something went wrong") + "\n\n")
		if m.err != nil {
			b.WriteString(m.err.Error() + "\n\n")
		}
		b.WriteString("Press " + sectionStyle.Render("enter") + " to retry, " + subtleStyle.Render("q") + " to quit.\n")
	}

	if m.st.Simulated {
		b.WriteString("\n" + noticeStyle.Render("simulation mode — responses are canned") + "\n")
	}
	return b.String()
}

func (m model) renderAnalysis() string {
	a := m.analysis
	var b strings.Builder

	style, ok := urgencyStyles[a.Urgency]
	if !ok {
		style = urgencyStyles[triage.UrgencyMedium]
	}
	b.WriteString(style.Render(fmt.Sprintf("Urgency: %s", strings.ToUpper(string(a.Urgency)))))
	b.WriteString(subtleStyle.Render(fmt.Sprintf("  (severity %s, %dms)", a.Severity, a.InferenceTimeMs)))
	b.WriteString("\n\n")

	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString(sectionStyle.Render(title) + "\n")
		for _, item := range items {
			b.WriteString("  • " + item + "\n")
		}
		b.WriteString("\n")
	}

	writeList("Symptoms", a.NormalizedSymptoms)
	if a.Duration != "" {
		b.WriteString(sectionStyle.Render("Duration") + "\n  " + a.Duration + "\n\n")
	}
	writeList("Risk factors", a.RiskFactors)
	writeList("Red flags", a.RedFlags)
	writeList("Needs clarification", a.ConfidenceGaps)

	if len(a.Recommendations) > 0 {
		b.WriteString(sectionStyle.Render("Recommendations") + "\n")
		for _, rec := range a.Recommendations {
			tag := "self-care"
			if rec.Type == triage.RecommendationMedical {
				tag = noticeStyle.Render("medical")
			}
			b.WriteString(fmt.Sprintf("  • [%s] %s\n", tag, rec.Title))
		}
	}
	return b.String()
}
