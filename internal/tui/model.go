package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"caserag/internal/domain"
	"caserag/internal/scorer"
	"caserag/internal/summarizer"
)

// CasePort is the TUI-facing subset of the retrieval service.
type CasePort interface {
	RetrieveRelevantCases(ctx context.Context, query string, topK int) ([]domain.RankedCase, error)
	SearchCases(ctx context.Context, query string, limit int) ([]domain.RankedCase, error)
	Explain(query, id string) ([]scorer.Signal, error)
}

type mode int

const (
	modeRetrieve mode = iota
	modeSearch
)

func (m mode) String() string {
	if m == modeSearch {
		return "keyword search"
	}
	return "retrieval"
}

const queryTimeout = 30 * time.Second

// Model is the Bubble Tea model for the case browser.
type Model struct {
	service   CasePort
	topK      int
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.RankedCase
	summary   string
	status    string
	cursor    int
	ready     bool
	lastQuery string
	mode      mode
}

// New creates a new TUI model instance. summary is shown under the header.
func New(service CasePort, topK int, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Describe the clinical situation and press Enter"
	ti.Focus()
	ti.CharLimit = 2000
	vp := viewport.New(0, 0)
	if topK <= 0 {
		topK = 3
	}
	return Model{service: service, topK: topK, input: ti, viewport: vp, summary: summary, status: "Ready. Tab switches retrieval/keyword search."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2
		totalFooterLines := 1
		reserved := totalHeaderLines + totalFooterLines + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m = m.runQuery(q)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "tab":
			if m.mode == modeRetrieve {
				m.mode = modeSearch
			} else {
				m.mode = modeRetrieve
			}
			m.status = "Mode: " + m.mode.String()
			return m, nil
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) runQuery(q string) Model {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	var (
		res []domain.RankedCase
		err error
	)
	if m.mode == modeSearch {
		res, err = m.service.SearchCases(ctx, q, m.topK)
	} else {
		res, err = m.service.RetrieveRelevantCases(ctx, q, m.topK)
	}
	if err != nil {
		m.status = "Error: " + err.Error()
		m.results = nil
		return m
	}
	m.results = res
	m.cursor = 0
	m.lastQuery = q
	if len(res) == 0 {
		m.status = fmt.Sprintf("No relevant cases for %q (%s)", q, m.mode)
	} else {
		m.status = fmt.Sprintf("%d case(s) for %q via %s", len(res), q, res[0].Path)
	}
	return m
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Clinical Case Retrieval  [" + m.mode.String() + "]")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	var b strings.Builder
	fmt.Fprintf(&b, "Case %d/%d  %s\n", m.cursor+1, len(m.results), titleStyle.Render(r.Title))
	fmt.Fprintf(&b, "relevance=%.0f%%  raw=%.3f  path=%s\n\n", r.Score*100, r.RawScore, r.Path)
	fmt.Fprintf(&b, "Patient: %s, ASA %d\n", r.PatientAge, r.ASAClass)
	fmt.Fprintf(&b, "Technique: %s\n", r.Technique)
	if len(r.Complications) == 0 {
		b.WriteString("Complications: none\n")
	} else {
		b.WriteString("Complications: " + strings.Join(r.Complications, "; ") + "\n")
	}
	if len(r.ClinicalPearls) > 0 {
		b.WriteString("\nPearls: " + highlightBestSentence(strings.Join(r.ClinicalPearls, " "), m.lastQuery) + "\n")
	}
	if len(r.KeyTakeaways) > 0 {
		b.WriteString("\nTakeaways: " + strings.Join(r.KeyTakeaways, " ") + "\n")
	}
	if signals, err := m.service.Explain(m.lastQuery, r.ID); err == nil && len(signals) > 0 {
		parts := make([]string, len(signals))
		for i, s := range signals {
			parts[i] = fmt.Sprintf("%s +%d", s.Name, s.Delta)
		}
		b.WriteString("\n" + signalStyle.Render("Signals: "+strings.Join(parts, ", ")))
	}
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	signalStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	unicodeWordRe  = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’]\p{L}+)*`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := summarizer.Sentences(text)
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx && bestScore > 0 {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
