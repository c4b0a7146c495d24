// Package diagnosetui is a bubbletea program that polls a running proxy's
// /debug/recent endpoint and lets an operator browse recent request events.
package diagnosetui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event mirrors internal/eventsink.Event's JSON shape without importing the
// server-side package, keeping this a genuine HTTP client of the running
// process rather than an in-process consumer.
type Event struct {
	Time       time.Time `json:"Time"`
	RequestID  string    `json:"RequestID"`
	Kind       string    `json:"Kind"`
	Provider   string    `json:"Provider"`
	Selector   string    `json:"Selector"`
	StatusCode int       `json:"StatusCode"`
	LatencyMs  int64     `json:"LatencyMs"`
	Message    string    `json:"Message"`
	Detail     string    `json:"Detail"`
}

type viewState int

const (
	stateList viewState = iota
	stateDetail
)

type keyMap struct {
	Open   key.Binding
	Back   key.Binding
	Reload key.Binding
	Quit   key.Binding
}

func (k keyMap) ShortHelp() []key.Binding { return []key.Binding{k.Open, k.Reload, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Open, k.Back, k.Reload}, {k.Quit}}
}

var keys = keyMap{
	Open:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
	Back:   key.NewBinding(key.WithKeys("esc", "b"), key.WithHelp("esc/b", "back")),
	Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type eventItem struct{ ev Event }

func (i eventItem) Title() string {
	ts := "-"
	if !i.ev.Time.IsZero() {
		ts = i.ev.Time.Format("15:04:05.000")
	}
	status := "-"
	if i.ev.StatusCode != 0 {
		status = fmt.Sprintf("%d", i.ev.StatusCode)
	}
	return fmt.Sprintf("%s  %-18s  %-6s  %s", ts, i.ev.Kind, status, i.ev.Provider)
}

func (i eventItem) Description() string {
	rid := i.ev.RequestID
	if rid == "" {
		rid = "-"
	}
	return fmt.Sprintf("selector=%s rid=%s", i.ev.Selector, rid)
}

func (i eventItem) FilterValue() string {
	return strings.ToLower(strings.Join([]string{i.ev.Kind, i.ev.Provider, i.ev.Selector, i.ev.RequestID}, " "))
}

type model struct {
	client   *http.Client
	endpoint string

	state viewState
	list  list.Model
	vp    viewport.Model
	help  help.Model

	events     []Event
	width      int
	height     int
	lastPolled time.Time
	err        error
}

type eventsMsg struct {
	events []Event
	err    error
}

// New builds the bubbletea program that polls endpoint (a running proxy's
// base URL, e.g. http://127.0.0.1:8787) for recent events.
func New(endpoint string, in io.Reader, out io.Writer) *tea.Program {
	m := newModel(endpoint)
	return tea.NewProgram(m, tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
}

func newModel(endpoint string) model {
	d := list.NewDefaultDelegate()
	d.ShowDescription = true
	d.SetSpacing(0)

	l := list.New(nil, d, 0, 0)
	l.Title = "Recent Events"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.SetShowFilter(true)
	l.DisableQuitKeybindings()

	h := help.New()
	h.ShowAll = false

	return model{
		client:   &http.Client{Timeout: 5 * time.Second},
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		state:    stateList,
		list:     l,
		vp:       viewport.New(0, 0),
		help:     h,
	}
}

func (m model) Init() tea.Cmd { return m.pollCmd() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case eventsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.events = msg.events
		items := make([]list.Item, 0, len(msg.events))
		for i := len(msg.events) - 1; i >= 0; i-- {
			items = append(items, eventItem{ev: msg.events[i]})
		}
		m.list.SetItems(items)
		m.lastPolled = time.Now()
		m.err = nil
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case m.state == stateDetail && key.Matches(msg, keys.Back):
			m.state = stateList
			m.resize()
			return m, nil
		case key.Matches(msg, keys.Reload):
			return m, m.pollCmd()
		case m.state == stateList && key.Matches(msg, keys.Open):
			it, ok := m.list.SelectedItem().(eventItem)
			if !ok {
				return m, nil
			}
			m.vp.SetContent(formatEvent(it.ev))
			m.vp.GotoTop()
			m.state = stateDetail
			m.resize()
			return m, nil
		}
	}

	switch m.state {
	case stateList:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	case stateDetail:
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m model) View() string {
	var b strings.Builder
	switch m.state {
	case stateList:
		header := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Recent Events  endpoint=%s", m.endpoint))
		b.WriteString(header + "\n")
		if !m.lastPolled.IsZero() {
			b.WriteString(lipgloss.NewStyle().Faint(true).Render("polled: "+m.lastPolled.Format(time.RFC3339)) + "\n")
		}
		if m.err != nil {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("error: "+m.err.Error()) + "\n\n")
		}
		b.WriteString(m.list.View() + "\n")
		b.WriteString(m.help.View(keys))
		return b.String()
	case stateDetail:
		b.WriteString(lipgloss.NewStyle().Bold(true).Render("Event Detail") + "\n")
		b.WriteString(m.vp.View() + "\n")
		b.WriteString(m.help.View(keys))
		return b.String()
	default:
		return ""
	}
}

func (m *model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	helpHeight := 1
	switch m.state {
	case stateList:
		headerLines := 2
		if m.err != nil {
			headerLines += 2
		}
		avail := m.height - headerLines - helpHeight
		if avail < 5 {
			avail = 5
		}
		m.list.SetSize(m.width, avail)
	case stateDetail:
		avail := m.height - 1 - helpHeight
		if avail < 5 {
			avail = 5
		}
		m.vp.Width = m.width
		m.vp.Height = avail
	}
}

func (m model) pollCmd() tea.Cmd {
	client := m.client
	url := m.endpoint + "/debug/recent"
	return func() tea.Msg {
		events, err := fetchEvents(client, url)
		return eventsMsg{events: events, err: err}
	}
}

func fetchEvents(client *http.Client, url string) ([]Event, error) {
	resp, err := client.Get(url) // #nosec G107 -- operator-supplied local proxy address.
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	var payload struct {
		Events []Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding /debug/recent: %w", err)
	}
	return payload.Events, nil
}

func formatEvent(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "time:       %s\n", ev.Time.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "kind:       %s\n", ev.Kind)
	fmt.Fprintf(&b, "request_id: %s\n", ev.RequestID)
	fmt.Fprintf(&b, "provider:   %s\n", ev.Provider)
	fmt.Fprintf(&b, "selector:   %s\n", ev.Selector)
	fmt.Fprintf(&b, "status:     %d\n", ev.StatusCode)
	fmt.Fprintf(&b, "latency_ms: %d\n", ev.LatencyMs)
	fmt.Fprintf(&b, "message:    %s\n", ev.Message)
	fmt.Fprintf(&b, "detail:     %s\n", ev.Detail)
	return b.String()
}
