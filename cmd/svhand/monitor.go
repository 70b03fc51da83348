package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/hand"
	"github.com/SCHUNK-SE-Co-KG/schunk-svh-library/pkg/svh"
)

type MonitorCommand struct {
	Interval time.Duration `long:"interval" default:"100ms" description:"Sampling interval"`
	Home     bool          `long:"home" description:"Home all joints before monitoring"`
}

const (
	headerHeight = 2
	legendHeight = 2
	footerHeight = 4
	borderSize   = 2
)

// One distinct color per joint.
var channelColors = map[svh.Channel]string{
	svh.ThumbFlexion:    "196", // red
	svh.ThumbOpposition: "208", // orange
	svh.IndexDistal:     "226", // yellow
	svh.IndexProximal:   "190", // yellow-green
	svh.MiddleDistal:    "46",  // green
	svh.MiddleProximal:  "49",  // spring green
	svh.Ring:            "51",  // cyan
	svh.Pinky:           "33",  // blue
	svh.FingerSpread:    "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type sampleMsg struct {
	positions [svh.Dimension]float64
	currents  [svh.Dimension]float64
}

type monitorModel struct {
	mgr      *hand.Manager
	interval time.Duration
	chart    *streamlinechart.Model
	width    int
	height   int
	last     sampleMsg
	quitting bool
}

func sample(mgr *hand.Manager, interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		var msg sampleMsg
		for _, ch := range svh.AllChannels() {
			if pos, err := mgr.GetPosition(ch); err == nil {
				msg.positions[ch] = pos
			}
			if cur, err := mgr.GetCurrent(ch); err == nil {
				msg.currents[ch] = cur
			}
		}
		return msg
	})
}

func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func initialMonitorModel(mgr *hand.Manager, interval time.Duration) monitorModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 1.4),
	)
	for _, ch := range svh.AllChannels() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(channelColors[ch]))
		chart.SetDataSetStyles(ch.String(), runes.ThinLineStyle, style)
	}
	return monitorModel{mgr: mgr, interval: interval, chart: &chart}
}

func (m monitorModel) Init() tea.Cmd {
	return sample(m.mgr, m.interval)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case sampleMsg:
		m.last = msg
		for _, ch := range svh.AllChannels() {
			m.chart.PushDataSet(ch.String(), msg.positions[ch])
		}
		m.chart.DrawAll()
		return m, sample(m.mgr, m.interval)
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Monitor stopped.\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("SVH Monitor"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  joint angles [rad], sampled every %v", m.interval)))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Current readout per joint.
	var currents []string
	for _, ch := range svh.AllChannels() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(channelColors[ch]))
		currents = append(currents, style.Render(fmt.Sprintf("%.0fmA", m.last.currents[ch])))
	}
	sb.WriteString(statusStyle.Render("currents: "))
	sb.WriteString(strings.Join(currents, " "))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("Press 'q' to quit"))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, ch := range svh.AllChannels() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(channelColors[ch])).Bold(true)
		items = append(items, style.Render("━━")+" "+ch.String())
	}
	return strings.Join(items, "  ")
}

func (c *MonitorCommand) Execute(args []string) error {
	mgr := hand.NewManager(hand.Config{Logger: newLogger()})
	ctx := context.Background()
	if err := mgr.Connect(ctx, opts.Port); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer mgr.Disconnect()

	if c.Home {
		fmt.Println("Homing all joints...")
		if err := mgr.ResetChannel(ctx, svh.All); err != nil {
			return fmt.Errorf("homing: %w", err)
		}
	}

	p := tea.NewProgram(initialMonitorModel(mgr, c.Interval), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run monitor: %w", err)
	}
	return nil
}
