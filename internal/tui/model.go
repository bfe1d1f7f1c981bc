// Package tui provides the Bubble Tea typing interface.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/typerace/internal/model"
	"github.com/verte-zerg/typerace/internal/scoring"
	"github.com/verte-zerg/typerace/internal/session"
	statsPkg "github.com/verte-zerg/typerace/internal/stats"
)

// Options configures a typing model.
type Options struct {
	UserID   string
	Lang     string
	Words    int
	Duration time.Duration
	Ranked   bool
}

// Model implements the Bubble Tea typing UI.
type Model struct {
	opts      Options
	sess      *session.Session
	submitter *scoring.Submitter
	history   statsPkg.SessionLister
	log       *logrus.Entry

	width  int
	height int

	input []rune

	submitting bool
	result     *scoring.Result
	submitErr  error

	hasLast  bool
	lastWPM  float64
	lastAcc  int
	allWPM   float64
	allAcc   float64
	allCount int

	race *raceState
}

type tickMsg struct {
	epoch uint64
}

type submittedMsg struct {
	epoch  uint64
	result scoring.Result
	err    error
}

var (
	correctStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	incorrectStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	currentWordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	footerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	acceptedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	rejectedStyle    = incorrectStyle.Bold(true)
)

// NewModel constructs a solo typing model. history may be nil.
func NewModel(opts Options, source session.TargetSource, submitter *scoring.Submitter, history statsPkg.SessionLister) (*Model, error) {
	sess, err := session.New(source, opts.Words, opts.Duration)
	if err != nil {
		return nil, err
	}
	m := &Model{
		opts:      opts,
		sess:      sess,
		submitter: submitter,
		history:   history,
		log:       logrus.WithField("component", "tui"),
	}
	m.loadFooterStats()
	return m, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	if m.race != nil {
		return m.race.wait()
	}
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.race != nil {
			m.race.resize(msg.Width)
		}
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tickMsg:
		return m, m.handleTick(msg)
	case submittedMsg:
		m.handleSubmitted(msg)
		return m, nil
	case roomMsg:
		return m, m.handleRoom(msg)
	case roomClosedMsg:
		return m, nil
	case raceWriteMsg:
		return m, m.handleRaceWrite(msg)
	case raceStatusMsg:
		if msg.err != nil {
			m.log.Errorf("room status change failed: %v", msg.err)
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return tea.Quit
	case tea.KeyTab:
		if m.race == nil {
			m.restart()
		}
		return nil
	case tea.KeyEnter:
		if m.race != nil {
			return m.race.start()
		}
		if m.sess.State() == model.SessionFinished {
			m.restart()
		}
		return nil
	case tea.KeyBackspace, tea.KeyDelete:
		if len(m.input) == 0 || !m.canType() {
			return nil
		}
		m.input = m.input[:len(m.input)-1]
		return m.applyInput()
	case tea.KeySpace:
		return m.typeRunes([]rune{' '}, false)
	case tea.KeyRunes:
		return m.typeRunes(msg.Runes, msg.Paste)
	default:
		return nil
	}
}

func (m *Model) canType() bool {
	if m.sess.State() == model.SessionFinished {
		return false
	}
	return m.race == nil || m.race.playing()
}

func (m *Model) typeRunes(runes []rune, paste bool) tea.Cmd {
	if !m.canType() {
		return nil
	}
	if paste {
		m.sess.NotePaste()
	}
	free := len([]rune(m.sess.Target())) - len(m.input)
	if free <= 0 {
		return nil
	}
	if len(runes) > free {
		runes = runes[:free]
	}
	m.input = append(m.input, runes...)
	return m.applyInput()
}

func (m *Model) applyInput() tea.Cmd {
	before := m.sess.State()
	m.sess.AcceptInput(string(m.input))
	after := m.sess.State()

	var cmds []tea.Cmd
	if before == model.SessionIdle && after != model.SessionIdle {
		cmds = append(cmds, m.tick())
	}
	if m.race != nil {
		cmds = append(cmds, m.reportProgress())
	}
	if before != model.SessionFinished && after == model.SessionFinished {
		cmds = append(cmds, m.finish())
	}
	return tea.Batch(cmds...)
}

func (m *Model) tick() tea.Cmd {
	epoch := m.sess.Epoch()
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{epoch: epoch}
	})
}

func (m *Model) handleTick(msg tickMsg) tea.Cmd {
	if !m.sess.TickEpoch(msg.epoch) {
		return nil
	}
	if m.sess.State() == model.SessionFinished {
		return m.finish()
	}
	return m.tick()
}

func (m *Model) finish() tea.Cmd {
	m.submitting = true
	epoch := m.sess.Epoch()
	sub := scoring.Submission{
		UserID: m.opts.UserID,
		Lang:   m.opts.Lang,
		Mode:   "solo",
		Ranked: m.opts.Ranked,
		Result: m.sess.Result(),
	}
	var cmds []tea.Cmd
	if m.race != nil {
		sub.Mode = "race"
		sub.RoomID = m.race.roomID
		sub.Place = m.race.finishPlace()
		cmds = append(cmds, m.race.finishCmd(m.sess.Progress(), m.sess.Metrics().NetWPM))
	}
	submitter := m.submitter
	cmds = append(cmds, func() tea.Msg {
		res, err := submitter.Submit(context.Background(), sub)
		return submittedMsg{epoch: epoch, result: res, err: err}
	})
	return tea.Batch(cmds...)
}

func (m *Model) handleSubmitted(msg submittedMsg) {
	if msg.epoch != m.sess.Epoch() {
		return
	}
	m.submitting = false
	if msg.err != nil {
		m.log.Errorf("failed to submit session: %v", msg.err)
		m.submitErr = msg.err
	}
	res := msg.result
	m.result = &res
	if res.Accepted {
		metrics := m.sess.Metrics()
		m.recordLast(metrics.NetWPM, metrics.Accuracy)
	}
}

func (m *Model) restart() {
	m.sess.Reset()
	m.input = nil
	m.submitting = false
	m.result = nil
	m.submitErr = nil
}

func (m *Model) loadFooterStats() {
	if m.history == nil {
		return
	}
	sessions, err := m.history.ListSessions(context.Background(), model.StatsConfig{Lang: m.opts.Lang, AcceptedOnly: true})
	if err != nil {
		m.log.Errorf("failed to load session stats: %v", err)
		return
	}
	if len(sessions) == 0 {
		return
	}
	last := sessions[len(sessions)-1]
	m.lastWPM = last.NetWPM
	m.lastAcc = last.Accuracy
	m.hasLast = true
	sum := statsPkg.Summarize(sessions)
	m.allWPM = sum.AvgWPM
	m.allAcc = sum.AvgAccuracy
	m.allCount = len(sessions)
}

func (m *Model) recordLast(wpm float64, acc int) {
	n := float64(m.allCount)
	m.allWPM = (m.allWPM*n + wpm) / (n + 1)
	m.allAcc = (m.allAcc*n + float64(acc)) / (n + 1)
	m.allCount++
	m.lastWPM = wpm
	m.lastAcc = acc
	m.hasLast = true
}

// View implements tea.Model.
func (m *Model) View() string {
	target := []rune(m.sess.Target())
	if len(target) == 0 {
		return ""
	}
	styledRunes := buildStyledRunes(target, m.input)
	if m.width == 0 || m.height == 0 {
		return renderStyledRunes(styledRunes)
	}
	contentWidth := max(int(float64(m.width)*0.70), 1)
	wrapped := wrapStyledRunes(styledRunes, contentWidth)

	blocks := []string{}
	if m.race != nil {
		blocks = append(blocks, m.race.view(), "")
	}
	blocks = append(blocks, lipgloss.NewStyle().Width(contentWidth).Render(wrapped))
	if verdict := m.renderVerdict(); verdict != "" {
		blocks = append(blocks, "", verdict)
	}
	content := lipgloss.JoinVertical(lipgloss.Center, blocks...)

	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	bodyHeight := m.height - 1
	body := lipgloss.Place(m.width, bodyHeight, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) renderVerdict() string {
	if m.sess.State() != model.SessionFinished {
		return ""
	}
	metrics := m.sess.Metrics()
	summary := fmt.Sprintf("%.1f WPM · %d%%", metrics.NetWPM, metrics.Accuracy)
	switch {
	case m.submitting:
		return footerStyle.Render(summary + " · submitting...")
	case m.submitErr != nil:
		return rejectedStyle.Render(summary + " · not saved: " + m.submitErr.Error())
	case m.result == nil:
		return footerStyle.Render(summary)
	case !m.result.Accepted:
		return rejectedStyle.Render(summary + " · " + m.result.Message)
	}
	line := summary + " · " + m.result.Message
	if m.result.Rank != "" {
		line += fmt.Sprintf(" · MMR %d (%+d) %s", m.result.MMR, m.result.MMRDelta, m.result.Rank)
	}
	hint := "Enter for next text"
	if m.race != nil {
		hint = "Esc to leave"
	}
	return acceptedStyle.Render(line) + "\n" + footerStyle.Render(hint)
}

func (m *Model) renderFooter() string {
	if m.sess.Target() == "" {
		return ""
	}
	metrics := m.sess.Metrics()
	segments := []string{
		fmt.Sprintf("Time %ds", int(m.sess.Remaining().Seconds())),
		fmt.Sprintf("Progress %d%%", m.sess.Progress()),
		fmt.Sprintf("%.1f WPM", metrics.NetWPM),
	}
	if m.hasLast {
		segments = append(segments, fmt.Sprintf("Last %.1f WPM · %d%%", m.lastWPM, m.lastAcc))
	}
	segments = append(segments, fmt.Sprintf("All-time %.1f WPM · %.1f%%", m.allWPM, m.allAcc))
	footer := strings.Join(segments, "  ")
	return footerStyle.Render(footer)
}
