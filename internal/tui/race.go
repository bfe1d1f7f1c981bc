package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"

	"github.com/verte-zerg/typerace/internal/model"
	"github.com/verte-zerg/typerace/internal/room"
	"github.com/verte-zerg/typerace/internal/scoring"
	"github.com/verte-zerg/typerace/internal/session"
	statsPkg "github.com/verte-zerg/typerace/internal/stats"
)

const (
	laneNameWidth = 14
	minBarWidth   = 10
	maxBarWidth   = 50
)

type roomMsg struct {
	room *model.Room
}

type roomClosedMsg struct{}

type raceWriteMsg struct {
	progress int
	err      error
}

type raceStatusMsg struct {
	err error
}

type raceState struct {
	rooms  *room.Service
	sub    *room.Subscription
	roomID string
	userID string
	room   *model.Room
	bar    progress.Model

	// sent is the last progress value stored for this player; sending is
	// true while a write is in flight.
	sent    int
	sending bool

	markedPlaying bool
	closing       bool
}

// NewRaceModel constructs a typing model bound to a multiplayer room. The
// model stays subscribed to the room until Close.
func NewRaceModel(ctx context.Context, opts Options, rooms *room.Service, roomID string, submitter *scoring.Submitter, history statsPkg.SessionLister) (*Model, error) {
	snap, err := rooms.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Players[opts.UserID]; !ok {
		return nil, room.ErrNotMember
	}
	if strings.TrimSpace(snap.Text) == "" {
		return nil, fmt.Errorf("room %s has no race text", roomID)
	}
	opts.Words = len(strings.Fields(snap.Text))
	opts.Ranked = true
	m, err := NewModel(opts, session.FixedText(snap.Text), submitter, history)
	if err != nil {
		return nil, err
	}
	sub, err := rooms.Subscribe(ctx, roomID)
	if err != nil {
		return nil, err
	}
	m.race = &raceState{
		rooms:  rooms,
		sub:    sub,
		roomID: roomID,
		userID: opts.UserID,
		room:   snap,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(30)),
		sent:   -1,
	}
	return m, nil
}

// Close releases the room subscription.
func (m *Model) Close() {
	if m.race != nil {
		m.race.sub.Close()
	}
}

func (r *raceState) wait() tea.Cmd {
	updates := r.sub.Updates()
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return roomClosedMsg{}
		}
		return roomMsg{room: snap}
	}
}

func (r *raceState) resize(width int) {
	r.bar.Width = min(max(width-laneNameWidth-24, minBarWidth), maxBarWidth)
}

func (r *raceState) isHost() bool {
	return r.room != nil && r.room.HostID == r.userID
}

func (r *raceState) playing() bool {
	return r.room != nil && r.room.Status == model.RoomPlaying
}

// finishPlace is this player's place by finishing order.
func (r *raceState) finishPlace() int {
	if r.room == nil {
		return 1
	}
	ahead := lo.CountBy(lo.Values(r.room.Players), func(p model.Player) bool {
		return p.ID != r.userID && p.Status == model.PlayerFinished
	})
	return ahead + 1
}

func (m *Model) handleRoom(msg roomMsg) tea.Cmd {
	r := m.race
	r.room = msg.room
	cmds := []tea.Cmd{r.wait()}
	if r.room == nil {
		return tea.Batch(cmds...)
	}
	if r.room.Status == model.RoomPlaying && !r.markedPlaying {
		r.markedPlaying = true
		cmds = append(cmds, r.setPlayerStatus(model.PlayerPlaying))
	}
	if r.isHost() && !r.closing && r.room.Status == model.RoomPlaying && allFinished(r.room) {
		r.closing = true
		cmds = append(cmds, r.setGameStatus(model.RoomFinished))
	}
	return tea.Batch(cmds...)
}

func allFinished(rm *model.Room) bool {
	if len(rm.Players) == 0 {
		return false
	}
	return lo.EveryBy(lo.Values(rm.Players), func(p model.Player) bool {
		return p.Status == model.PlayerFinished
	})
}

// start moves a waiting room into play. Only the host can start a race.
func (r *raceState) start() tea.Cmd {
	if !r.isHost() || r.room.Status != model.RoomWaiting {
		return nil
	}
	rooms, roomID := r.rooms, r.roomID
	return func() tea.Msg {
		ctx := context.Background()
		if err := rooms.SetGameStatus(ctx, roomID, model.RoomStarting); err != nil {
			return raceStatusMsg{err: err}
		}
		return raceStatusMsg{err: rooms.SetGameStatus(ctx, roomID, model.RoomPlaying)}
	}
}

func (r *raceState) setGameStatus(status model.RoomStatus) tea.Cmd {
	rooms, roomID := r.rooms, r.roomID
	return func() tea.Msg {
		return raceStatusMsg{err: rooms.SetGameStatus(context.Background(), roomID, status)}
	}
}

func (r *raceState) setPlayerStatus(status model.PlayerStatus) tea.Cmd {
	rooms, roomID, userID := r.rooms, r.roomID, r.userID
	return func() tea.Msg {
		return raceStatusMsg{err: rooms.SetPlayerStatus(context.Background(), roomID, userID, status)}
	}
}

// reportProgress writes the player's progress when it changed. At most one
// write is in flight; a newer value is sent once it completes.
func (m *Model) reportProgress() tea.Cmd {
	r := m.race
	p := m.sess.Progress()
	if r.sending || p == r.sent {
		return nil
	}
	r.sending = true
	return r.writeProgress(p, m.sess.Metrics().NetWPM)
}

func (r *raceState) writeProgress(p int, wpm float64) tea.Cmd {
	rooms, roomID, userID := r.rooms, r.roomID, r.userID
	return func() tea.Msg {
		err := rooms.UpdateProgress(context.Background(), roomID, userID, p, wpm)
		return raceWriteMsg{progress: p, err: err}
	}
}

func (m *Model) handleRaceWrite(msg raceWriteMsg) tea.Cmd {
	r := m.race
	r.sending = false
	if msg.err != nil {
		m.log.Errorf("progress update failed: %v", msg.err)
		return nil
	}
	r.sent = msg.progress
	return m.reportProgress()
}

// finishCmd stores the final progress and marks the player finished.
func (r *raceState) finishCmd(p int, wpm float64) tea.Cmd {
	rooms, roomID, userID := r.rooms, r.roomID, r.userID
	return func() tea.Msg {
		ctx := context.Background()
		if err := rooms.UpdateProgress(ctx, roomID, userID, p, wpm); err != nil {
			return raceStatusMsg{err: err}
		}
		return raceStatusMsg{err: rooms.SetPlayerStatus(ctx, roomID, userID, model.PlayerFinished)}
	}
}

func (r *raceState) view() string {
	if r.room == nil {
		return rejectedStyle.Render("Room closed")
	}
	lines := []string{footerStyle.Render(r.header())}
	for _, p := range room.Standings(r.room) {
		lines = append(lines, r.lane(p))
	}
	return strings.Join(lines, "\n")
}

func (r *raceState) header() string {
	head := fmt.Sprintf("Room %s · %d racers · ", r.roomID, len(r.room.Players))
	switch r.room.Status {
	case model.RoomWaiting:
		if r.isHost() {
			return head + "press Enter to start"
		}
		return head + "waiting for host"
	case model.RoomStarting:
		return head + "starting..."
	case model.RoomPlaying:
		return head + "go!"
	default:
		if place := room.Place(r.room, r.userID); place > 0 {
			return head + fmt.Sprintf("finished · you placed #%d by wpm", place)
		}
		return head + "finished"
	}
}

func (r *raceState) lane(p model.Player) string {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	name = runewidth.FillRight(runewidth.Truncate(name, laneNameWidth, "…"), laneNameWidth)
	marker := " "
	if p.ID == r.userID {
		marker = ">"
	}
	status := ""
	if p.Status == model.PlayerFinished {
		status = " done"
	}
	return fmt.Sprintf("%s %s %s %5.1f wpm%s", marker, name, r.bar.ViewAs(float64(p.Progress)/100), p.WPM, status)
}
