// Package model defines shared data structures.
package model

import "time"

// Config defines practice settings.
type Config struct {
	Lang     string
	Words    int
	Duration time.Duration
	CapsPct  float64
	PunctPct float64
	PunctSet string
	Policy   string
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Lang         string
	Since        *time.Time
	Last         int
	CurveWindow  int
	AcceptedOnly bool
}

// SessionState is the lifecycle position of a typing session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionActive
	SessionFinished
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionActive:
		return "active"
	case SessionFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// FinishReason records why a session ended.
type FinishReason string

const (
	FinishCompleted FinishReason = "completed"
	FinishTimeout   FinishReason = "timeout"
)

// Keystroke is one accepted forward character.
type Keystroke struct {
	Char rune
	At   time.Time
}

// Metrics are derived from typed text, target text and elapsed time.
type Metrics struct {
	CorrectChars   int
	IncorrectChars int
	RawWPM         float64
	NetWPM         float64
	Accuracy       int
	Elapsed        time.Duration
}

// Verdict is the anti-cheat outcome for one session.
type Verdict struct {
	IsValid        bool
	SuspicionScore int
	Flags          []string
}

// SessionResult is a frozen snapshot of a finished session.
type SessionResult struct {
	Target      string
	Typed       string
	Log         []Keystroke
	Metrics     Metrics
	StartedAt   time.Time
	EndedAt     time.Time
	Reason      FinishReason
	PasteEvents int
}

// SessionStats captures a submitted typing session for storage.
type SessionStats struct {
	UserID         string
	StartedAt      time.Time
	EndedAt        time.Time
	Lang           string
	Mode           string
	RoomID         string
	TargetText     string
	Correct        int
	Incorrect      int
	RawWPM         float64
	NetWPM         float64
	Accuracy       int
	DurationMs     int64
	Accepted       bool
	SuspicionScore int
	Flags          []string
}

// SessionAggregate summarizes a stored session for reporting.
type SessionAggregate struct {
	SessionID      int64
	EndedAt        time.Time
	NetWPM         float64
	RawWPM         float64
	Accuracy       int
	DurationMs     int64
	Accepted       bool
	SuspicionScore int
}

// RoomStatus is the lifecycle position of a multiplayer room.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomStarting RoomStatus = "starting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// PlayerStatus is a racer's own lifecycle position.
type PlayerStatus string

const (
	PlayerReady    PlayerStatus = "ready"
	PlayerPlaying  PlayerStatus = "playing"
	PlayerFinished PlayerStatus = "finished"
)

// Player is one participant entry inside a room.
type Player struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	IsHost   bool         `json:"isHost"`
	Progress int          `json:"progress"`
	WPM      float64      `json:"wpm"`
	Status   PlayerStatus `json:"status"`
}

// Room is the shared multiplayer document.
type Room struct {
	ID        string            `json:"id"`
	HostID    string            `json:"hostId"`
	GameMode  string            `json:"gameMode"`
	Status    RoomStatus        `json:"status"`
	Text      string            `json:"text,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	StartedAt *time.Time        `json:"startedAt,omitempty"`
	Players   map[string]Player `json:"players"`
}
