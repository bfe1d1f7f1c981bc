// Package room keeps a multiplayer race room consistent across participants.
//
// Rooms are documents in a shared store. Every participant writes only its
// own player entry, field by field, so concurrent progress updates never
// overwrite each other. Room-level fields are written by the host.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/typerace/internal/docstore"
	"github.com/verte-zerg/typerace/internal/model"
)

var (
	// ErrRoomNotFound is returned when a room does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotMember is returned when a player writes to a room it has not joined.
	ErrNotMember = errors.New("player is not in room")
	// ErrInvalidTransition is returned for status changes that go backwards or skip a step.
	ErrInvalidTransition = errors.New("invalid room status transition")
	// ErrInvalidID is returned for empty ids or ids containing '/'.
	ErrInvalidID = errors.New("invalid id")
)

const roomsRoot = "rooms"

// Documents is the shared document store a Service reads and writes.
type Documents interface {
	Get(ctx context.Context, path string, dst any) error
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	SetIf(ctx context.Context, path string, value any, condPath string, want any) (bool, error)
	UpdateIf(ctx context.Context, path string, fields map[string]any, condPath string, want any) (bool, error)
	Subscribe(ctx context.Context, path string) (*docstore.Subscription, error)
}

// TextSource provides the shared race text for new rooms.
type TextSource interface {
	Target(wordCount int) string
}

// Option customises a Service.
type Option func(*Service)

// WithText makes CreateRoom store a race text of wordCount words.
func WithText(src TextSource, wordCount int) Option {
	return func(s *Service) {
		s.text = src
		s.wordCount = wordCount
	}
}

// WithIDs replaces the room id generator.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements the room protocol over a document store.
type Service struct {
	docs      Documents
	text      TextSource
	wordCount int
	newID     func() string
	now       func() time.Time
	log       *logrus.Entry
}

// NewService returns a Service over docs.
func NewService(docs Documents, opts ...Option) *Service {
	s := &Service{
		docs:  docs,
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
		log:   logrus.WithField("component", "room"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func roomPath(roomID string) string {
	return roomsRoot + "/" + roomID
}

func playerPath(roomID, userID string) string {
	return roomPath(roomID) + "/players/" + userID
}

func statusPath(roomID string) string {
	return roomPath(roomID) + "/status"
}

func validID(id string) error {
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// CreateRoom writes a new waiting room with the host as its only player.
func (s *Service) CreateRoom(ctx context.Context, hostID, hostName, gameMode string) (string, error) {
	if err := validID(hostID); err != nil {
		return "", err
	}
	id := s.newID()
	room := model.Room{
		ID:        id,
		HostID:    hostID,
		GameMode:  gameMode,
		Status:    model.RoomWaiting,
		CreatedAt: s.now().UTC(),
		Players: map[string]model.Player{
			hostID: {
				ID:     hostID,
				Name:   hostName,
				IsHost: true,
				Status: model.PlayerReady,
			},
		},
	}
	if s.text != nil {
		room.Text = s.text.Target(s.wordCount)
	}
	if err := s.docs.Set(ctx, roomPath(id), room); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	s.log.WithField("room", id).Infof("room created by %s (%s)", hostID, gameMode)
	return id, nil
}

// Room returns the current snapshot of a room.
func (s *Service) Room(ctx context.Context, roomID string) (*model.Room, error) {
	if err := validID(roomID); err != nil {
		return nil, err
	}
	var room model.Room
	if err := s.docs.Get(ctx, roomPath(roomID), &room); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room.Players == nil {
		room.Players = map[string]model.Player{}
	}
	return &room, nil
}

// JoinRoom adds userID to a waiting room. It reports false when the room is
// missing or no longer waiting; a storage failure also reports false along
// with the error. Joining twice is accepted without rewriting the entry.
// The player entry is written only while the room is still waiting, so a
// join racing the host's start either lands before it or is refused.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID, userName string) (bool, error) {
	if err := validID(userID); err != nil {
		return false, err
	}
	room, err := s.Room(ctx, roomID)
	if errors.Is(err, ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if room.Status != model.RoomWaiting {
		return false, nil
	}
	if _, ok := room.Players[userID]; ok {
		return true, nil
	}
	player := model.Player{
		ID:     userID,
		Name:   userName,
		IsHost: false,
		Status: model.PlayerReady,
	}
	joined, err := s.docs.SetIf(ctx, playerPath(roomID, userID), player, statusPath(roomID), model.RoomWaiting)
	if err != nil {
		return false, fmt.Errorf("join room: %w", err)
	}
	if !joined {
		s.log.WithField("room", roomID).Infof("%s refused: room left waiting", userID)
		return false, nil
	}
	s.log.WithField("room", roomID).Infof("%s joined", userID)
	return true, nil
}

// UpdateProgress writes the caller's own progress and wpm. Progress is
// clamped to 0..100.
func (s *Service) UpdateProgress(ctx context.Context, roomID, userID string, progress int, wpm float64) error {
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return err
	}
	progress = min(max(progress, 0), 100)
	if wpm < 0 {
		wpm = 0
	}
	if err := s.docs.Update(ctx, playerPath(roomID, userID), map[string]any{
		"progress": progress,
		"wpm":      wpm,
	}); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// SetPlayerStatus writes the caller's own status.
func (s *Service) SetPlayerStatus(ctx context.Context, roomID, userID string, status model.PlayerStatus) error {
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return err
	}
	if err := s.docs.Update(ctx, playerPath(roomID, userID), map[string]any{"status": status}); err != nil {
		return fmt.Errorf("set player status: %w", err)
	}
	return nil
}

func (s *Service) requireMember(ctx context.Context, roomID, userID string) error {
	if err := validID(roomID); err != nil {
		return err
	}
	if err := validID(userID); err != nil {
		return err
	}
	var player model.Player
	if err := s.docs.Get(ctx, playerPath(roomID, userID), &player); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotMember
		}
		return fmt.Errorf("load player: %w", err)
	}
	return nil
}

var nextStatus = map[model.RoomStatus]model.RoomStatus{
	model.RoomWaiting:  model.RoomStarting,
	model.RoomStarting: model.RoomPlaying,
	model.RoomPlaying:  model.RoomFinished,
}

// CanTransition reports whether a room may move from one status to another.
func CanTransition(from, to model.RoomStatus) bool {
	return nextStatus[from] == to
}

// SetGameStatus advances the room lifecycle one step. Setting the current
// status again is a no-op. The write applies only if the status read is
// still current.
func (s *Service) SetGameStatus(ctx context.Context, roomID string, status model.RoomStatus) error {
	room, err := s.Room(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status == status {
		return nil
	}
	if !CanTransition(room.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, room.Status, status)
	}
	fields := map[string]any{"status": status}
	if status == model.RoomPlaying {
		fields["startedAt"] = s.now().UTC()
	}
	applied, err := s.docs.UpdateIf(ctx, roomPath(roomID), fields, statusPath(roomID), room.Status)
	if err != nil {
		return fmt.Errorf("set game status: %w", err)
	}
	if !applied {
		current, err := s.Room(ctx, roomID)
		if err != nil {
			return err
		}
		if current.Status == status {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}
	s.log.WithField("room", roomID).Infof("status %s -> %s", room.Status, status)
	return nil
}
