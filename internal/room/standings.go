package room

import (
	"sort"

	"github.com/samber/lo"

	"github.com/verte-zerg/typerace/internal/model"
)

// Standings orders a room's players by progress, then wpm, then name.
func Standings(room *model.Room) []model.Player {
	if room == nil {
		return nil
	}
	players := lo.Values(room.Players)
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if a.Progress != b.Progress {
			return a.Progress > b.Progress
		}
		if a.WPM != b.WPM {
			return a.WPM > b.WPM
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return players
}

// Place returns the 1-based finishing place of userID among players that
// finished, or 0 when the player has not finished.
func Place(room *model.Room, userID string) int {
	if room == nil {
		return 0
	}
	me, ok := room.Players[userID]
	if !ok || me.Status != model.PlayerFinished {
		return 0
	}
	ahead := lo.CountBy(lo.Values(room.Players), func(p model.Player) bool {
		return p.ID != userID && p.Status == model.PlayerFinished && p.WPM > me.WPM
	})
	return ahead + 1
}
