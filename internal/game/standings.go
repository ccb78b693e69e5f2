package game

import "sort"

// Standing is one line of a match leaderboard.
type Standing struct {
	Placement  int    `json:"placement"` // 1 = winner
	PlayerID   string `json:"playerId"`
	UserName   string `json:"userName"`
	Score      int    `json:"score"`
	Kills      int    `json:"kills"`
	SpawnCount int    `json:"spawnCount"`
}

// Standings ranks players by score, then kills, then name. Placement is
// always 1..n; exact ties fall back to player id.
func Standings(players []Player) []Standing {
	out := make([]Standing, 0, len(players))
	for _, p := range players {
		out = append(out, Standing{
			PlayerID:   p.PlayerID,
			UserName:   p.UserName,
			Score:      p.Score,
			Kills:      p.Kills,
			SpawnCount: p.SpawnCount,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Kills != b.Kills {
			return a.Kills > b.Kills
		}
		if a.UserName != b.UserName {
			return a.UserName < b.UserName
		}
		return a.PlayerID < b.PlayerID
	})
	for i := range out {
		out[i].Placement = i + 1
	}
	return out
}
