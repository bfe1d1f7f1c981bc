package scoring

import "math"

// StartingMMR is the rating a player has before their first ranked result.
const StartingMMR = 1200

// Rank is a named MMR band.
type Rank string

const (
	Bronze      Rank = "Bronze"
	Silver      Rank = "Silver"
	Gold        Rank = "Gold"
	Platinum    Rank = "Platinum"
	Diamond     Rank = "Diamond"
	Master      Rank = "Master"
	Grandmaster Rank = "Grandmaster"
)

// RankFor maps an MMR value to its band.
func RankFor(mmr int) Rank {
	switch {
	case mmr < 1000:
		return Bronze
	case mmr < 1500:
		return Silver
	case mmr < 2000:
		return Gold
	case mmr < 2500:
		return Platinum
	case mmr < 3000:
		return Diamond
	case mmr < 3500:
		return Master
	default:
		return Grandmaster
	}
}

// MMRDelta returns the rating change for one ranked result. A first place
// earns a bonus, ratings above 2000 gain at half rate, and no single result
// costs more than 20.
func MMRDelta(current int, wpm float64, accuracy int, place int) int {
	gain := (wpm - 30) * (float64(accuracy) / 100)
	if place == 1 {
		gain += 20
	}
	if current > 2000 {
		gain *= 0.5
	}
	return int(math.Floor(math.Max(-20, gain)))
}
