package domain

import "math"

type TierLevel string

const (
	TierNormal   TierLevel = "normal"
	TierLow      TierLevel = "low"
	TierModerate TierLevel = "moderate"
	TierHigh     TierLevel = "high"
	TierCritical TierLevel = "critical"
)

type Tier struct {
	Level TierLevel `json:"level"`
	Label string    `json:"label"`
	Color string    `json:"color"`
	Rank  int       `json:"rank"`
}

// Ordered highest first; Min is the inclusive lower bound.
var tiers = []struct {
	Min  int
	Tier Tier
}{
	{80, Tier{Level: TierCritical, Label: "危険：即時対応必要", Color: "#B91C1C", Rank: 4}},
	{60, Tier{Level: TierHigh, Label: "高：組織対応必要", Color: "#C2410C", Rank: 3}},
	{40, Tier{Level: TierModerate, Label: "中：注意して対応", Color: "#B45309", Rank: 2}},
	{20, Tier{Level: TierLow, Label: "低：通常クレーム", Color: "#1D4ED8", Rank: 1}},
}

var normalTier = Tier{Level: TierNormal, Label: "正常：適切な要望", Color: "#15803D", Rank: 0}

// Classify maps a 0-100 severity score to its risk tier. Scores outside the
// range fall into the nearest tier.
func Classify(score int) Tier {
	for _, t := range tiers {
		if score >= t.Min {
			return t.Tier
		}
	}
	return normalTier
}

// Tiers lists every tier from lowest to highest.
func Tiers() []Tier {
	out := []Tier{normalTier}
	for i := len(tiers) - 1; i >= 0; i-- {
		out = append(out, tiers[i].Tier)
	}
	return out
}

// ClampSeverity forces a raw score into [0,100] and rounds it. Clamping
// happens before the int conversion, which is undefined out of range.
func ClampSeverity(score float64) int {
	return int(math.Round(math.Max(0, math.Min(100, score))))
}
