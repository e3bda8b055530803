package contracts

import "time"

// RankedSymbol represents an asset with ranking information passed from
// preselection to the membership policy.
// ⭐ SSOT: 프리셀렉션 → 멤버십 랭킹 결과 전달
type RankedSymbol struct {
	Symbol string  `json:"symbol"`
	Rank   int     `json:"rank"`  // 1-based, 1 = best
	Score  float64 `json:"score"` // factor score used for the ranking
}

// IsTopRanked checks if the symbol is in top N ranks
func (r *RankedSymbol) IsTopRanked(n int) bool {
	return r.Rank <= n && r.Rank > 0
}

// ScoreSet holds factor scores for a universe as of a single date.
// Assets with too little history are carried in Insufficient with a reason,
// never as a numeric score: a score of 0.0 is a legitimate value.
type ScoreSet struct {
	AsOf         time.Time          `json:"as_of"`
	Scores       map[string]float64 `json:"scores"`
	Insufficient map[string]string  `json:"insufficient"` // symbol -> reason
}

// NewScoreSet creates an empty score set for a date
func NewScoreSet(asOf time.Time) *ScoreSet {
	return &ScoreSet{
		AsOf:         asOf,
		Scores:       make(map[string]float64),
		Insufficient: make(map[string]string),
	}
}

// Count returns the number of scored assets (excluding insufficient ones)
func (s *ScoreSet) Count() int {
	return len(s.Scores)
}
