package services

import (
	"sort"

	"github.com/qianlnk/autowolf/models"
)

// MVPResult 终局后的 MVP 投票结果
type MVPResult struct {
	Player      int             `json:"player"` // 无有效票时为 NoPlayer
	Role        models.Role     `json:"role,omitempty"`
	Votes       map[int]int     `json:"votes"`  // 投票人 → 候选人
	Counts      map[int]int     `json:"counts"` // 候选人 → 票数
	Percentages map[int]float64 `json:"percentages"`
	TotalVoters int             `json:"total_voters"`
	Tie         bool            `json:"tie"`
}

// TallyMVP 统计 MVP：得票最多者当选，并列时取编号最小者并标记 Tie。
// 弃票计入总投票人数但不计入任何候选人
func TallyMVP(players []models.Player, votes map[int]int) *MVPResult {
	result := &MVPResult{
		Player:      models.NoPlayer,
		Votes:       make(map[int]int, len(votes)),
		Counts:      make(map[int]int),
		Percentages: make(map[int]float64),
		TotalVoters: len(votes),
	}

	valid := make(map[int]bool, len(players))
	for _, p := range players {
		valid[p.ID] = true
	}
	for voter, target := range votes {
		result.Votes[voter] = target
		if valid[target] {
			result.Counts[target]++
		}
	}

	candidates := make([]int, 0, len(result.Counts))
	for id := range result.Counts {
		candidates = append(candidates, id)
	}
	sort.Ints(candidates)

	max := 0
	for _, id := range candidates {
		n := result.Counts[id]
		switch {
		case n > max:
			max = n
			result.Player = id
			result.Tie = false
		case n == max:
			result.Tie = true
		}
		if result.TotalVoters > 0 {
			result.Percentages[id] = float64(n) / float64(result.TotalVoters) * 100
		}
	}

	if result.Player != models.NoPlayer {
		result.Role = players[result.Player].Role
	}
	return result
}
