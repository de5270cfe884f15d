package services

import (
	"sort"

	"github.com/qianlnk/autowolf/models"
)

// VoteResult 投票统计结果
type VoteResult struct {
	Counts     map[int]int `json:"counts"`
	Eliminated int         `json:"eliminated"`
	Tie        bool        `json:"tie"`
	MaxVotes   int         `json:"max_votes"`
	Leaders    []int       `json:"leaders,omitempty"`
}

// Tally 统计放逐投票：票数严格最多者出局，并列最高则无人出局。
// 死亡玩家的投票和投给死亡玩家的票不计入；弃票用 NoPlayer 表示
func Tally(votes map[int]int, alive map[int]bool) VoteResult {
	result := VoteResult{Counts: make(map[int]int), Eliminated: models.NoPlayer}
	for voter, target := range votes {
		if !alive[voter] || !alive[target] {
			continue
		}
		result.Counts[target]++
	}

	for target, n := range result.Counts {
		switch {
		case n > result.MaxVotes:
			result.MaxVotes = n
			result.Leaders = []int{target}
		case n == result.MaxVotes:
			result.Leaders = append(result.Leaders, target)
		}
	}
	sort.Ints(result.Leaders)

	switch len(result.Leaders) {
	case 0:
	case 1:
		result.Eliminated = result.Leaders[0]
	default:
		result.Tie = true
	}
	return result
}

// collapseWolfVotes 狼人投票合并为一个刀口：多数优先，平票时取编号最小的狼所投的目标
func collapseWolfVotes(votes map[int]int) int {
	counts := make(map[int]int)
	for _, target := range votes {
		if target != models.NoPlayer {
			counts[target]++
		}
	}
	if len(counts) == 0 {
		return models.NoPlayer
	}

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}

	wolves := make([]int, 0, len(votes))
	for wolf := range votes {
		wolves = append(wolves, wolf)
	}
	sort.Ints(wolves)
	for _, wolf := range wolves {
		if t := votes[wolf]; t != models.NoPlayer && counts[t] == max {
			return t
		}
	}
	return models.NoPlayer
}

// LastWordsEligible 遗言资格：首夜所有死者都有遗言；之后只有单人死亡时才有
func LastWordsEligible(night int, deaths []models.Death) []int {
	if len(deaths) == 0 {
		return nil
	}
	if night != 1 && len(deaths) != 1 {
		return nil
	}

	ids := make([]int, 0, len(deaths))
	for _, d := range deaths {
		ids = append(ids, d.Player)
	}
	return ids
}

// SpeakingOrder 发言顺序：从昨夜编号最大的死者的下一位开始循环；平安夜从最小编号开始
func SpeakingOrder(alive []int, nightDeaths []models.Death) []int {
	order := append([]int(nil), alive...)
	sort.Ints(order)
	if len(nightDeaths) == 0 || len(order) == 0 {
		return order
	}

	last := nightDeaths[0].Player
	for _, d := range nightDeaths[1:] {
		if d.Player > last {
			last = d.Player
		}
	}

	start := 0
	for i, id := range order {
		if id > last {
			start = i
			break
		}
	}
	return append(order[start:], order[:start]...)
}
