package services

import "github.com/qianlnk/autowolf/models"

// 胜负原因
const (
	ReasonWolvesEliminated = "所有狼人都已出局"
	ReasonGoodEliminated   = "所有好人都已出局"
	ReasonPotionsSpent1v1  = "女巫药剂用尽，狼人与好人一对一"
	ReasonWolvesParity     = "狼人数量大于或等于好人数量"
	ReasonMaxRounds        = "达到最大回合数"
)

// Verdict 胜负判定结果
type Verdict struct {
	Result      models.Result `json:"result"`
	Reason      string        `json:"reason,omitempty"`
	AliveWolves int           `json:"alive_wolves"`
	AliveGood   int           `json:"alive_good"`
}

// EvaluateWin 判定胜负，纯函数，不修改输入
func EvaluateWin(players []models.Player, witch models.WitchResources) Verdict {
	wolves, good := countAlive(players)
	v := Verdict{Result: models.ResultContinue, AliveWolves: wolves, AliveGood: good}

	switch {
	case wolves == 0:
		v.Result, v.Reason = models.ResultGoodWin, ReasonWolvesEliminated
	case good == 0:
		v.Result, v.Reason = models.ResultWolfWin, ReasonGoodEliminated
	case witch.Spent() && wolves == 1 && good == 1:
		v.Result, v.Reason = models.ResultWolfWin, ReasonPotionsSpent1v1
	case wolves >= good:
		v.Result, v.Reason = models.ResultWolfWin, ReasonWolvesParity
	}
	return v
}
