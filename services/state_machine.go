package services

import (
	"fmt"

	"github.com/qianlnk/autowolf/models"
)

// 合法的阶段转换
var phaseTransitions = map[models.Phase][]models.Phase{
	PhaseSetup: {PhaseNight},
	PhaseNight: {PhaseDay, PhaseEnded},
	PhaseDay:   {PhaseVote},
	PhaseVote:  {PhaseNight, PhaseEnded},
}

// CanTransition 检查阶段转换是否合法
func CanTransition(from, to models.Phase) bool {
	for _, next := range phaseTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine 游戏阶段状态机
type StateMachine struct {
	game *GameState
}

// NewStateMachine 创建状态机实例
func NewStateMachine(game *GameState) *StateMachine {
	return &StateMachine{game: game}
}

// TransitionPhase 转换游戏阶段，进入夜晚时夜数加一
func (sm *StateMachine) TransitionPhase(to models.Phase) error {
	if sm.game.Aborted {
		return ErrGameAborted
	}
	from := sm.game.Phase
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrOutOfOrderPhase, from, to)
	}

	sm.game.Phase = to
	if to == PhaseNight {
		sm.game.Night++
	}
	return nil
}

// End 写入终局结果
func (sm *StateMachine) End(v Verdict) error {
	if !v.Result.Terminal() {
		return fmt.Errorf("%w: 非终局结果 %s", ErrOutOfOrderPhase, v.Result)
	}
	if err := sm.TransitionPhase(PhaseEnded); err != nil {
		return err
	}
	sm.game.Result = v.Result
	sm.game.Reason = v.Reason
	return nil
}

// NightStep 夜晚子阶段
type NightStep int

const (
	StepSeer NightStep = iota
	StepWolves
	StepWitch
	StepHunter
	StepResolved
)

func (s NightStep) String() string {
	switch s {
	case StepSeer:
		return "seer"
	case StepWolves:
		return "wolves"
	case StepWitch:
		return "witch"
	case StepHunter:
		return "hunter"
	case StepResolved:
		return "resolved"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}
