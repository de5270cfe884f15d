package services

import (
	"fmt"

	"github.com/qianlnk/autowolf/models"
)

// NightEngine 单晚结算：预言家 → 狼人 → 女巫 → 猎人 → 结算完成。
// 只读取游戏状态，结果以 NightOutcome 返回，由调度器应用。
// 非法输入返回 ErrIllegalAction 且不推进子阶段，可以重新征询。
type NightEngine struct {
	game   *GameState
	skills *SkillManager
	night  int
	step   NightStep
	record models.NightRecord
	witch  models.WitchResources
	deaths []models.Death
}

// NewNightEngine 创建第 night 夜的结算引擎
func NewNightEngine(view *GameState, night int) *NightEngine {
	return &NightEngine{
		game:   view,
		skills: NewSkillManager(view),
		night:  night,
		step:   StepSeer,
		witch:  view.Witch,
		record: models.NightRecord{
			Night:      night,
			SeerQuery:  models.SeerQuery{Seer: models.NoPlayer, Target: models.NoPlayer},
			WolfTarget: models.NoPlayer,
			Witch:      models.WitchDecision{Action: models.WitchPass, Target: models.NoPlayer},
		},
	}
}

// Step 当前子阶段
func (e *NightEngine) Step() NightStep {
	return e.step
}

// Night 夜数
func (e *NightEngine) Night() int {
	return e.night
}

func (e *NightEngine) expect(step NightStep) error {
	if e.step != step {
		return fmt.Errorf("%w: 第%d夜当前为%s，不能执行%s", ErrOutOfOrderPhase, e.night, e.step, step)
	}
	return nil
}

// Seer 预言家查验，target 为 NoPlayer 表示不查验（预言家死亡或放弃）
func (e *NightEngine) Seer(target int) (models.Faction, error) {
	if err := e.expect(StepSeer); err != nil {
		return "", err
	}

	seers := e.game.AliveByRole(models.Seer)
	if target == models.NoPlayer || len(seers) == 0 {
		if target != models.NoPlayer {
			return "", fmt.Errorf("%w: 预言家已死亡", ErrIllegalAction)
		}
		e.step = StepWolves
		return "", nil
	}

	faction, err := e.skills.UseSeerSkill(seers[0], target)
	if err != nil {
		return "", err
	}
	e.record.SeerQuery = models.SeerQuery{Seer: seers[0], Target: target, Result: faction}
	e.step = StepWolves
	return faction, nil
}

// Wolves 狼人集体刀人，target 为 NoPlayer 表示空刀。votes 为每只狼的投票，仅用于记录
func (e *NightEngine) Wolves(target int, votes map[int]int) error {
	if err := e.expect(StepWolves); err != nil {
		return err
	}
	if target != models.NoPlayer {
		if err := e.skills.ValidateWolfTarget(target); err != nil {
			return err
		}
	}

	e.record.WolfTarget = target
	if len(votes) > 0 {
		e.record.WolfVotes = make(map[int]int, len(votes))
		for wolf, t := range votes {
			e.record.WolfVotes[wolf] = t
		}
	}
	e.step = StepWitch
	return nil
}

// WolfTarget 狼人刀口，女巫行动前可见
func (e *NightEngine) WolfTarget() int {
	return e.record.WolfTarget
}

// Witch 女巫用药：救、毒或放弃，同一晚只能选一种
func (e *NightEngine) Witch(decision models.WitchDecision) error {
	if err := e.expect(StepWitch); err != nil {
		return err
	}
	if decision.Action == models.WitchPass {
		decision.Target = models.NoPlayer
	}

	witchID := models.NoPlayer
	if ids := e.game.AliveByRole(models.Witch); len(ids) > 0 {
		witchID = ids[0]
	}
	res, err := e.skills.UseWitchSkill(witchID, decision, e.record.WolfTarget, e.witch, e.night)
	if err != nil {
		return err
	}

	e.witch = res
	e.record.Witch = decision

	if t := e.record.WolfTarget; t != models.NoPlayer && decision.Action != models.WitchSave {
		e.deaths = append(e.deaths, models.Death{Player: t, Cause: models.CauseWolfKill, Night: e.night})
	}
	if decision.Action == models.WitchPoison {
		e.deaths = append(e.deaths, models.Death{Player: decision.Target, Cause: models.CausePoison, Night: e.night})
	}

	for _, d := range e.deaths {
		if p, _ := e.game.Player(d.Player); p.Role == models.Hunter {
			e.record.Hunter = &models.HunterTrigger{
				Hunter: d.Player,
				Cause:  d.Cause,
				Fired:  e.skills.HunterCanShoot(d.Player, d.Cause),
				Target: models.NoPlayer,
			}
		}
	}
	e.step = StepHunter
	return nil
}

// HunterPending 猎人今晚被狼刀，等待开枪决定
func (e *NightEngine) HunterPending() (int, bool) {
	if e.step != StepHunter || e.record.Hunter == nil || !e.record.Hunter.Fired {
		return models.NoPlayer, false
	}
	return e.record.Hunter.Hunter, true
}

// Hunter 猎人开枪，target 为 NoPlayer 表示不开枪
func (e *NightEngine) Hunter(target int) error {
	if err := e.expect(StepHunter); err != nil {
		return err
	}
	hunter, pending := e.HunterPending()
	if !pending {
		if target != models.NoPlayer {
			return fmt.Errorf("%w: 猎人技能未触发", ErrIllegalAction)
		}
		e.step = StepResolved
		return nil
	}

	if target != models.NoPlayer {
		if err := e.skills.UseHunterSkill(hunter, target, e.dyingTonight()); err != nil {
			return err
		}
		e.deaths = append(e.deaths, models.Death{Player: target, Cause: models.CauseHunterShot, Night: e.night})
	}
	e.record.Hunter.Target = target
	e.step = StepResolved
	return nil
}

func (e *NightEngine) dyingTonight() map[int]bool {
	dying := make(map[int]bool, len(e.deaths))
	for _, d := range e.deaths {
		dying[d.Player] = true
	}
	return dying
}

// Resolve 返回当晚结算结果
func (e *NightEngine) Resolve() (models.NightOutcome, error) {
	if e.step == StepHunter {
		if _, pending := e.HunterPending(); pending {
			return models.NightOutcome{}, fmt.Errorf("%w: 猎人尚未决定是否开枪", ErrOutOfOrderPhase)
		}
		e.step = StepResolved
	}
	if err := e.expect(StepResolved); err != nil {
		return models.NightOutcome{}, err
	}

	deaths := append([]models.Death(nil), e.deaths...)
	record := e.record
	record.Deaths = deaths
	return models.NightOutcome{
		Night:  e.night,
		Deaths: deaths,
		Record: record,
		Witch:  e.witch,
	}, nil
}
