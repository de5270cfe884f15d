package services

import (
	"fmt"

	"github.com/qianlnk/autowolf/models"
)

// SkillManager 技能规则校验，只读取游戏状态，不做修改
type SkillManager struct {
	game *GameState
}

// NewSkillManager 创建技能管理器实例
func NewSkillManager(game *GameState) *SkillManager {
	return &SkillManager{game: game}
}

// UseSeerSkill 预言家查验，返回目标阵营。目标可以是自己
func (sm *SkillManager) UseSeerSkill(seerID int, targetID int) (models.Faction, error) {
	seer, ok := sm.game.Player(seerID)
	if !ok || seer.Role != models.Seer {
		return "", fmt.Errorf("%w: %d号不是预言家", ErrIllegalAction, seerID)
	}
	if !seer.Alive {
		return "", fmt.Errorf("%w: 预言家已死亡", ErrIllegalAction)
	}

	target, ok := sm.game.Player(targetID)
	if !ok || !target.Alive {
		return "", fmt.Errorf("%w: 查验目标%d不存在或已死亡", ErrIllegalAction, targetID)
	}
	return target.Role.Faction(), nil
}

// ValidateWolfTarget 狼刀目标：任意存活玩家，包括狼人自己（自刀）
func (sm *SkillManager) ValidateWolfTarget(targetID int) error {
	if !sm.game.IsAlive(targetID) {
		return fmt.Errorf("%w: 击杀目标%d不存在或已死亡", ErrIllegalAction, targetID)
	}
	return nil
}

// UseWitchSkill 校验女巫当晚的决定，返回用药后的药剂状态
func (sm *SkillManager) UseWitchSkill(witchID int, decision models.WitchDecision, wolfTarget int, res models.WitchResources, night int) (models.WitchResources, error) {
	witch, ok := sm.game.Player(witchID)
	if !ok || witch.Role != models.Witch || !witch.Alive {
		if decision.Action == models.WitchPass {
			return res, nil
		}
		return res, fmt.Errorf("%w: %d号不是存活的女巫", ErrIllegalAction, witchID)
	}

	switch decision.Action {
	case models.WitchPass:
		return res, nil

	case models.WitchSave:
		if res.AntidoteUsed {
			return res, fmt.Errorf("%w: 解药已使用", ErrIllegalAction)
		}
		if wolfTarget == models.NoPlayer {
			return res, fmt.Errorf("%w: 今晚没有刀口", ErrIllegalAction)
		}
		if decision.Target != wolfTarget {
			return res, fmt.Errorf("%w: 只能救今晚被刀的%d号", ErrIllegalAction, wolfTarget)
		}
		if wolfTarget == witchID {
			return res, fmt.Errorf("%w: 女巫不能自救", ErrIllegalAction)
		}
		res.AntidoteUsed = true
		res.AntidoteNight = night
		return res, nil

	case models.WitchPoison:
		if res.PoisonUsed {
			return res, fmt.Errorf("%w: 毒药已使用", ErrIllegalAction)
		}
		if !sm.game.IsAlive(decision.Target) {
			return res, fmt.Errorf("%w: 毒药目标%d不存在或已死亡", ErrIllegalAction, decision.Target)
		}
		if decision.Target == witchID {
			return res, fmt.Errorf("%w: 女巫不能毒自己", ErrIllegalAction)
		}
		if decision.Target == wolfTarget {
			return res, fmt.Errorf("%w: 不能毒今晚的刀口", ErrIllegalAction)
		}
		res.PoisonUsed = true
		res.PoisonNight = night
		return res, nil

	default:
		return res, fmt.Errorf("%w: 无效的女巫动作 %q", ErrIllegalAction, decision.Action)
	}
}

// HunterCanShoot 猎人开枪条件：死者是猎人，死因为狼刀或放逐，且枪未用过
func (sm *SkillManager) HunterCanShoot(playerID int, cause models.CauseOfDeath) bool {
	p, ok := sm.game.Player(playerID)
	if !ok || p.Role != models.Hunter || sm.game.HunterShot {
		return false
	}
	return cause == models.CauseWolfKill || cause == models.CauseVote
}

// UseHunterSkill 校验猎人开枪目标，excluded 为本轮已确定死亡的玩家
func (sm *SkillManager) UseHunterSkill(hunterID int, targetID int, excluded map[int]bool) error {
	if targetID == hunterID {
		return fmt.Errorf("%w: 猎人不能射击自己", ErrIllegalAction)
	}
	if !sm.game.IsAlive(targetID) || excluded[targetID] {
		return fmt.Errorf("%w: 射击目标%d不存在或已死亡", ErrIllegalAction, targetID)
	}
	return nil
}
