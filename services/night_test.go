package services

import (
	"errors"
	"testing"

	"github.com/qianlnk/autowolf/models"
)

func nightGame(t *testing.T) *GameState {
	t.Helper()
	game := newTestGame(t)
	if err := NewStateMachine(game).TransitionPhase(PhaseNight); err != nil {
		t.Fatalf("进入夜晚失败: %v", err)
	}
	return game
}

func resolveNight(t *testing.T, e *NightEngine) models.NightOutcome {
	t.Helper()
	outcome, err := e.Resolve()
	if err != nil {
		t.Fatalf("结算失败: %v", err)
	}
	return outcome
}

func TestNightWitchSaves(t *testing.T) {
	game := nightGame(t)
	e := NewNightEngine(game, 1)

	faction, err := e.Seer(0)
	if err != nil || faction != models.FactionWolf {
		t.Fatalf("查验0号 = %s, %v", faction, err)
	}
	if err := e.Wolves(6, map[int]int{0: 6, 1: 6, 2: 7}); err != nil {
		t.Fatalf("狼人刀人失败: %v", err)
	}
	if e.WolfTarget() != 6 {
		t.Fatalf("刀口 = %d", e.WolfTarget())
	}
	if err := e.Witch(models.WitchDecision{Action: models.WitchSave, Target: 6}); err != nil {
		t.Fatalf("女巫救人失败: %v", err)
	}
	if err := e.Hunter(models.NoPlayer); err != nil {
		t.Fatalf("猎人步骤失败: %v", err)
	}

	outcome := resolveNight(t, e)
	if len(outcome.Deaths) != 0 {
		t.Fatalf("平安夜不应有死亡: %+v", outcome.Deaths)
	}
	if !outcome.Witch.AntidoteUsed || outcome.Witch.AntidoteNight != 1 || outcome.Witch.PoisonUsed {
		t.Fatalf("药剂状态 = %+v", outcome.Witch)
	}
	if game.Witch.AntidoteUsed {
		t.Fatal("结算前不应修改游戏状态")
	}

	if err := game.applyNight(outcome); err != nil {
		t.Fatalf("应用结算失败: %v", err)
	}
	if len(game.AliveIDs()) != 10 || !game.Witch.AntidoteUsed {
		t.Fatalf("应用后状态错误: alive=%v witch=%+v", game.AliveIDs(), game.Witch)
	}
	if r := game.SeerResults(); r[0] != models.FactionWolf {
		t.Fatalf("查验记录 = %v", r)
	}
}

func TestNightWitchPoisons(t *testing.T) {
	game := nightGame(t)
	e := NewNightEngine(game, 1)

	_, _ = e.Seer(7)
	_ = e.Wolves(6, nil)
	if err := e.Witch(models.WitchDecision{Action: models.WitchPoison, Target: 0}); err != nil {
		t.Fatalf("女巫毒人失败: %v", err)
	}
	_ = e.Hunter(models.NoPlayer)

	outcome := resolveNight(t, e)
	want := []models.Death{
		{Player: 6, Cause: models.CauseWolfKill, Night: 1},
		{Player: 0, Cause: models.CausePoison, Night: 1},
	}
	if len(outcome.Deaths) != len(want) {
		t.Fatalf("死亡 = %+v", outcome.Deaths)
	}
	for i := range want {
		if outcome.Deaths[i] != want[i] {
			t.Fatalf("第%d个死亡 = %+v, 期望 %+v", i, outcome.Deaths[i], want[i])
		}
	}

	if err := game.applyNight(outcome); err != nil {
		t.Fatalf("应用结算失败: %v", err)
	}
	p, _ := game.Player(0)
	if p.Alive || p.Cause != models.CausePoison || p.DeathNight != 1 {
		t.Fatalf("0号状态 = %+v", p)
	}
}

func TestNightWolfSelfKill(t *testing.T) {
	game := nightGame(t)
	e := NewNightEngine(game, 1)

	_, _ = e.Seer(models.NoPlayer)
	if err := e.Wolves(1, map[int]int{0: 1, 1: 1, 2: 1}); err != nil {
		t.Fatalf("自刀应被允许: %v", err)
	}
	if err := e.Witch(models.WitchDecision{Action: models.WitchPass}); err != nil {
		t.Fatalf("女巫放弃失败: %v", err)
	}
	_ = e.Hunter(models.NoPlayer)

	outcome := resolveNight(t, e)
	if len(outcome.Deaths) != 1 || outcome.Deaths[0].Player != 1 {
		t.Fatalf("死亡 = %+v", outcome.Deaths)
	}
}

func TestNightEmptyKill(t *testing.T) {
	game := nightGame(t)
	e := NewNightEngine(game, 1)

	_, _ = e.Seer(models.NoPlayer)
	_ = e.Wolves(models.NoPlayer, nil)
	err := e.Witch(models.WitchDecision{Action: models.WitchSave, Target: 6})
	if !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("空刀时救人应为非法, 得到 %v", err)
	}
	_ = e.Witch(models.WitchDecision{Action: models.WitchPass})
	_ = e.Hunter(models.NoPlayer)
	if outcome := resolveNight(t, e); len(outcome.Deaths) != 0 {
		t.Fatalf("空刀不应有死亡: %+v", outcome.Deaths)
	}
}

func TestNightIllegalWitch(t *testing.T) {
	tests := []struct {
		name       string
		wolfTarget int
		witch      models.WitchResources
		decision   models.WitchDecision
	}{
		{"救错人", 6, models.WitchResources{}, models.WitchDecision{Action: models.WitchSave, Target: 7}},
		{"自救", 4, models.WitchResources{}, models.WitchDecision{Action: models.WitchSave, Target: 4}},
		{"解药已用", 6, models.WitchResources{AntidoteUsed: true}, models.WitchDecision{Action: models.WitchSave, Target: 6}},
		{"毒刀口", 6, models.WitchResources{}, models.WitchDecision{Action: models.WitchPoison, Target: 6}},
		{"毒自己", 6, models.WitchResources{}, models.WitchDecision{Action: models.WitchPoison, Target: 4}},
		{"毒药已用", 6, models.WitchResources{PoisonUsed: true}, models.WitchDecision{Action: models.WitchPoison, Target: 0}},
		{"毒不存在的玩家", 6, models.WitchResources{}, models.WitchDecision{Action: models.WitchPoison, Target: 12}},
		{"未知动作", 6, models.WitchResources{}, models.WitchDecision{Action: "both", Target: 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			game := nightGame(t)
			game.Witch = tt.witch
			e := NewNightEngine(game, 1)
			_, _ = e.Seer(models.NoPlayer)
			_ = e.Wolves(tt.wolfTarget, nil)

			if err := e.Witch(tt.decision); !errors.Is(err, ErrIllegalAction) {
				t.Fatalf("期望 ErrIllegalAction, 得到 %v", err)
			}
			if e.Step() != StepWitch {
				t.Fatalf("非法动作后子阶段 = %s, 应停留在 witch", e.Step())
			}
		})
	}
}

func TestNightHunterShootsAfterWolfKill(t *testing.T) {
	game := nightGame(t)
	e := NewNightEngine(game, 1)

	_, _ = e.Seer(models.NoPlayer)
	_ = e.Wolves(5, nil)
	_ = e.Witch(models.WitchDecision{Action: models.WitchPoison, Target: 7})

	hunter, pending := e.HunterPending()
	if !pending || hunter != 5 {
		t.Fatalf("猎人应可开枪: %d %v", hunter, pending)
	}
	if _, err := e.Resolve(); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("猎人决定前结算应失败, 得到 %v", err)
	}
	if err := e.Hunter(5); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("猎人不能射自己, 得到 %v", err)
	}
	if err := e.Hunter(7); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("不能射击今晚已死的玩家, 得到 %v", err)
	}
	if err := e.Hunter(0); err != nil {
		t.Fatalf("猎人开枪失败: %v", err)
	}

	outcome := resolveNight(t, e)
	if len(outcome.Deaths) != 3 {
		t.Fatalf("死亡 = %+v", outcome.Deaths)
	}
	last := outcome.Deaths[2]
	if last.Player != 0 || last.Cause != models.CauseHunterShot {
		t.Fatalf("猎人击杀 = %+v", last)
	}
	if h := outcome.Record.Hunter; h == nil || !h.Fired || h.Target != 0 || h.Cause != models.CauseWolfKill {
		t.Fatalf("猎人记录 = %+v", h)
	}

	if err := game.applyNight(outcome); err != nil {
		t.Fatalf("应用结算失败: %v", err)
	}
	if !game.HunterShot {
		t.Fatal("猎人开枪后应标记")
	}
}

func TestNightPoisonedHunterCannotShoot(t *testing.T) {
	game := nightGame(t)
	e := NewNightEngine(game, 1)

	_, _ = e.Seer(models.NoPlayer)
	_ = e.Wolves(6, nil)
	_ = e.Witch(models.WitchDecision{Action: models.WitchPoison, Target: 5})

	if _, pending := e.HunterPending(); pending {
		t.Fatal("被毒的猎人不能开枪")
	}
	if h := e.record.Hunter; h == nil || h.Fired || h.Cause != models.CausePoison {
		t.Fatalf("猎人记录 = %+v", h)
	}
	if err := e.Hunter(0); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("期望 ErrIllegalAction, 得到 %v", err)
	}
	if err := e.Hunter(models.NoPlayer); err != nil {
		t.Fatalf("放弃开枪失败: %v", err)
	}
	resolveNight(t, e)
}

func TestNightOutOfOrder(t *testing.T) {
	game := nightGame(t)
	e := NewNightEngine(game, 1)

	if err := e.Wolves(6, nil); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("预言家之前刀人应失败, 得到 %v", err)
	}
	if err := e.Witch(models.WitchDecision{Action: models.WitchPass}); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("女巫提前行动应失败, 得到 %v", err)
	}
	if _, err := e.Resolve(); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("提前结算应失败, 得到 %v", err)
	}
	_, _ = e.Seer(models.NoPlayer)
	if _, err := e.Seer(0); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("重复查验应失败, 得到 %v", err)
	}
}

func TestNightDeadSeer(t *testing.T) {
	game := nightGame(t)
	game.Players[3].Alive = false
	e := NewNightEngine(game, 1)

	if _, err := e.Seer(0); !errors.Is(err, ErrIllegalAction) {
		t.Fatalf("死亡的预言家不能查验, 得到 %v", err)
	}
	if _, err := e.Seer(models.NoPlayer); err != nil {
		t.Fatalf("跳过查验失败: %v", err)
	}
	if e.Step() != StepWolves {
		t.Fatalf("子阶段 = %s", e.Step())
	}
}

func TestApplyNightRejectsStaleOutcome(t *testing.T) {
	game := nightGame(t)
	e := NewNightEngine(game, 1)
	_, _ = e.Seer(models.NoPlayer)
	_ = e.Wolves(6, nil)
	_ = e.Witch(models.WitchDecision{Action: models.WitchPoison, Target: 7})
	_ = e.Hunter(models.NoPlayer)
	outcome := resolveNight(t, e)

	// 结算期间状态被改动
	changed := game.Clone()
	changed.Players[6].Alive = false
	if err := changed.applyNight(outcome); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("死者重复死亡应失败, 得到 %v", err)
	}

	used := game.Clone()
	used.Witch.PoisonUsed = true
	used.Witch.PoisonNight = 1
	rolledBack := outcome
	rolledBack.Witch.PoisonUsed = false
	if err := used.applyNight(rolledBack); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("药剂回退应失败, 得到 %v", err)
	}

	wrongNight := outcome
	wrongNight.Night = 2
	if err := game.Clone().applyNight(wrongNight); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("夜数不符应失败, 得到 %v", err)
	}

	if err := game.applyNight(outcome); err != nil {
		t.Fatalf("原状态应用失败: %v", err)
	}
	if err := game.applyNight(outcome); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("重复应用应失败, 得到 %v", err)
	}
}

func TestCheckWitchTransition(t *testing.T) {
	both := models.WitchResources{AntidoteUsed: true, AntidoteNight: 2, PoisonUsed: true, PoisonNight: 2}
	if err := checkWitchTransition(models.WitchResources{}, both, 2); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("同一晚用两瓶药应失败, 得到 %v", err)
	}

	saved := models.WitchResources{AntidoteUsed: true, AntidoteNight: 1}
	later := models.WitchResources{AntidoteUsed: true, AntidoteNight: 1, PoisonUsed: true, PoisonNight: 3}
	if err := checkWitchTransition(saved, later, 3); err != nil {
		t.Fatalf("不同夜晚分别用药应允许: %v", err)
	}
	if err := checkWitchTransition(saved, later, 2); !errors.Is(err, ErrOutOfOrderPhase) {
		t.Fatalf("夜数不符应失败, 得到 %v", err)
	}
}
