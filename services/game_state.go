package services

import (
	"fmt"

	"github.com/qianlnk/autowolf/models"
)

// GameState 游戏状态，只由 GameController 修改
type GameState struct {
	ID         string                `json:"id"`
	Players    []models.Player       `json:"players"`
	Phase      models.Phase          `json:"phase"`
	Night      int                   `json:"night"`
	Witch      models.WitchResources `json:"witch"`
	HunterShot bool                  `json:"hunter_shot"` // 猎人枪已用
	Nights     []models.NightRecord  `json:"nights"`
	Days       []models.DayRecord    `json:"days"`
	Result     models.Result         `json:"result"`
	Reason     string                `json:"reason,omitempty"`
	Aborted    bool                  `json:"aborted"`
	MVP        *MVPResult            `json:"mvp,omitempty"`
}

// NewGameState 创建游戏状态实例
func NewGameState(id string, registry *RoleRegistry, names []string) *GameState {
	return &GameState{
		ID:      id,
		Players: registry.Players(names),
		Phase:   PhaseSetup,
		Result:  models.ResultContinue,
	}
}

// Player 查找玩家
func (gs *GameState) Player(id int) (models.Player, bool) {
	if id < 0 || id >= len(gs.Players) {
		return models.Player{}, false
	}
	return gs.Players[id], true
}

// IsAlive 玩家是否存活
func (gs *GameState) IsAlive(id int) bool {
	p, ok := gs.Player(id)
	return ok && p.Alive
}

// AliveIDs 存活玩家编号，升序
func (gs *GameState) AliveIDs() []int {
	ids := make([]int, 0, len(gs.Players))
	for _, p := range gs.Players {
		if p.Alive {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// AliveByRole 指定角色的存活玩家
func (gs *GameState) AliveByRole(role models.Role) []int {
	ids := make([]int, 0)
	for _, p := range gs.Players {
		if p.Alive && p.Role == role {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// FindRole 返回第一个该角色的玩家（无论生死）
func (gs *GameState) FindRole(role models.Role) int {
	for _, p := range gs.Players {
		if p.Role == role {
			return p.ID
		}
	}
	return models.NoPlayer
}

// AliveCounts 各阵营存活人数
func (gs *GameState) AliveCounts() (wolves, good int) {
	return countAlive(gs.Players)
}

func countAlive(players []models.Player) (wolves, good int) {
	for _, p := range players {
		if !p.Alive {
			continue
		}
		if p.Role.Faction() == models.FactionWolf {
			wolves++
		} else {
			good++
		}
	}
	return wolves, good
}

// Roster 公开名单
func (gs *GameState) Roster() []models.PublicPlayer {
	roster := make([]models.PublicPlayer, len(gs.Players))
	for i, p := range gs.Players {
		roster[i] = models.PublicPlayer{ID: p.ID, Name: p.Name, Alive: p.Alive}
	}
	return roster
}

// SeerResults 预言家历史查验结果
func (gs *GameState) SeerResults() map[int]models.Faction {
	results := make(map[int]models.Faction)
	for _, n := range gs.Nights {
		if n.SeerQuery.Target != models.NoPlayer && n.SeerQuery.Result != "" {
			results[n.SeerQuery.Target] = n.SeerQuery.Result
		}
	}
	return results
}

// applyDeaths 应用死亡，重复或已死亡的玩家视为内部错误
func (gs *GameState) applyDeaths(deaths []models.Death) error {
	seen := make(map[int]bool, len(deaths))
	for _, d := range deaths {
		if seen[d.Player] {
			return fmt.Errorf("%w: %d号玩家重复死亡", ErrOutOfOrderPhase, d.Player)
		}
		seen[d.Player] = true
		if !gs.IsAlive(d.Player) {
			return fmt.Errorf("%w: %d号玩家已死亡", ErrOutOfOrderPhase, d.Player)
		}
	}
	for _, d := range deaths {
		p := &gs.Players[d.Player]
		p.Alive = false
		p.Cause = d.Cause
		p.DeathNight = d.Night
		if d.Cause == models.CauseHunterShot {
			gs.HunterShot = true
		}
	}
	return nil
}

// applyNight 应用夜晚结算
func (gs *GameState) applyNight(outcome models.NightOutcome) error {
	if gs.Phase != PhaseNight || outcome.Night != gs.Night {
		return fmt.Errorf("%w: 当前阶段%s第%d夜，收到第%d夜结算", ErrOutOfOrderPhase, gs.Phase, gs.Night, outcome.Night)
	}
	if err := checkWitchTransition(gs.Witch, outcome.Witch, outcome.Night); err != nil {
		return err
	}
	if err := gs.applyDeaths(outcome.Deaths); err != nil {
		return err
	}
	gs.Witch = outcome.Witch
	gs.Nights = append(gs.Nights, outcome.Record)
	return nil
}

// checkWitchTransition 药剂只能 false→true 一次，且同一晚不能两瓶都用
func checkWitchTransition(before, after models.WitchResources, night int) error {
	if before.AntidoteUsed && !after.AntidoteUsed || before.PoisonUsed && !after.PoisonUsed {
		return fmt.Errorf("%w: 药剂状态回退", ErrOutOfOrderPhase)
	}
	savedNow := !before.AntidoteUsed && after.AntidoteUsed
	poisonedNow := !before.PoisonUsed && after.PoisonUsed
	if savedNow && poisonedNow {
		return fmt.Errorf("%w: 第%d夜同时使用解药和毒药", ErrOutOfOrderPhase, night)
	}
	if savedNow && after.AntidoteNight != night || poisonedNow && after.PoisonNight != night {
		return fmt.Errorf("%w: 药剂使用夜数不符", ErrOutOfOrderPhase)
	}
	return nil
}

// Clone 深拷贝，供只读视图和快照使用
func (gs *GameState) Clone() *GameState {
	c := *gs
	c.Players = append([]models.Player(nil), gs.Players...)
	c.Nights = append([]models.NightRecord(nil), gs.Nights...)
	c.Days = append([]models.DayRecord(nil), gs.Days...)
	if gs.MVP != nil {
		mvp := *gs.MVP
		c.MVP = &mvp
	}
	return &c
}
