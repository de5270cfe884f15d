package models

// NoPlayer 表示"没有玩家"，用于可选目标
const NoPlayer = -1

// Role 游戏角色
type Role string

const (
	Werewolf Role = "werewolf" // 狼人
	Seer     Role = "seer"     // 预言家
	Witch    Role = "witch"    // 女巫
	Hunter   Role = "hunter"   // 猎人
	Villager Role = "villager" // 村民
)

// Roles 全部角色，顺序固定
var Roles = []Role{Werewolf, Seer, Witch, Hunter, Villager}

// Valid 是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case Werewolf, Seer, Witch, Hunter, Villager:
		return true
	default:
		return false
	}
}

// Faction 角色所属阵营
func (r Role) Faction() Faction {
	if r == Werewolf {
		return FactionWolf
	}
	return FactionGood
}

// Faction 阵营
type Faction string

const (
	FactionWolf Faction = "wolf" // 狼人阵营
	FactionGood Faction = "good" // 好人阵营
)

// CauseOfDeath 死因
type CauseOfDeath string

const (
	CauseNone       CauseOfDeath = ""            // 存活
	CauseWolfKill   CauseOfDeath = "wolf_kill"   // 狼刀
	CausePoison     CauseOfDeath = "poison"      // 毒药
	CauseVote       CauseOfDeath = "vote"        // 放逐
	CauseHunterShot CauseOfDeath = "hunter_shot" // 猎人开枪
)

// Phase 游戏阶段
type Phase string

const (
	PhaseSetup Phase = "setup" // 准备
	PhaseNight Phase = "night" // 夜晚
	PhaseDay   Phase = "day"   // 白天发言
	PhaseVote  Phase = "vote"  // 投票
	PhaseEnded Phase = "ended" // 结束
)

// Result 对局结果
type Result string

const (
	ResultContinue Result = "continue" // 继续
	ResultGoodWin  Result = "good_win" // 好人胜利
	ResultWolfWin  Result = "wolf_win" // 狼人胜利
	ResultDraw     Result = "draw"     // 达到最大回合数
)

// Terminal 是否为终局结果
func (r Result) Terminal() bool {
	return r == ResultGoodWin || r == ResultWolfWin || r == ResultDraw
}

// Player 玩家信息
type Player struct {
	ID         int          `json:"id"`
	Name       string       `json:"name"`
	Role       Role         `json:"role"`
	Alive      bool         `json:"alive"`
	Cause      CauseOfDeath `json:"cause,omitempty"`
	DeathNight int          `json:"death_night,omitempty"` // 0 表示存活
}

// PublicPlayer 对所有玩家可见的信息
type PublicPlayer struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
}

// WitchResources 女巫药剂状态
type WitchResources struct {
	AntidoteUsed  bool `json:"antidote_used"`
	PoisonUsed    bool `json:"poison_used"`
	AntidoteNight int  `json:"antidote_night,omitempty"`
	PoisonNight   int  `json:"poison_night,omitempty"`
}

// Spent 两瓶药是否都已用完
func (w WitchResources) Spent() bool {
	return w.AntidoteUsed && w.PoisonUsed
}

// Death 一次死亡
type Death struct {
	Player int          `json:"player"`
	Cause  CauseOfDeath `json:"cause"`
	Night  int          `json:"night"`
}

// SeerQuery 预言家查验
type SeerQuery struct {
	Seer   int     `json:"seer"`
	Target int     `json:"target"`
	Result Faction `json:"result,omitempty"`
}

// WitchAction 女巫的选择
type WitchAction string

const (
	WitchPass   WitchAction = "pass"
	WitchSave   WitchAction = "save"
	WitchPoison WitchAction = "poison"
)

// WitchDecision 女巫当晚的决定
type WitchDecision struct {
	Action WitchAction `json:"action"`
	Target int         `json:"target"`
}

// HunterTrigger 猎人技能触发情况
type HunterTrigger struct {
	Hunter int          `json:"hunter"`
	Cause  CauseOfDeath `json:"cause"`
	Fired  bool         `json:"fired"`
	Target int          `json:"target"`
}

// NightRecord 一晚的完整记录
type NightRecord struct {
	Night      int            `json:"night"`
	SeerQuery  SeerQuery      `json:"seer_query"`
	WolfVotes  map[int]int    `json:"wolf_votes,omitempty"`
	WolfTarget int            `json:"wolf_target"`
	Witch      WitchDecision  `json:"witch"`
	Hunter     *HunterTrigger `json:"hunter,omitempty"`
	Deaths     []Death        `json:"deaths"`
}

// NightOutcome 夜晚结算结果，由调度器应用到游戏状态
type NightOutcome struct {
	Night  int            `json:"night"`
	Deaths []Death        `json:"deaths"`
	Record NightRecord    `json:"record"`
	Witch  WitchResources `json:"witch"`
}

// Speech 一次发言
type Speech struct {
	Player    int    `json:"player"`
	Text      string `json:"text"`
	LastWords bool   `json:"last_words,omitempty"`
}

// DayRecord 一天的完整记录
type DayRecord struct {
	Day               int         `json:"day"`
	Announced         []Death     `json:"announced"`
	LastWordsEligible []int       `json:"last_words_eligible"`
	LastWords         []Speech    `json:"last_words"`
	Speeches          []Speech    `json:"speeches"`
	Votes             map[int]int `json:"votes"`
	Counts            map[int]int `json:"counts"`
	Eliminated        int         `json:"eliminated"`
	Tie               bool        `json:"tie"`
	HunterRevenge     int         `json:"hunter_revenge"`
	Deaths            []Death     `json:"deaths"`
}
