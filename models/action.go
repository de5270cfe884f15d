package models

// ActionKind 请求代理做出的动作类型
type ActionKind string

const (
	ActionSeerCheck  ActionKind = "check"      // 预言家查验
	ActionWolfKill   ActionKind = "kill"       // 狼人刀人
	ActionWitch      ActionKind = "witch"      // 女巫用药
	ActionHunterShot ActionKind = "shoot"      // 猎人开枪
	ActionLastWords  ActionKind = "last_words" // 遗言
	ActionSpeech     ActionKind = "speech"     // 白天发言
	ActionVote       ActionKind = "vote"       // 放逐投票
	ActionMVPVote    ActionKind = "mvp_vote"   // MVP 投票
)

// DecisionKind 代理返回的决定类型
type DecisionKind string

const (
	DecisionTarget DecisionKind = "target" // 选择目标
	DecisionPass   DecisionKind = "pass"   // 放弃
	DecisionSave   DecisionKind = "save"   // 女巫救人
	DecisionPoison DecisionKind = "poison" // 女巫毒人
	DecisionSpeech DecisionKind = "speech" // 发言
)

// MenuItem 一个合法选项及可选目标
type MenuItem struct {
	Kind    DecisionKind `json:"kind"`
	Targets []int        `json:"targets,omitempty"`
}

// PrivateKnowledge 只对请求对象可见的信息
type PrivateKnowledge struct {
	Role        Role            `json:"role"`
	Teammates   []int           `json:"teammates,omitempty"`    // 狼人队友
	SeerResults map[int]Faction `json:"seer_results,omitempty"` // 预言家历史查验
	Witch       *WitchResources `json:"witch,omitempty"`
	WolfTarget  int             `json:"wolf_target"`           // 女巫可见的刀口
	DeathCause  CauseOfDeath    `json:"death_cause,omitempty"` // 猎人死因
}

// Request 发给代理的决策请求
type Request struct {
	GameID     string           `json:"game_id"`
	RequestID  string           `json:"request_id,omitempty"`
	Player     int              `json:"player"`
	Role       Role             `json:"role"`
	Phase      Phase            `json:"phase"`
	Night      int              `json:"night"`
	Kind       ActionKind       `json:"kind"`
	Roster     []PublicPlayer   `json:"roster"`
	Private    PrivateKnowledge `json:"private"`
	Menu       []MenuItem       `json:"menu"`
	Transcript []Speech         `json:"transcript,omitempty"`
	Feedback   string           `json:"feedback,omitempty"` // 上次选择被拒绝的原因
}

// Allows 菜单中是否包含该决定
func (r Request) Allows(d Decision) bool {
	for _, item := range r.Menu {
		if item.Kind != d.Kind {
			continue
		}
		if d.Kind != DecisionTarget && d.Kind != DecisionPoison && d.Kind != DecisionSave {
			return true
		}
		for _, t := range item.Targets {
			if t == d.Target {
				return true
			}
		}
	}
	return false
}

// Decision 代理返回的决定
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Target int          `json:"target"`
	Text   string       `json:"text,omitempty"`
}

// Pass 放弃
func Pass() Decision {
	return Decision{Kind: DecisionPass, Target: NoPlayer}
}

// Target 选择目标
func Target(id int) Decision {
	return Decision{Kind: DecisionTarget, Target: id}
}

// Say 发言
func Say(text string) Decision {
	return Decision{Kind: DecisionSpeech, Target: NoPlayer, Text: text}
}
