package services

import (
	"context"
	"math/rand"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/qianlnk/autowolf/models"
)

// 性格特征
const (
	PersonalityAggressive = "aggressive" // 激进
	PersonalityCautious   = "cautious"   // 谨慎
	PersonalityStrategic  = "strategic"  // 策略
	PersonalityRandom     = "random"     // 随机
)

// Personalities 全部性格
var Personalities = []string{
	PersonalityAggressive,
	PersonalityCautious,
	PersonalityStrategic,
	PersonalityRandom,
}

var mentionPattern = regexp.MustCompile(`(\d+)号`)

// AIPlayer 启发式 AI 玩家，只根据请求中可见的信息做决定
type AIPlayer struct {
	ID          int
	Personality string

	mutex     sync.Mutex
	rng       *rand.Rand
	dialogue  *AIDialogue
	mentions  map[int]map[int]int // 夜数 → 玩家 → 被点名次数
	speeches  map[int]map[int]int // 夜数 → 玩家 → 发言次数
	seerClaim map[int]bool        // 自称预言家的玩家
}

// NewAIPlayer 创建AI玩家实例，personality 为空时随机选择
func NewAIPlayer(id int, personality string, seed int64) *AIPlayer {
	rng := rand.New(rand.NewSource(seed))
	if personality == "" {
		personality = Personalities[rng.Intn(len(Personalities))]
	}
	return &AIPlayer{
		ID:          id,
		Personality: personality,
		rng:         rng,
		dialogue:    NewAIDialogue(rng),
		mentions:    make(map[int]map[int]int),
		speeches:    make(map[int]map[int]int),
		seerClaim:   make(map[int]bool),
	}
}

// Decide 实现 Agent
func (ai *AIPlayer) Decide(ctx context.Context, req models.Request) (models.Decision, error) {
	if err := ctx.Err(); err != nil {
		return models.Decision{}, err
	}

	ai.mutex.Lock()
	defer ai.mutex.Unlock()

	ai.observe(req)

	switch req.Kind {
	case models.ActionSeerCheck:
		return ai.selectCheckTarget(req), nil
	case models.ActionWolfKill:
		return ai.selectKillTarget(req), nil
	case models.ActionWitch:
		return ai.decideWitchAction(req), nil
	case models.ActionHunterShot:
		return ai.selectShootTarget(req), nil
	case models.ActionVote:
		return ai.selectVoteTarget(req), nil
	case models.ActionMVPVote:
		return ai.selectMVP(req), nil
	case models.ActionSpeech, models.ActionLastWords:
		return models.Say(ai.dialogue.Generate(req, ai.Personality, ai.suspects(req))), nil
	default:
		return models.Pass(), nil
	}
}

// observe 从当天的发言记录中统计点名和发言次数，同一天的记录每次重新计算
func (ai *AIPlayer) observe(req models.Request) {
	if len(req.Transcript) == 0 {
		return
	}
	mentions := make(map[int]int)
	speeches := make(map[int]int)
	for _, s := range req.Transcript {
		speeches[s.Player]++
		for _, m := range mentionPattern.FindAllStringSubmatch(s.Text, -1) {
			if id, err := strconv.Atoi(m[1]); err == nil && id != s.Player {
				mentions[id]++
			}
		}
		if claimsSeer(s.Text) {
			ai.seerClaim[s.Player] = true
		}
	}
	ai.mentions[req.Night] = mentions
	ai.speeches[req.Night] = speeches
}

// suspicion 累计被点名次数，预言家查杀直接视为最可疑
func (ai *AIPlayer) suspicion(req models.Request, id int) int {
	if req.Private.SeerResults[id] == models.FactionWolf {
		return 100
	}
	if req.Private.SeerResults[id] == models.FactionGood {
		return -100
	}
	total := 0
	for _, m := range ai.mentions {
		total += m[id]
	}
	return total
}

func (ai *AIPlayer) activity(id int) int {
	total := 0
	for _, s := range ai.speeches {
		total += s[id]
	}
	return total
}

// suspects 可疑度为正的存活玩家，按可疑度降序
func (ai *AIPlayer) suspects(req models.Request) []int {
	out := make([]int, 0)
	for _, p := range req.Roster {
		if !p.Alive || p.ID == ai.ID || ai.isTeammate(req, p.ID) {
			continue
		}
		if ai.suspicion(req, p.ID) > 0 {
			out = append(out, p.ID)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ai.suspicion(req, out[i]) > ai.suspicion(req, out[j])
	})
	return out
}

func (ai *AIPlayer) isTeammate(req models.Request, id int) bool {
	return contains(req.Private.Teammates, id)
}

// menuTargets 菜单中某类选项的目标
func menuTargets(req models.Request, kind models.DecisionKind) []int {
	for _, item := range req.Menu {
		if item.Kind == kind {
			return item.Targets
		}
	}
	return nil
}

func (ai *AIPlayer) pick(ids []int) int {
	if len(ids) == 0 {
		return models.NoPlayer
	}
	return ids[ai.rng.Intn(len(ids))]
}

// best 按 score 取最高者，并列时随机
func (ai *AIPlayer) best(ids []int, score func(int) int) int {
	if len(ids) == 0 {
		return models.NoPlayer
	}
	top := []int{ids[0]}
	max := score(ids[0])
	for _, id := range ids[1:] {
		switch s := score(id); {
		case s > max:
			max, top = s, []int{id}
		case s == max:
			top = append(top, id)
		}
	}
	return ai.pick(top)
}

func targetOrPass(id int) models.Decision {
	if id == models.NoPlayer {
		return models.Pass()
	}
	return models.Target(id)
}

// selectKillTarget 选择击杀目标，不刀队友
func (ai *AIPlayer) selectKillTarget(req models.Request) models.Decision {
	targets := make([]int, 0)
	for _, id := range menuTargets(req, models.DecisionTarget) {
		if id != ai.ID && !ai.isTeammate(req, id) {
			targets = append(targets, id)
		}
	}

	switch ai.Personality {
	case PersonalityAggressive:
		// 优先击杀自称预言家的玩家
		for _, id := range targets {
			if ai.seerClaim[id] {
				return models.Target(id)
			}
		}
		return targetOrPass(ai.best(targets, ai.activity))
	case PersonalityCautious:
		// 击杀最不受怀疑的玩家
		return targetOrPass(ai.best(targets, func(id int) int { return -ai.suspicion(req, id) }))
	case PersonalityStrategic:
		return targetOrPass(ai.best(targets, ai.activity))
	default:
		return targetOrPass(ai.pick(targets))
	}
}

// selectCheckTarget 选择查验目标，不重复查验
func (ai *AIPlayer) selectCheckTarget(req models.Request) models.Decision {
	targets := make([]int, 0)
	for _, id := range menuTargets(req, models.DecisionTarget) {
		if _, known := req.Private.SeerResults[id]; !known && id != ai.ID {
			targets = append(targets, id)
		}
	}

	switch ai.Personality {
	case PersonalityAggressive:
		return targetOrPass(ai.best(targets, func(id int) int { return ai.suspicion(req, id) }))
	case PersonalityCautious:
		// 优先查验安静的玩家
		return targetOrPass(ai.best(targets, func(id int) int { return -ai.activity(id) }))
	default:
		return targetOrPass(ai.pick(targets))
	}
}

// decideWitchAction 决定女巫行动
func (ai *AIPlayer) decideWitchAction(req models.Request) models.Decision {
	save := menuTargets(req, models.DecisionSave)
	canSave := len(save) > 0
	poisonTargets := menuTargets(req, models.DecisionPoison)
	suspects := intersect(ai.suspects(req), poisonTargets)

	poison := func() models.Decision {
		if len(suspects) == 0 {
			return models.Pass()
		}
		return models.Decision{Kind: models.DecisionPoison, Target: suspects[0]}
	}
	saveIt := models.Decision{Kind: models.DecisionSave}
	if canSave {
		saveIt.Target = save[0]
	}

	switch ai.Personality {
	case PersonalityAggressive:
		// 激进型女巫倾向于使用毒药
		if d := poison(); d.Kind == models.DecisionPoison {
			return d
		}
		if canSave {
			return saveIt
		}
	case PersonalityCautious:
		// 谨慎型女巫优先考虑救人
		if canSave {
			return saveIt
		}
	case PersonalityStrategic:
		// 前两晚救人，之后有把握再毒
		if canSave && req.Night <= 2 {
			return saveIt
		}
		if len(suspects) > 0 && ai.suspicion(req, suspects[0]) >= 2 {
			return poison()
		}
	default:
		if canSave && ai.rng.Float64() < 0.5 {
			return saveIt
		}
	}
	return models.Pass()
}

// selectShootTarget 猎人开枪目标
func (ai *AIPlayer) selectShootTarget(req models.Request) models.Decision {
	targets := menuTargets(req, models.DecisionTarget)
	suspects := intersect(ai.suspects(req), targets)
	if len(suspects) > 0 {
		return models.Target(suspects[0])
	}
	if ai.Personality == PersonalityCautious {
		return models.Pass()
	}
	return targetOrPass(ai.pick(targets))
}

// selectVoteTarget 选择投票目标
func (ai *AIPlayer) selectVoteTarget(req models.Request) models.Decision {
	targets := make([]int, 0)
	for _, id := range menuTargets(req, models.DecisionTarget) {
		if id != ai.ID && !ai.isTeammate(req, id) {
			targets = append(targets, id)
		}
	}

	switch ai.Personality {
	case PersonalityCautious:
		// 跟随点名最多的玩家
		return targetOrPass(ai.best(targets, func(id int) int { return ai.mentions[req.Night][id] }))
	case PersonalityRandom:
		return targetOrPass(ai.pick(targets))
	default:
		return targetOrPass(ai.best(targets, func(id int) int { return ai.suspicion(req, id) }))
	}
}

// selectMVP 选择 MVP，狼人投队友，好人投发言最多的存活好人
func (ai *AIPlayer) selectMVP(req models.Request) models.Decision {
	targets := menuTargets(req, models.DecisionTarget)
	if len(req.Private.Teammates) > 0 {
		return targetOrPass(ai.pick(req.Private.Teammates))
	}
	others := make([]int, 0, len(targets))
	for _, id := range targets {
		if id != ai.ID && ai.suspicion(req, id) <= 0 {
			others = append(others, id)
		}
	}
	return targetOrPass(ai.best(others, ai.activity))
}

func intersect(ids, allowed []int) []int {
	ok := make(map[int]bool, len(allowed))
	for _, id := range allowed {
		ok[id] = true
	}
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if ok[id] {
			out = append(out, id)
		}
	}
	return out
}
