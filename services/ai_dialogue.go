package services

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/qianlnk/autowolf/models"
)

const seerClaimPhrase = "我是预言家"

func claimsSeer(text string) bool {
	return strings.Contains(text, seerClaimPhrase)
}

// AIDialogue AI对话生成器
type AIDialogue struct {
	rng *rand.Rand
}

// NewAIDialogue 创建AI对话生成器实例
func NewAIDialogue(rng *rand.Rand) *AIDialogue {
	return &AIDialogue{rng: rng}
}

// Generate 生成发言或遗言
func (ad *AIDialogue) Generate(req models.Request, personality string, suspects []int) string {
	var text string
	switch req.Role {
	case models.Werewolf:
		text = ad.generateWerewolfDialogue(req, personality, suspects)
	case models.Seer:
		text = ad.generateSeerDialogue(req, personality)
	case models.Witch:
		text = ad.generateWitchDialogue(req, personality)
	default:
		text = ad.generateVillagerDialogue(personality)
	}

	if target := ad.accuse(suspects); target != "" {
		text += "，" + target
	}
	if req.Kind == models.ActionLastWords {
		return "遗言：" + text
	}
	return text
}

// accuse 点名可疑玩家
func (ad *AIDialogue) accuse(suspects []int) string {
	if len(suspects) == 0 {
		return ""
	}
	return fmt.Sprintf("我怀疑%d号", suspects[0])
}

// generateWerewolfDialogue 狼人需要伪装和误导
func (ad *AIDialogue) generateWerewolfDialogue(req models.Request, personality string, suspects []int) string {
	switch personality {
	case PersonalityAggressive:
		// 悍跳预言家
		for _, p := range req.Roster {
			if p.Alive && p.ID != req.Player && !contains(req.Private.Teammates, p.ID) && !contains(suspects, p.ID) {
				return fmt.Sprintf("%s，昨晚查验%d号是狼人", seerClaimPhrase, p.ID)
			}
		}
		return "我觉得有人在伪装预言家"
	case PersonalityCautious:
		return "大家要冷静分析，不要轻易相信任何人的发言"
	case PersonalityStrategic:
		return "我们应该先听听预言家的发言，再做判断"
	default:
		return ad.choose(
			"昨晚我好像听到了一些动静，但不确定是什么",
			"我觉得我们要相信预言家，但也要防止有人冒充",
			"大家要冷静分析，不要被表象迷惑",
		)
	}
}

// generateSeerDialogue 预言家报出查验结果
func (ad *AIDialogue) generateSeerDialogue(req models.Request, personality string) string {
	results := req.Private.SeerResults
	if len(results) == 0 || personality == PersonalityCautious && req.Kind != models.ActionLastWords {
		return ad.choose(
			"作为一个好人，我建议大家要谨慎行动",
			"我有重要信息要分享，但现在说可能为时过早",
			"让我们一起分析一下目前的局势",
		)
	}

	ids := make([]int, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		label := "好人"
		if results[id] == models.FactionWolf {
			label = "狼人"
		}
		parts = append(parts, fmt.Sprintf("%d号是%s", id, label))
	}
	return fmt.Sprintf("%s，查验结果：%s", seerClaimPhrase, strings.Join(parts, "，"))
}

// generateWitchDialogue 女巫对话
func (ad *AIDialogue) generateWitchDialogue(req models.Request, personality string) string {
	switch personality {
	case PersonalityAggressive:
		if w := req.Private.Witch; w != nil && w.AntidoteUsed {
			return fmt.Sprintf("我是女巫，第%d夜救过人，大家相信我", w.AntidoteNight)
		}
		return "我知道一些重要的信息，但需要大家配合"
	case PersonalityCautious:
		return "我们要小心行事，不要轻易相信任何人"
	case PersonalityStrategic:
		return "让我们先听听大家的想法，再做决定"
	default:
		return "昨晚发生了什么有趣的事情吗？"
	}
}

// generateVillagerDialogue 村民和猎人对话
func (ad *AIDialogue) generateVillagerDialogue(personality string) string {
	switch personality {
	case PersonalityAggressive:
		return "我觉得有人行为很可疑，应该仔细观察"
	case PersonalityCautious:
		return "我们要相信预言家，但也要防止有人冒充"
	case PersonalityStrategic:
		return "让我们分析一下每个人的发言，找出线索"
	default:
		return ad.choose(
			"大家有没有发现什么可疑的人？",
			"我们要抓紧时间找出狼人",
			"大家对昨晚的情况有什么看法？",
		)
	}
}

func (ad *AIDialogue) choose(options ...string) string {
	return options[ad.rng.Intn(len(options))]
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
