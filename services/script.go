package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/qianlnk/autowolf/models"
	"github.com/qianlnk/autowolf/storage"
)

// ScriptStep 剧本中的一步：某玩家在第 night 夜（或当天）做某个动作时的决定
type ScriptStep struct {
	Player   int                 `yaml:"player"`
	Night    int                 `yaml:"night"`
	Kind     models.ActionKind   `yaml:"kind"`
	Decision models.DecisionKind `yaml:"decision"`
	Target   int                 `yaml:"target"`
	Text     string              `yaml:"text"`
}

// Script 剧本：角色表、预设决定和期望结果
type Script struct {
	Name      string        `yaml:"name"`
	Roles     []models.Role `yaml:"roles"`
	MaxRounds int           `yaml:"max_rounds"` // 大于 0 时覆盖运行参数
	Steps     []ScriptStep  `yaml:"steps"`
	Expect    ScriptExpect  `yaml:"expect"`
}

// ScriptExpect 剧本期望的终局
type ScriptExpect struct {
	Result models.Result `yaml:"result"`
	Night  int           `yaml:"night"`
	Dead   []int         `yaml:"dead"`
}

// LoadScript 从 YAML 文件加载剧本
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取剧本失败: %w", err)
	}
	return ParseScript(data)
}

// ParseScript 解析 YAML 剧本
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: 解析剧本失败: %v", ErrConfig, err)
	}
	for i, step := range s.Steps {
		if step.Decision == "" {
			return nil, fmt.Errorf("%w: 第%d步缺少 decision", ErrConfig, i+1)
		}
	}
	return &s, nil
}

// Registry 剧本的角色表
func (s *Script) Registry() (*RoleRegistry, error) {
	return NewRoleRegistry(s.Roles)
}

// Agents 每个座位一个剧本代理
func (s *Script) Agents() map[int]Agent {
	agents := make(map[int]Agent, len(s.Roles))
	for i := range s.Roles {
		agents[i] = NewScriptAgent(i, s.Steps)
	}
	return agents
}

// NewController 按剧本创建对局，返回控制器和各座位的剧本代理
func (s *Script) NewController(sink storage.Sink, opts Options, logger zerolog.Logger) (*GameController, map[int]Agent, error) {
	registry, err := s.Registry()
	if err != nil {
		return nil, nil, err
	}
	if s.MaxRounds > 0 {
		opts.MaxRounds = s.MaxRounds
	}
	agents := s.Agents()
	controller, err := NewGameController(NewGameState(uuid.NewString(), registry, nil), agents, sink, opts, logger)
	if err != nil {
		return nil, nil, err
	}
	return controller, agents, nil
}

// Verify 比较终局与剧本期望，期望中留空的项不检查
func (s *Script) Verify(game *GameState) error {
	want := s.Expect
	var errs []error
	if want.Result != "" && game.Result != want.Result {
		errs = append(errs, fmt.Errorf("结果 %s, 期望 %s", game.Result, want.Result))
	}
	if want.Night != 0 && game.Night != want.Night {
		errs = append(errs, fmt.Errorf("结束于第%d夜, 期望第%d夜", game.Night, want.Night))
	}
	if want.Dead != nil {
		dead := make([]int, 0)
		for _, p := range game.Players {
			if !p.Alive {
				dead = append(dead, p.ID)
			}
		}
		if !slices.Equal(dead, want.Dead) {
			errs = append(errs, fmt.Errorf("死亡玩家 %v, 期望 %v", dead, want.Dead))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("剧本 %q 与期望不符: %w", s.Name, errors.Join(errs...))
	}
	return nil
}

type scriptKey struct {
	night int
	kind  models.ActionKind
}

// ScriptAgent 按剧本回答的代理，剧本之外的请求返回默认决定。
// 同一夜同一动作有多步时依次使用，用于测试重新征询
type ScriptAgent struct {
	player int
	mutex  sync.Mutex
	steps  map[scriptKey][]ScriptStep
	asked  []models.Request
}

// NewScriptAgent 创建剧本代理，只保留属于 player 的步骤
func NewScriptAgent(player int, steps []ScriptStep) *ScriptAgent {
	a := &ScriptAgent{player: player, steps: make(map[scriptKey][]ScriptStep)}
	for _, step := range steps {
		if step.Player != player {
			continue
		}
		k := scriptKey{night: step.Night, kind: step.Kind}
		a.steps[k] = append(a.steps[k], step)
	}
	return a
}

// Decide 实现 Agent
func (a *ScriptAgent) Decide(ctx context.Context, req models.Request) (models.Decision, error) {
	if err := ctx.Err(); err != nil {
		return models.Decision{}, err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.asked = append(a.asked, req)
	k := scriptKey{night: req.Night, kind: req.Kind}
	queue := a.steps[k]
	if len(queue) == 0 {
		return defaultDecision(req), nil
	}
	step := queue[0]
	if len(queue) > 1 {
		a.steps[k] = queue[1:]
	}

	d := models.Decision{Kind: step.Decision, Target: step.Target, Text: step.Text}
	if d.Kind == models.DecisionPass {
		d.Target = models.NoPlayer
	}
	return d, nil
}

// Requests 已收到的请求
func (a *ScriptAgent) Requests() []models.Request {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return append([]models.Request(nil), a.asked...)
}
