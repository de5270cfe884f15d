package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/qianlnk/autowolf/models"
)

// Agent 自主玩家，对每个请求返回一个决定。
// 实现必须尊重 ctx 的截止时间
type Agent interface {
	Decide(ctx context.Context, req models.Request) (models.Decision, error)
}

// AgentFunc 函数形式的 Agent
type AgentFunc func(ctx context.Context, req models.Request) (models.Decision, error)

// Decide 实现 Agent
func (f AgentFunc) Decide(ctx context.Context, req models.Request) (models.Decision, error) {
	return f(ctx, req)
}

// Options 对局运行参数
type Options struct {
	DecisionTimeout time.Duration // 单次决策超时
	MaxRetries      int           // 非法选择后的重试次数
	MaxRounds       int           // 达到该夜数仍未分胜负则平局，0 表示不限
	MVP             bool          // 终局后进行 MVP 投票
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		DecisionTimeout: 30 * time.Second,
		MaxRetries:      2,
		MaxRounds:       10,
		MVP:             true,
	}
}

// solicitor 向代理征询决定：超时、重试和默认值
type solicitor struct {
	timeout    time.Duration
	maxRetries int
	logger     zerolog.Logger
}

func newSolicitor(opts Options, logger zerolog.Logger) *solicitor {
	return &solicitor{timeout: opts.DecisionTimeout, maxRetries: opts.MaxRetries, logger: logger}
}

// defaultDecision 无响应或多次非法后的默认决定：放弃、弃票或空发言
func defaultDecision(req models.Request) models.Decision {
	if req.Kind == models.ActionSpeech || req.Kind == models.ActionLastWords {
		return models.Say("")
	}
	return models.Pass()
}

// solicit 征询并通过 apply 应用决定。apply 返回 ErrIllegalAction 时带着原因重新征询，
// 超过重试次数或代理无响应则应用默认决定。只有上下文取消或内部错误会返回错误
func (s *solicitor) solicit(ctx context.Context, agent Agent, req models.Request, apply func(models.Decision) error) (models.Decision, error) {
	log := s.logger.With().Int("player", req.Player).Str("kind", string(req.Kind)).Logger()

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.Decision{}, err
		}
		d, err := s.ask(ctx, agent, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return d, ctxErr
			}
			log.Warn().Err(err).Msg("agent unresponsive, using default")
			break
		}

		if !req.Allows(d) {
			err = fmt.Errorf("%w: 选项 %s(%d) 不在菜单中", ErrIllegalAction, d.Kind, d.Target)
		} else {
			err = apply(d)
		}
		if err == nil {
			return d, nil
		}
		if !Recoverable(err) {
			return d, err
		}
		log.Info().Err(err).Int("attempt", attempt+1).Msg("illegal decision rejected")
		req.Feedback = err.Error()
	}

	d := defaultDecision(req)
	if err := apply(d); err != nil {
		return d, fmt.Errorf("默认决定无法应用: %w", err)
	}
	return d, nil
}

// ask 单次征询，超时返回 ErrAgentUnresponsive
func (s *solicitor) ask(ctx context.Context, agent Agent, req models.Request) (models.Decision, error) {
	if agent == nil {
		return models.Decision{}, fmt.Errorf("%w: %d号没有代理", ErrAgentUnresponsive, req.Player)
	}

	cctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type reply struct {
		decision models.Decision
		err      error
	}
	ch := make(chan reply, 1)
	go func() {
		d, err := agent.Decide(cctx, req)
		ch <- reply{d, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.decision, fmt.Errorf("%w: %v", ErrAgentUnresponsive, r.err)
		}
		return r.decision, nil
	case <-cctx.Done():
		return models.Decision{}, fmt.Errorf("%w: %v", ErrAgentUnresponsive, cctx.Err())
	}
}

// gather 并发征询多名玩家的目标选择，返回 玩家 → 目标（NoPlayer 表示放弃）
func (s *solicitor) gather(ctx context.Context, agents map[int]Agent, reqs []models.Request, validate func(player, target int) error) (map[int]int, error) {
	var mutex sync.Mutex
	choices := make(map[int]int, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	for _, req := range reqs {
		g.Go(func() error {
			_, err := s.solicit(gctx, agents[req.Player], req, func(d models.Decision) error {
				target := targetOf(d)
				if err := validate(req.Player, target); err != nil {
					return err
				}
				mutex.Lock()
				choices[req.Player] = target
				mutex.Unlock()
				return nil
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return choices, nil
}

// targetOf 决定中的目标，放弃为 NoPlayer
func targetOf(d models.Decision) int {
	if d.Kind == models.DecisionPass {
		return models.NoPlayer
	}
	return d.Target
}

// witchDecisionOf 将代理决定转换为女巫动作
func witchDecisionOf(d models.Decision) models.WitchDecision {
	switch d.Kind {
	case models.DecisionSave:
		return models.WitchDecision{Action: models.WitchSave, Target: d.Target}
	case models.DecisionPoison:
		return models.WitchDecision{Action: models.WitchPoison, Target: d.Target}
	default:
		return models.WitchDecision{Action: models.WitchPass, Target: models.NoPlayer}
	}
}

func targetMenu(targets []int) []models.MenuItem {
	return []models.MenuItem{
		{Kind: models.DecisionTarget, Targets: targets},
		{Kind: models.DecisionPass},
	}
}

func speechMenu() []models.MenuItem {
	return []models.MenuItem{{Kind: models.DecisionSpeech}}
}

// witchMenu 女巫当晚可用的选项
func witchMenu(game *GameState, witchID, wolfTarget int, res models.WitchResources) []models.MenuItem {
	menu := make([]models.MenuItem, 0, 3)
	if !res.AntidoteUsed && wolfTarget != models.NoPlayer && wolfTarget != witchID {
		menu = append(menu, models.MenuItem{Kind: models.DecisionSave, Targets: []int{wolfTarget}})
	}
	if !res.PoisonUsed {
		targets := make([]int, 0)
		for _, id := range game.AliveIDs() {
			if id != witchID && id != wolfTarget {
				targets = append(targets, id)
			}
		}
		if len(targets) > 0 {
			menu = append(menu, models.MenuItem{Kind: models.DecisionPoison, Targets: targets})
		}
	}
	return append(menu, models.MenuItem{Kind: models.DecisionPass})
}

// excluding 去掉 skip 中的编号
func excluding(ids []int, skip map[int]bool) []int {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}
