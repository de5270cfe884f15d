package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qianlnk/autowolf/models"
	"github.com/qianlnk/autowolf/storage"
)

// GameController 游戏流程控制器：按 夜晚 → 白天 → 投票 的顺序推进，
// 是游戏状态唯一的修改者。事件在状态变更应用之后才写入 sink
type GameController struct {
	game         *GameState
	stateMachine *StateMachine
	skills       *SkillManager
	agents       map[int]Agent
	sink         storage.Sink
	opts         Options
	solicitor    *solicitor
	logger       zerolog.Logger
	mutex        sync.RWMutex
	seq          int
	started      bool
	cancel       context.CancelFunc
	abortReason  string
	done         chan struct{}
}

// NewGameController 创建游戏控制器实例，每名玩家都必须有代理
func NewGameController(game *GameState, agents map[int]Agent, sink storage.Sink, opts Options, logger zerolog.Logger) (*GameController, error) {
	for _, p := range game.Players {
		if agents[p.ID] == nil {
			return nil, fmt.Errorf("%w: %d号玩家没有代理", ErrConfig, p.ID)
		}
	}
	if game.Phase != PhaseSetup {
		return nil, fmt.Errorf("%w: 游戏不在准备阶段", ErrConfig)
	}

	logger = logger.With().Str("component", "game").Str("game_id", game.ID).Logger()
	return &GameController{
		game:         game,
		stateMachine: NewStateMachine(game),
		skills:       NewSkillManager(game),
		agents:       agents,
		sink:         sink,
		opts:         opts,
		solicitor:    newSolicitor(opts, logger),
		logger:       logger,
		done:         make(chan struct{}),
	}, nil
}

// ID 游戏 ID
func (gc *GameController) ID() string {
	return gc.game.ID
}

// Done 对局结束（含中止）后关闭
func (gc *GameController) Done() <-chan struct{} {
	return gc.done
}

// Snapshot 当前状态的深拷贝
func (gc *GameController) Snapshot() *GameState {
	gc.mutex.RLock()
	defer gc.mutex.RUnlock()

	return gc.game.Clone()
}

// Abort 请求中止对局，正在进行的夜晚结算会被丢弃
func (gc *GameController) Abort(reason string) error {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if gc.game.Phase == PhaseEnded {
		return fmt.Errorf("游戏已结束: %s", gc.game.Result)
	}
	if gc.abortReason == "" {
		gc.abortReason = reason
	}
	if gc.cancel != nil {
		gc.cancel()
	}
	return nil
}

// Run 运行整局游戏直到分出胜负、平局或中止
func (gc *GameController) Run(ctx context.Context) (models.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gc.mutex.Lock()
	if gc.started {
		gc.mutex.Unlock()
		return gc.game.Result, ErrGameInProgress
	}
	gc.started = true
	gc.cancel = cancel
	if gc.abortReason != "" {
		cancel()
	}
	gc.mutex.Unlock()
	defer close(gc.done)
	defer gc.finishSink()

	roles := make([]models.Role, len(gc.game.Players))
	for i, p := range gc.game.Players {
		roles[i] = p.Role
	}
	detail, _ := json.Marshal(roles)
	gc.emit(ctx, gc.event(models.EventGameStarted, models.NoPlayer, models.NoPlayer, string(detail)))
	gc.logger.Info().Int("players", len(gc.game.Players)).Msg("game started")

	for {
		verdict, err := gc.runNight(ctx)
		if err != nil {
			return gc.fail(ctx, err)
		}
		if verdict.Result.Terminal() {
			return gc.finish(ctx, verdict)
		}

		verdict, err = gc.runDay(ctx)
		if err != nil {
			return gc.fail(ctx, err)
		}
		if verdict.Result.Terminal() {
			return gc.finish(ctx, verdict)
		}

		if gc.opts.MaxRounds > 0 && gc.game.Night >= gc.opts.MaxRounds {
			verdict.Result, verdict.Reason = models.ResultDraw, ReasonMaxRounds
			return gc.finish(ctx, verdict)
		}
	}
}

func (gc *GameController) transition(to models.Phase) error {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	return gc.stateMachine.TransitionPhase(to)
}

// runNight 征询夜晚行动，结算后一次性应用
func (gc *GameController) runNight(ctx context.Context) (Verdict, error) {
	if err := gc.transition(PhaseNight); err != nil {
		return Verdict{}, err
	}
	night := gc.game.Night
	log := gc.logger.With().Int("night", night).Logger()
	engine := NewNightEngine(gc.game, night)

	// 预言家
	if seers := gc.game.AliveByRole(models.Seer); len(seers) > 0 {
		req := gc.request(seers[0], models.ActionSeerCheck, targetMenu(gc.game.AliveIDs()))
		if _, err := gc.solicitor.solicit(ctx, gc.agents[seers[0]], req, func(d models.Decision) error {
			_, err := engine.Seer(targetOf(d))
			return err
		}); err != nil {
			return Verdict{}, err
		}
	} else if _, err := engine.Seer(models.NoPlayer); err != nil {
		return Verdict{}, err
	}

	// 狼人同时投票
	alive := gc.game.AliveIDs()
	wolves := gc.game.AliveByRole(models.Werewolf)
	reqs := make([]models.Request, 0, len(wolves))
	for _, w := range wolves {
		reqs = append(reqs, gc.request(w, models.ActionWolfKill, targetMenu(alive)))
	}
	votes, err := gc.solicitor.gather(ctx, gc.agents, reqs, func(_, target int) error {
		if target == models.NoPlayer {
			return nil
		}
		return gc.skills.ValidateWolfTarget(target)
	})
	if err != nil {
		return Verdict{}, err
	}
	if err := engine.Wolves(collapseWolfVotes(votes), votes); err != nil {
		return Verdict{}, err
	}

	// 女巫
	if witches := gc.game.AliveByRole(models.Witch); len(witches) > 0 {
		w := witches[0]
		req := gc.request(w, models.ActionWitch, witchMenu(gc.game, w, engine.WolfTarget(), gc.game.Witch))
		req.Private.WolfTarget = engine.WolfTarget()
		if _, err := gc.solicitor.solicit(ctx, gc.agents[w], req, func(d models.Decision) error {
			return engine.Witch(witchDecisionOf(d))
		}); err != nil {
			return Verdict{}, err
		}
	} else if err := engine.Witch(models.WitchDecision{Action: models.WitchPass, Target: models.NoPlayer}); err != nil {
		return Verdict{}, err
	}

	// 猎人夜里被刀
	if hunter, ok := engine.HunterPending(); ok {
		skip := engine.dyingTonight()
		skip[hunter] = true
		req := gc.request(hunter, models.ActionHunterShot, targetMenu(excluding(gc.game.AliveIDs(), skip)))
		req.Private.DeathCause = models.CauseWolfKill
		if _, err := gc.solicitor.solicit(ctx, gc.agents[hunter], req, func(d models.Decision) error {
			return engine.Hunter(targetOf(d))
		}); err != nil {
			return Verdict{}, err
		}
	}

	outcome, err := engine.Resolve()
	if err != nil {
		return Verdict{}, err
	}
	// 中止时丢弃未应用的结算
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	gc.mutex.Lock()
	err = gc.game.applyNight(outcome)
	verdict := EvaluateWin(gc.game.Players, gc.game.Witch)
	gc.mutex.Unlock()
	if err != nil {
		return Verdict{}, err
	}

	gc.emitNight(ctx, outcome.Record)
	log.Info().Int("deaths", len(outcome.Deaths)).Int("wolf_target", outcome.Record.WolfTarget).
		Str("witch", string(outcome.Record.Witch.Action)).Msg("night resolved")
	return verdict, nil
}

func (gc *GameController) emitNight(ctx context.Context, record models.NightRecord) {
	if q := record.SeerQuery; q.Target != models.NoPlayer {
		e := gc.event(models.EventNightAction, q.Seer, q.Target, string(q.Result))
		e.Action = string(models.ActionSeerCheck)
		gc.emit(ctx, e)
	}

	votes, _ := json.Marshal(record.WolfVotes)
	e := gc.event(models.EventNightAction, models.NoPlayer, record.WolfTarget, string(votes))
	e.Action = string(models.ActionWolfKill)
	gc.emit(ctx, e)

	if record.Witch.Action != models.WitchPass {
		e := gc.event(models.EventNightAction, gc.game.FindRole(models.Witch), record.Witch.Target, "")
		e.Action = string(record.Witch.Action)
		gc.emit(ctx, e)
	}

	if h := record.Hunter; h != nil && h.Fired && h.Target != models.NoPlayer {
		e := gc.event(models.EventHunterShot, h.Hunter, h.Target, "")
		e.Cause = h.Cause
		gc.emit(ctx, e)
	}

	for _, d := range record.Deaths {
		e := gc.event(models.EventDeath, models.NoPlayer, d.Player, "")
		e.Cause = d.Cause
		gc.emit(ctx, e)
	}
}

// runDay 公布死讯、遗言、发言和放逐投票
func (gc *GameController) runDay(ctx context.Context) (Verdict, error) {
	if err := gc.transition(PhaseDay); err != nil {
		return Verdict{}, err
	}
	night := gc.game.Night
	deaths := gc.game.Nights[len(gc.game.Nights)-1].Deaths

	day := models.DayRecord{
		Day:               night,
		Announced:         deaths,
		LastWordsEligible: LastWordsEligible(night, deaths),
		Eliminated:        models.NoPlayer,
		HunterRevenge:     models.NoPlayer,
	}
	gc.mutex.Lock()
	gc.game.Days = append(gc.game.Days, day)
	gc.mutex.Unlock()

	// 遗言
	for _, id := range day.LastWordsEligible {
		text, err := gc.speak(ctx, id, models.ActionLastWords, day)
		if err != nil {
			return Verdict{}, err
		}
		day.LastWords = append(day.LastWords, models.Speech{Player: id, Text: text, LastWords: true})
		gc.commitDay(day)
		gc.emit(ctx, gc.event(models.EventLastWords, id, models.NoPlayer, text))
	}

	// 发言
	for _, id := range SpeakingOrder(gc.game.AliveIDs(), deaths) {
		text, err := gc.speak(ctx, id, models.ActionSpeech, day)
		if err != nil {
			return Verdict{}, err
		}
		day.Speeches = append(day.Speeches, models.Speech{Player: id, Text: text})
		gc.commitDay(day)
		gc.emit(ctx, gc.event(models.EventSpeech, id, models.NoPlayer, text))
	}

	if err := gc.transition(PhaseVote); err != nil {
		return Verdict{}, err
	}
	return gc.runVote(ctx, day)
}

func (gc *GameController) speak(ctx context.Context, player int, kind models.ActionKind, day models.DayRecord) (string, error) {
	req := gc.request(player, kind, speechMenu())
	req.Transcript = transcript(day)
	d, err := gc.solicitor.solicit(ctx, gc.agents[player], req, func(models.Decision) error { return nil })
	if err != nil {
		return "", err
	}
	return d.Text, nil
}

// transcript 当天已有的遗言和发言
func transcript(day models.DayRecord) []models.Speech {
	out := make([]models.Speech, 0, len(day.LastWords)+len(day.Speeches))
	out = append(out, day.LastWords...)
	return append(out, day.Speeches...)
}

func (gc *GameController) commitDay(day models.DayRecord) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	gc.game.Days[len(gc.game.Days)-1] = day
}

// runVote 放逐投票，出局的猎人可以开枪
func (gc *GameController) runVote(ctx context.Context, day models.DayRecord) (Verdict, error) {
	alive := gc.game.AliveIDs()
	aliveSet := make(map[int]bool, len(alive))
	reqs := make([]models.Request, 0, len(alive))
	for _, id := range alive {
		aliveSet[id] = true
		req := gc.request(id, models.ActionVote, targetMenu(alive))
		req.Transcript = transcript(day)
		reqs = append(reqs, req)
	}

	votes, err := gc.solicitor.gather(ctx, gc.agents, reqs, func(_, target int) error {
		if target != models.NoPlayer && !aliveSet[target] {
			return fmt.Errorf("%w: 投票目标%d不存在或已死亡", ErrIllegalAction, target)
		}
		return nil
	})
	if err != nil {
		return Verdict{}, err
	}

	result := Tally(votes, aliveSet)
	day.Votes = votes
	day.Counts = result.Counts
	day.Tie = result.Tie
	day.Eliminated = result.Eliminated
	gc.commitDay(day)

	voters := make([]int, 0, len(votes))
	for voter := range votes {
		voters = append(voters, voter)
	}
	sort.Ints(voters)
	for _, voter := range voters {
		e := gc.event(models.EventVoteCast, voter, votes[voter], "")
		e.Action = string(models.ActionVote)
		gc.emit(ctx, e)
	}

	if result.Eliminated == models.NoPlayer {
		if result.Tie {
			leaders, _ := json.Marshal(result.Leaders)
			gc.emit(ctx, gc.event(models.EventVoteTied, models.NoPlayer, models.NoPlayer, string(leaders)))
		}
		gc.logger.Info().Int("day", day.Day).Bool("tie", result.Tie).Msg("nobody eliminated")
		return EvaluateWin(gc.game.Players, gc.game.Witch), nil
	}

	eliminated := result.Eliminated
	verdict, err := gc.applyDayDeath(&day, models.Death{Player: eliminated, Cause: models.CauseVote, Night: day.Day})
	if err != nil {
		return Verdict{}, err
	}
	counts, _ := json.Marshal(result.Counts)
	gc.emit(ctx, gc.event(models.EventPlayerEliminated, models.NoPlayer, eliminated, string(counts)))
	gc.emitDeath(ctx, eliminated, models.CauseVote)
	gc.logger.Info().Int("day", day.Day).Int("eliminated", eliminated).Int("votes", result.MaxVotes).Msg("player eliminated")
	if verdict.Result.Terminal() || !gc.skills.HunterCanShoot(eliminated, models.CauseVote) {
		return verdict, nil
	}

	// 猎人被放逐后开枪
	shot := models.NoPlayer
	req := gc.request(eliminated, models.ActionHunterShot, targetMenu(excluding(gc.game.AliveIDs(), map[int]bool{eliminated: true})))
	req.Private.DeathCause = models.CauseVote
	if _, err := gc.solicitor.solicit(ctx, gc.agents[eliminated], req, func(d models.Decision) error {
		target := targetOf(d)
		if target != models.NoPlayer {
			if err := gc.skills.UseHunterSkill(eliminated, target, nil); err != nil {
				return err
			}
		}
		shot = target
		return nil
	}); err != nil {
		return Verdict{}, err
	}
	if shot == models.NoPlayer {
		return verdict, nil
	}

	day.HunterRevenge = shot
	verdict, err = gc.applyDayDeath(&day, models.Death{Player: shot, Cause: models.CauseHunterShot, Night: day.Day})
	if err != nil {
		return Verdict{}, err
	}
	e := gc.event(models.EventHunterShot, eliminated, shot, "")
	e.Cause = models.CauseVote
	gc.emit(ctx, e)
	gc.emitDeath(ctx, shot, models.CauseHunterShot)
	return verdict, nil
}

// applyDayDeath 应用白天的一次死亡并立即判定胜负
func (gc *GameController) applyDayDeath(day *models.DayRecord, death models.Death) (Verdict, error) {
	gc.mutex.Lock()
	defer gc.mutex.Unlock()

	if err := gc.game.applyDeaths([]models.Death{death}); err != nil {
		return Verdict{}, err
	}
	day.Deaths = append(day.Deaths, death)
	gc.game.Days[len(gc.game.Days)-1] = *day
	return EvaluateWin(gc.game.Players, gc.game.Witch), nil
}

func (gc *GameController) emitDeath(ctx context.Context, player int, cause models.CauseOfDeath) {
	e := gc.event(models.EventDeath, models.NoPlayer, player, "")
	e.Cause = cause
	gc.emit(ctx, e)
}

// finish 写入终局结果，可选进行 MVP 投票
func (gc *GameController) finish(ctx context.Context, v Verdict) (models.Result, error) {
	gc.mutex.Lock()
	err := gc.stateMachine.End(v)
	gc.mutex.Unlock()
	if err != nil {
		return gc.fail(ctx, err)
	}

	e := gc.event(models.EventGameEnded, models.NoPlayer, models.NoPlayer, v.Reason)
	e.Result = v.Result
	gc.emit(ctx, e)
	gc.logger.Info().Str("result", string(v.Result)).Str("reason", v.Reason).
		Int("alive_wolves", v.AliveWolves).Int("alive_good", v.AliveGood).Msg("game ended")

	if gc.opts.MVP {
		if err := gc.runMVP(ctx); err != nil {
			gc.logger.Warn().Err(err).Msg("mvp vote skipped")
		}
	}
	return v.Result, nil
}

// runMVP 所有玩家（含死亡玩家）投票选出 MVP
func (gc *GameController) runMVP(ctx context.Context) error {
	ids := make([]int, len(gc.game.Players))
	for i, p := range gc.game.Players {
		ids[i] = p.ID
	}
	reqs := make([]models.Request, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, gc.request(id, models.ActionMVPVote, targetMenu(ids)))
	}

	votes, err := gc.solicitor.gather(ctx, gc.agents, reqs, func(_, target int) error {
		if target != models.NoPlayer && (target < 0 || target >= len(ids)) {
			return fmt.Errorf("%w: MVP 候选人%d不存在", ErrIllegalAction, target)
		}
		return nil
	})
	if err != nil {
		return err
	}

	result := TallyMVP(gc.game.Players, votes)
	gc.mutex.Lock()
	gc.game.MVP = result
	gc.mutex.Unlock()

	for _, voter := range ids {
		e := gc.event(models.EventMVPVote, voter, votes[voter], "")
		e.Action = string(models.ActionMVPVote)
		gc.emit(ctx, e)
	}
	detail := ""
	if result.Player != models.NoPlayer {
		detail = fmt.Sprintf("%d票 (%.1f%%)", result.Counts[result.Player], result.Percentages[result.Player])
	}
	gc.emit(ctx, gc.event(models.EventMVPResult, models.NoPlayer, result.Player, detail))
	return nil
}

// fail 中止对局。内部错误会先写入完整状态快照
func (gc *GameController) fail(ctx context.Context, err error) (models.Result, error) {
	ectx := context.WithoutCancel(ctx)

	gc.mutex.Lock()
	gc.game.Aborted = true
	reason := gc.abortReason
	gc.mutex.Unlock()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrGameAborted) {
		if reason == "" {
			reason = err.Error()
		}
		gc.emit(ectx, gc.event(models.EventGameAborted, models.NoPlayer, models.NoPlayer, reason))
		gc.logger.Warn().Str("reason", reason).Msg("game aborted")
		return gc.game.Result, fmt.Errorf("%w: %s", ErrGameAborted, reason)
	}

	gc.logger.Error().Err(err).Str("phase", string(gc.game.Phase)).Msg("game aborted on internal error")
	if state, mErr := json.Marshal(gc.Snapshot()); mErr == nil {
		gc.emit(ectx, gc.event(models.EventStateDump, models.NoPlayer, models.NoPlayer, string(state)))
	}
	gc.emit(ectx, gc.event(models.EventGameAborted, models.NoPlayer, models.NoPlayer, err.Error()))
	return gc.game.Result, err
}

func (gc *GameController) event(t models.EventType, actor, target int, detail string) models.Event {
	return models.Event{Type: t, Actor: actor, Target: target, Detail: detail}
}

// emit 编号并写入 sink，写入失败只记录日志
func (gc *GameController) emit(ctx context.Context, e models.Event) {
	gc.seq++
	e.GameID = gc.game.ID
	e.Seq = gc.seq
	e.Night = gc.game.Night
	e.Phase = gc.game.Phase
	e.Time = time.Now().UTC()

	if gc.sink == nil {
		return
	}
	if err := gc.sink.Append(ctx, e); err != nil {
		gc.logger.Error().Err(err).Int("seq", e.Seq).Str("type", string(e.Type)).Msg("append event")
	}
}

// finishSink 最后一条事件写入后通知 sink 释放该局资源
func (gc *GameController) finishSink() {
	f, ok := gc.sink.(storage.Finisher)
	if !ok {
		return
	}
	if err := f.Finish(gc.game.ID); err != nil {
		gc.logger.Warn().Err(err).Msg("finish event sink")
	}
}

// request 构造决策请求，只包含该玩家可见的信息
func (gc *GameController) request(player int, kind models.ActionKind, menu []models.MenuItem) models.Request {
	p := gc.game.Players[player]
	return models.Request{
		GameID:    gc.game.ID,
		RequestID: uuid.NewString(),
		Player:    player,
		Role:      p.Role,
		Phase:     gc.game.Phase,
		Night:     gc.game.Night,
		Kind:      kind,
		Roster:    gc.game.Roster(),
		Private:   gc.private(p),
		Menu:      menu,
	}
}

func (gc *GameController) private(p models.Player) models.PrivateKnowledge {
	k := models.PrivateKnowledge{Role: p.Role, WolfTarget: models.NoPlayer}
	switch p.Role {
	case models.Werewolf:
		for _, q := range gc.game.Players {
			if q.Role == models.Werewolf && q.ID != p.ID {
				k.Teammates = append(k.Teammates, q.ID)
			}
		}
	case models.Seer:
		k.SeerResults = gc.game.SeerResults()
	case models.Witch:
		w := gc.game.Witch
		k.Witch = &w
	}
	return k
}
