package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/qianlnk/autowolf/models"
	"github.com/qianlnk/autowolf/storage"
)

// 代理类型
const (
	AgentHeuristic = "heuristic" // 本地启发式 AI
	AgentRemote    = "remote"    // 通过 WebSocket 接入的远程代理
)

// Seat 一个座位的配置
type Seat struct {
	Name        string `json:"name"`
	Agent       string `json:"agent"`
	Personality string `json:"personality,omitempty"`
}

// GameSummary 对局列表项
type GameSummary struct {
	ID        string        `json:"id"`
	Phase     models.Phase  `json:"phase"`
	Night     int           `json:"night"`
	Result    models.Result `json:"result"`
	Reason    string        `json:"reason,omitempty"`
	Aborted   bool          `json:"aborted"`
	CreatedAt time.Time     `json:"created_at"`
}

// SeatStatus 座位配置及远程代理的连接状态
type SeatStatus struct {
	Seat
	Player    int  `json:"player"`
	Connected bool `json:"connected"`
}

type managedGame struct {
	controller *GameController
	seats      []Seat
	createdAt  time.Time
	started    bool
}

// GameManager 对局管理器
type GameManager struct {
	games        map[string]*managedGame
	webSocketMgr *WebSocketManager
	sink         storage.Sink
	logger       zerolog.Logger
	mutex        sync.RWMutex
	wg           sync.WaitGroup
}

// NewGameManager 创建对局管理器实例，webSocketMgr 为空时不支持远程代理
func NewGameManager(webSocketMgr *WebSocketManager, sink storage.Sink, logger zerolog.Logger) *GameManager {
	return &GameManager{
		games:        make(map[string]*managedGame),
		webSocketMgr: webSocketMgr,
		sink:         sink,
		logger:       logger,
	}
}

// CreateGame 创建对局，seed 决定启发式 AI 的随机序列
func (gm *GameManager) CreateGame(registry *RoleRegistry, seats []Seat, opts Options, seed int64) (*GameController, error) {
	if len(seats) != registry.Len() {
		return nil, fmt.Errorf("%w: 座位数%d与角色数%d不一致", ErrConfig, len(seats), registry.Len())
	}

	id := uuid.NewString()
	names := make([]string, len(seats))
	agents := make(map[int]Agent, len(seats))
	for i, st := range seats {
		names[i] = st.Name
		switch st.Agent {
		case "", AgentHeuristic:
			agents[i] = NewAIPlayer(i, st.Personality, seed+int64(i))
		case AgentRemote:
			if gm.webSocketMgr == nil {
				return nil, fmt.Errorf("%w: 未启用 WebSocket，无法使用远程代理", ErrConfig)
			}
			agents[i] = gm.webSocketMgr.RemoteAgent(id, i)
		default:
			return nil, fmt.Errorf("%w: 未知的代理类型 %q", ErrConfig, st.Agent)
		}
	}

	game := NewGameState(id, registry, names)
	controller, err := NewGameController(game, agents, gm.sink, opts, gm.logger)
	if err != nil {
		return nil, err
	}

	gm.mutex.Lock()
	gm.games[id] = &managedGame{controller: controller, seats: append([]Seat(nil), seats...), createdAt: time.Now()}
	gm.mutex.Unlock()
	return controller, nil
}

// StartGame 在后台运行对局
func (gm *GameManager) StartGame(ctx context.Context, id string) error {
	gm.mutex.Lock()
	g, exists := gm.games[id]
	if !exists {
		gm.mutex.Unlock()
		return ErrGameNotFound
	}
	if g.started {
		gm.mutex.Unlock()
		return ErrGameInProgress
	}
	g.started = true
	controller := g.controller
	gm.mutex.Unlock()

	gm.wg.Add(1)
	go func() {
		defer gm.wg.Done()
		result, err := controller.Run(ctx)
		if err != nil {
			gm.logger.Warn().Err(err).Str("game_id", id).Msg("game stopped")
			return
		}
		gm.logger.Info().Str("game_id", id).Str("result", string(result)).Msg("game finished")
	}()
	return nil
}

// GetGame 获取对局控制器
func (gm *GameManager) GetGame(id string) (*GameController, error) {
	gm.mutex.RLock()
	defer gm.mutex.RUnlock()

	g, exists := gm.games[id]
	if !exists {
		return nil, ErrGameNotFound
	}
	return g.controller, nil
}

// Seats 对局的座位，远程座位附带当前是否有 WebSocket 连接
func (gm *GameManager) Seats(id string) ([]SeatStatus, error) {
	gm.mutex.RLock()
	g, exists := gm.games[id]
	gm.mutex.RUnlock()
	if !exists {
		return nil, ErrGameNotFound
	}

	out := make([]SeatStatus, len(g.seats))
	for i, st := range g.seats {
		out[i] = SeatStatus{Seat: st, Player: i}
		if st.Agent == AgentRemote && gm.webSocketMgr != nil {
			out[i].Connected = gm.webSocketMgr.Connected(id, i)
		}
	}
	return out, nil
}

// ListGames 按创建时间排序的对局列表
func (gm *GameManager) ListGames() []GameSummary {
	gm.mutex.RLock()
	defer gm.mutex.RUnlock()

	list := make([]GameSummary, 0, len(gm.games))
	for id, g := range gm.games {
		s := g.controller.Snapshot()
		list = append(list, GameSummary{
			ID:        id,
			Phase:     s.Phase,
			Night:     s.Night,
			Result:    s.Result,
			Reason:    s.Reason,
			Aborted:   s.Aborted,
			CreatedAt: g.createdAt,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// AbortGame 中止对局
func (gm *GameManager) AbortGame(id, reason string) error {
	controller, err := gm.GetGame(id)
	if err != nil {
		return err
	}
	return controller.Abort(reason)
}

// Shutdown 中止所有进行中的对局并等待退出
func (gm *GameManager) Shutdown(ctx context.Context) error {
	gm.mutex.RLock()
	for _, g := range gm.games {
		_ = g.controller.Abort("服务关闭")
	}
	gm.mutex.RUnlock()

	done := make(chan struct{})
	go func() {
		gm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
