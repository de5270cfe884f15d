package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/qianlnk/autowolf/config"
	"github.com/qianlnk/autowolf/models"
	"github.com/qianlnk/autowolf/services"
	"github.com/qianlnk/autowolf/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 观战页面可能来自其他域
	},
}

func main() {
	fs := config.NewFlagSet(os.Args[0])
	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage")
	}
	defer st.close()

	if once, _ := fs.GetBool("once"); once {
		if err := runOnce(ctx, cfg, st.sinks, logger, os.Stdout); err != nil {
			logger.Error().Err(err).Msg("game failed")
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, st, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// eventStore 事件接收端及查询来源
type eventStore struct {
	sinks   storage.MultiSink
	source  storage.EventSource
	closers []func() error
}

func (s *eventStore) close() {
	for _, c := range s.closers {
		_ = c()
	}
}

// openStorage 配置了 SQLite 时从库中查询事件，否则保存在内存中
func openStorage(cfg *config.Config, logger zerolog.Logger) (*eventStore, error) {
	st := &eventStore{}
	if dir := cfg.Storage.JSONLDir; dir != "" {
		j, err := storage.NewJSONLSink(dir)
		if err != nil {
			return nil, err
		}
		st.sinks = append(st.sinks, j)
		st.closers = append(st.closers, j.Close)
		logger.Info().Str("dir", dir).Msg("jsonl game logs enabled")
	}
	if path := cfg.Storage.SQLite; path != "" {
		db, err := storage.OpenSQLite(path)
		if err != nil {
			st.close()
			return nil, err
		}
		st.sinks = append(st.sinks, db)
		st.source = db
		st.closers = append(st.closers, db.Close)
		logger.Info().Str("path", path).Msg("sqlite event store enabled")
	} else {
		mem := storage.NewMemorySink()
		st.sinks = append(st.sinks, mem)
		st.source = mem
	}
	return st, nil
}

// runOnce 本地运行一局，把最终状态以 JSON 输出。配置了剧本时按剧本运行并校验期望
func runOnce(ctx context.Context, cfg *config.Config, sink storage.Sink, logger zerolog.Logger, out io.Writer) error {
	var (
		controller *services.GameController
		script     *services.Script
		err        error
	)
	if path := cfg.Game.Script; path != "" {
		if script, err = services.LoadScript(path); err != nil {
			return err
		}
		if controller, _, err = script.NewController(sink, cfg.Options(), logger); err != nil {
			return err
		}
		logger.Info().Str("game_id", controller.ID()).Str("script", path).Msg("running scripted game")
	} else {
		seed := cfg.Seed()
		registry, seats, err := cfg.Roster(seed)
		if err != nil {
			return err
		}
		games := services.NewGameManager(nil, sink, logger)
		if controller, err = games.CreateGame(registry, seats, cfg.Options(), seed); err != nil {
			return err
		}
		logger.Info().Str("game_id", controller.ID()).Int64("seed", seed).Msg("running local game")
	}

	_, runErr := controller.Run(ctx)
	snapshot := controller.Snapshot()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return err
	}
	if runErr != nil || script == nil {
		return runErr
	}
	return script.Verify(snapshot)
}

// server HTTP 接口
type server struct {
	cfg    *config.Config
	games  *services.GameManager
	ws     *services.WebSocketManager
	events storage.EventSource
	ctx    context.Context
	logger zerolog.Logger
}

func newServer(ctx context.Context, cfg *config.Config, st *eventStore, logger zerolog.Logger) *server {
	ws := services.NewWebSocketManager(logger)
	sinks := append(storage.MultiSink{ws}, st.sinks...)
	return &server{
		cfg:    cfg,
		games:  services.NewGameManager(ws, sinks, logger),
		ws:     ws,
		events: st.source,
		ctx:    ctx,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	// 设置跨域中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/ws", s.serveWS)

	api := r.Group("/api")
	{
		api.POST("/games", s.createGame)
		api.GET("/games", s.listGames)
		api.GET("/history", s.listHistory)
		api.GET("/games/:id", s.getGame)
		api.GET("/games/:id/seats", s.getSeats)
		api.GET("/games/:id/events", s.getEvents)
		api.POST("/games/:id/start", s.startGame)
		api.POST("/games/:id/abort", s.abortGame)
	}
	return r
}

func (s *server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).Dur("latency", time.Since(start)).Msg("request")
	}
}

func serve(ctx context.Context, cfg *config.Config, st *eventStore, logger zerolog.Logger) error {
	s := newServer(ctx, cfg, st, logger)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: s.routes()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.games.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("games did not stop in time")
	}
	return srv.Shutdown(shutdownCtx)
}

// createGameRequest 创建对局；players 为空时使用服务配置中的座位
type createGameRequest struct {
	Players []config.PlayerConfig `json:"players"`
	Seed    int64                 `json:"seed"`
	Start   *bool                 `json:"start"`
}

func (s *server) createGame(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := *s.cfg
	if len(req.Players) > 0 {
		cfg.Players = req.Players
	}
	if req.Seed != 0 {
		cfg.Game.Seed = req.Seed
	}
	if err := cfg.Validate(); err != nil {
		s.respondError(c, err)
		return
	}

	seed := cfg.Seed()
	registry, seats, err := cfg.Roster(seed)
	if err != nil {
		s.respondError(c, err)
		return
	}
	controller, err := s.games.CreateGame(registry, seats, cfg.Options(), seed)
	if err != nil {
		s.respondError(c, err)
		return
	}

	// 有远程座位时默认不开始，等代理接入后再调用 start
	started := !hasRemote(seats)
	if req.Start != nil {
		started = *req.Start
	}
	if started {
		if err := s.games.StartGame(s.ctx, controller.ID()); err != nil {
			s.respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"id": controller.ID(), "seats": seats, "started": started})
}

func hasRemote(seats []services.Seat) bool {
	for _, st := range seats {
		if st.Agent == services.AgentRemote {
			return true
		}
	}
	return false
}

func (s *server) listGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": s.games.ListGames()})
}

// listHistory 事件存储中记录过的对局，包括之前进程运行的对局
func (s *server) listHistory(c *gin.Context) {
	ids, err := s.events.Games(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": ids})
}

func (s *server) getSeats(c *gin.Context) {
	seats, err := s.games.Seats(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seats": seats})
}

func (s *server) getGame(c *gin.Context) {
	controller, err := s.games.GetGame(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, controller.Snapshot())
}

func (s *server) getEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.games.GetGame(id); err != nil {
		s.respondError(c, err)
		return
	}
	events, err := s.events.ByGame(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *server) startGame(c *gin.Context) {
	if err := s.games.StartGame(s.ctx, c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "游戏已开始"})
}

func (s *server) abortGame(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = "手动中止"
	}
	if err := s.games.AbortGame(c.Param("id"), req.Reason); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "已请求中止"})
}

// serveWS 观战或以远程代理身份接入：/ws?game=<id>[&player=<n>]
func (s *server) serveWS(c *gin.Context) {
	gameID := c.Query("game")
	if _, err := s.games.GetGame(gameID); err != nil {
		s.respondError(c, err)
		return
	}

	player := models.NoPlayer
	if p := c.Query("player"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n >= services.StandardPlayerCount {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的玩家编号"})
			return
		}
		player = n
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("upgrade websocket")
		return
	}
	s.ws.RegisterConnection(gameID, player, conn)
}

func (s *server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrGameNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConfig):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrGameInProgress):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
