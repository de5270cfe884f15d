package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/qianlnk/autowolf/config"
	"github.com/qianlnk/autowolf/models"
	"github.com/qianlnk/autowolf/services"
)

func testConfig(t *testing.T, args ...string) *config.Config {
	t.Helper()
	cfg, err := config.Load(config.NewFlagSet("test"), append([]string{"--seed", "7", "--decision-timeout", "2s"}, args...))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	return cfg
}

func newTestServer(t *testing.T) (*server, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t, "--mvp=false")
	st, err := openStorage(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}
	t.Cleanup(st.close)
	s := newServer(context.Background(), cfg, st, zerolog.Nop())
	return s, s.routes()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestGameAPI(t *testing.T) {
	s, h := newTestServer(t)

	code, body := doJSON(t, h, http.MethodPost, "/api/games", `{"start": false}`)
	if code != http.StatusCreated {
		t.Fatalf("创建对局 = %d %v", code, body)
	}
	id, _ := body["id"].(string)
	if id == "" || body["started"] != false {
		t.Fatalf("创建结果 = %v", body)
	}

	if code, _ := doJSON(t, h, http.MethodGet, "/api/games/"+id, ""); code != http.StatusOK {
		t.Fatalf("查询对局 = %d", code)
	}
	if code, _ := doJSON(t, h, http.MethodPost, "/api/games/"+id+"/start", ""); code != http.StatusAccepted {
		t.Fatalf("开始对局 = %d", code)
	}
	if code, _ := doJSON(t, h, http.MethodPost, "/api/games/"+id+"/start", ""); code != http.StatusConflict {
		t.Fatalf("重复开始 = %d, 期望 409", code)
	}

	controller, err := s.games.GetGame(id)
	if err != nil {
		t.Fatalf("获取对局失败: %v", err)
	}
	select {
	case <-controller.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("对局未结束")
	}

	code, body = doJSON(t, h, http.MethodGet, "/api/games/"+id+"/events", "")
	if code != http.StatusOK {
		t.Fatalf("查询事件 = %d", code)
	}
	events, _ := body["events"].([]any)
	if len(events) < 2 {
		t.Fatalf("事件数量 = %d", len(events))
	}

	code, body = doJSON(t, h, http.MethodGet, "/api/games", "")
	if games, _ := body["games"].([]any); code != http.StatusOK || len(games) != 1 {
		t.Fatalf("对局列表 = %d %v", code, body)
	}

	code, body = doJSON(t, h, http.MethodGet, "/api/history", "")
	if ids, _ := body["games"].([]any); code != http.StatusOK || len(ids) != 1 || ids[0] != id {
		t.Fatalf("历史对局 = %d %v", code, body)
	}
}

func TestRemoteSeatsWaitForConnection(t *testing.T) {
	s, h := newTestServer(t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	players := strings.TrimSuffix(strings.Repeat(`{"agent": "heuristic"},`, 9), ",")
	code, body := doJSON(t, h, http.MethodPost, "/api/games", `{"players": [{"agent": "remote"}, `+players+`]}`)
	if code != http.StatusCreated || body["started"] != false {
		t.Fatalf("有远程座位时不应自动开始: %d %v", code, body)
	}
	id := body["id"].(string)
	controller, _ := s.games.GetGame(id)
	if phase := controller.Snapshot().Phase; phase != models.PhaseSetup {
		t.Fatalf("阶段 = %s", phase)
	}

	seatConnected := func() bool {
		_, body := doJSON(t, h, http.MethodGet, "/api/games/"+id+"/seats", "")
		seats, _ := body["seats"].([]any)
		if len(seats) != services.StandardPlayerCount {
			t.Fatalf("座位 = %v", body)
		}
		first, _ := seats[0].(map[string]any)
		if first["agent"] != services.AgentRemote {
			t.Fatalf("0号座位 = %v", first)
		}
		return first["connected"] == true
	}
	if seatConnected() {
		t.Fatal("未接入前不应显示已连接")
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?game="+id+"&player=0", nil)
	if err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !seatConnected() {
		if time.Now().After(deadline) {
			t.Fatal("接入后座位仍显示未连接")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if code, _ := doJSON(t, h, http.MethodGet, "/api/games/missing/seats", ""); code != http.StatusNotFound {
		t.Fatalf("不存在的对局座位 = %d", code)
	}
}

func TestGameAPIErrors(t *testing.T) {
	_, h := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"不存在的对局", http.MethodGet, "/api/games/missing", "", http.StatusNotFound},
		{"中止不存在的对局", http.MethodPost, "/api/games/missing/abort", "", http.StatusNotFound},
		{"座位数错误", http.MethodPost, "/api/games", `{"players": [{"name": "a"}]}`, http.StatusBadRequest},
		{"格式错误", http.MethodPost, "/api/games", `{"players": 1}`, http.StatusBadRequest},
		{"未知代理类型", http.MethodPost, "/api/games", `{"start": false, "players": [` + strings.TrimSuffix(strings.Repeat(`{"agent": "llm"},`, 10), ",") + `]}`, http.StatusBadRequest},
		{"观战不存在的对局", http.MethodGet, "/ws?game=missing", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, body := doJSON(t, h, tt.method, tt.path, tt.body); code != tt.want {
				t.Fatalf("状态码 = %d, 期望 %d (%v)", code, tt.want, body)
			}
		})
	}
}

func TestAbortViaAPI(t *testing.T) {
	s, h := newTestServer(t)

	players := strings.TrimSuffix(strings.Repeat(`{"agent": "remote"},`, 10), ",")
	code, body := doJSON(t, h, http.MethodPost, "/api/games", `{"start": false, "players": [`+players+`]}`)
	if code != http.StatusCreated {
		t.Fatalf("创建对局 = %d %v", code, body)
	}
	id := body["id"].(string)

	if code, _ := doJSON(t, h, http.MethodPost, "/api/games/"+id+"/abort", `{"reason": "测试"}`); code != http.StatusAccepted {
		t.Fatalf("中止 = %d", code)
	}
	if code, _ := doJSON(t, h, http.MethodPost, "/api/games/"+id+"/start", ""); code != http.StatusAccepted {
		t.Fatalf("开始对局 = %d", code)
	}
	controller, _ := s.games.GetGame(id)
	select {
	case <-controller.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("中止后对局未退出")
	}
	snap := controller.Snapshot()
	if !snap.Aborted || len(snap.Nights) != 0 {
		t.Fatalf("对局应在第一夜结算前中止: aborted=%v nights=%d", snap.Aborted, len(snap.Nights))
	}

	_, body = doJSON(t, h, http.MethodGet, "/api/games/"+id+"/events", "")
	events, _ := body["events"].([]any)
	last, _ := events[len(events)-1].(map[string]any)
	if last["type"] != string(models.EventGameAborted) || last["detail"] != "测试" {
		t.Fatalf("最后一条事件 = %v", last)
	}
}

func TestRunOnce(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	if err := runOnce(context.Background(), cfg, nil, zerolog.Nop(), &out); err != nil {
		t.Fatalf("运行对局失败: %v", err)
	}

	var game services.GameState
	if err := json.Unmarshal(out.Bytes(), &game); err != nil {
		t.Fatalf("输出不是合法 JSON: %v", err)
	}
	if !game.Result.Terminal() || game.Phase != models.PhaseEnded {
		t.Fatalf("结果 = %s 阶段 = %s", game.Result, game.Phase)
	}
	if game.MVP == nil {
		t.Fatal("默认应进行 MVP 投票")
	}
}

func TestRunOnceScript(t *testing.T) {
	cfg := testConfig(t, "--script", "services/testdata/vote_hunter.yml", "--mvp=false")
	var out bytes.Buffer
	if err := runOnce(context.Background(), cfg, nil, zerolog.Nop(), &out); err != nil {
		t.Fatalf("剧本对局失败: %v", err)
	}

	var game services.GameState
	if err := json.Unmarshal(out.Bytes(), &game); err != nil {
		t.Fatalf("输出不是合法 JSON: %v", err)
	}
	if game.Result != models.ResultDraw || game.Night != 2 {
		t.Fatalf("结果 = %s 第%d夜", game.Result, game.Night)
	}
}

func TestRunOnceScriptMismatch(t *testing.T) {
	data, err := os.ReadFile("services/testdata/good_win.yml")
	if err != nil {
		t.Fatalf("读取剧本失败: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wrong.yml")
	wrong := strings.Replace(string(data), "result: good_win", "result: wolf_win", 1)
	if err := os.WriteFile(path, []byte(wrong), 0o644); err != nil {
		t.Fatalf("写入剧本失败: %v", err)
	}

	cfg := testConfig(t, "--script", path, "--mvp=false")
	err = runOnce(context.Background(), cfg, nil, zerolog.Nop(), io.Discard)
	if err == nil || !strings.Contains(err.Error(), "wolf_win") {
		t.Fatalf("期望不符时应返回错误, 得到 %v", err)
	}
}
