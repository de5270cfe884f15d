package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/qianlnk/autowolf/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	game_id TEXT    NOT NULL,
	seq     INTEGER NOT NULL,
	type    TEXT    NOT NULL,
	night   INTEGER NOT NULL,
	phase   TEXT    NOT NULL,
	actor   INTEGER NOT NULL,
	target  INTEGER NOT NULL,
	action  TEXT    NOT NULL DEFAULT '',
	cause   TEXT    NOT NULL DEFAULT '',
	result  TEXT    NOT NULL DEFAULT '',
	detail  TEXT    NOT NULL DEFAULT '',
	time    INTEGER NOT NULL,
	PRIMARY KEY (game_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events (game_id, type);
`

// eventRow 数据库中的事件行，时间存为 UnixNano
type eventRow struct {
	GameID string `db:"game_id"`
	Seq    int    `db:"seq"`
	Type   string `db:"type"`
	Night  int    `db:"night"`
	Phase  string `db:"phase"`
	Actor  int    `db:"actor"`
	Target int    `db:"target"`
	Action string `db:"action"`
	Cause  string `db:"cause"`
	Result string `db:"result"`
	Detail string `db:"detail"`
	Time   int64  `db:"time"`
}

func toRow(e models.Event) eventRow {
	return eventRow{
		GameID: e.GameID,
		Seq:    e.Seq,
		Type:   string(e.Type),
		Night:  e.Night,
		Phase:  string(e.Phase),
		Actor:  e.Actor,
		Target: e.Target,
		Action: e.Action,
		Cause:  string(e.Cause),
		Result: string(e.Result),
		Detail: e.Detail,
		Time:   e.Time.UnixNano(),
	}
}

func (r eventRow) event() models.Event {
	return models.Event{
		GameID: r.GameID,
		Seq:    r.Seq,
		Type:   models.EventType(r.Type),
		Night:  r.Night,
		Phase:  models.Phase(r.Phase),
		Actor:  r.Actor,
		Target: r.Target,
		Action: r.Action,
		Cause:  models.CauseOfDeath(r.Cause),
		Result: models.Result(r.Result),
		Detail: r.Detail,
		Time:   time.Unix(0, r.Time).UTC(),
	}
}

// SQLiteSink 基于 SQLite 的事件表
type SQLiteSink struct {
	db *sqlx.DB
}

// OpenSQLite 打开数据库并建表，path 为 ":memory:" 时使用内存库
func OpenSQLite(path string) (*SQLiteSink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("数据库路径不能为空")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 内存库每个连接是独立的
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("建表失败: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Close 关闭数据库
func (s *SQLiteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append 写入一条事件
func (s *SQLiteSink) Append(ctx context.Context, event models.Event) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO events (game_id, seq, type, night, phase, actor, target, action, cause, result, detail, time)
		VALUES (:game_id, :seq, :type, :night, :phase, :actor, :target, :action, :cause, :result, :detail, :time)`,
		toRow(event))
	if err != nil {
		return fmt.Errorf("写入事件失败: %w", err)
	}
	return nil
}

// ByGame 按序号读取一局的全部事件
func (s *SQLiteSink) ByGame(ctx context.Context, gameID string) ([]models.Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM events WHERE game_id = ? ORDER BY seq`, gameID); err != nil {
		return nil, fmt.Errorf("查询事件失败: %w", err)
	}

	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.event())
	}
	return events, nil
}

// Games 已记录的对局 ID，按首条事件时间排序
func (s *SQLiteSink) Games(ctx context.Context) ([]string, error) {
	ids := make([]string, 0)
	if err := s.db.SelectContext(ctx, &ids,
		`SELECT game_id FROM events GROUP BY game_id ORDER BY MIN(time), game_id`); err != nil {
		return nil, fmt.Errorf("查询对局失败: %w", err)
	}
	return ids, nil
}
