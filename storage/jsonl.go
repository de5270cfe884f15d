package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/qianlnk/autowolf/models"
)

// JSONLSink 每局一个 JSON Lines 文件：<dir>/game_<id>.jsonl
type JSONLSink struct {
	dir   string
	mutex sync.Mutex
	files map[string]*os.File
}

// NewJSONLSink 创建目录并返回接收端
func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	return &JSONLSink{dir: dir, files: make(map[string]*os.File)}, nil
}

// Path 某局日志的路径
func (s *JSONLSink) Path(gameID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("game_%s.jsonl", gameID))
}

// Append 追加一行
func (s *JSONLSink) Append(_ context.Context, event models.Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, ok := s.files[event.GameID]
	if !ok {
		f, err = os.OpenFile(s.Path(event.GameID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		s.files[event.GameID] = f
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("写入日志失败: %w", err)
	}
	return nil
}

// Finish 关闭某局的文件。终局事件之后还有 MVP 事件，所以由控制器在最后一次写入后调用
func (s *JSONLSink) Finish(gameID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, ok := s.files[gameID]
	if !ok {
		return nil
	}
	delete(s.files, gameID)
	if err := f.Close(); err != nil {
		return fmt.Errorf("关闭日志文件失败: %w", err)
	}
	return nil
}

// Close 关闭所有打开的文件
func (s *JSONLSink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var firstErr error
	for id, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, id)
	}
	return firstErr
}
