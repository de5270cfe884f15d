package services

import (
	"errors"

	"github.com/qianlnk/autowolf/models"
)

// 游戏阶段
const (
	PhaseSetup = models.PhaseSetup // 准备阶段
	PhaseNight = models.PhaseNight // 夜晚阶段
	PhaseDay   = models.PhaseDay   // 白天阶段
	PhaseVote  = models.PhaseVote  // 投票阶段
	PhaseEnded = models.PhaseEnded // 结束
)

var (
	// ErrConfig 角色或名单配置错误，开局前致命
	ErrConfig = errors.New("配置错误")
	// ErrIllegalAction 代理请求了不被允许的动作，可重试或取默认值
	ErrIllegalAction = errors.New("非法动作")
	// ErrOutOfOrderPhase 阶段顺序被破坏，属于引擎内部错误
	ErrOutOfOrderPhase = errors.New("阶段顺序错误")
	// ErrAgentUnresponsive 代理无响应
	ErrAgentUnresponsive = errors.New("代理无响应")

	ErrGameNotStarted = errors.New("游戏尚未开始")
	ErrGameInProgress = errors.New("游戏正在进行中")
	ErrGameNotFound   = errors.New("游戏不存在")
	ErrGameAborted    = errors.New("游戏已中止")
)

// Recoverable 错误是否来自外部代理，可通过重试或默认动作恢复
func Recoverable(err error) bool {
	return errors.Is(err, ErrIllegalAction) || errors.Is(err, ErrAgentUnresponsive)
}
