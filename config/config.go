// Package config 加载运行配置：默认值 < 配置文件 < WEREWOLF_ 环境变量 < 命令行参数
package config

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/qianlnk/autowolf/models"
	"github.com/qianlnk/autowolf/services"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "WEREWOLF"

// Config 运行配置
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Game    GameConfig     `mapstructure:"game"`
	Players []PlayerConfig `mapstructure:"players"`
	Log     LogConfig      `mapstructure:"log"`
	Storage StorageConfig  `mapstructure:"storage"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// GameConfig 对局参数
type GameConfig struct {
	MaxRounds       int           `mapstructure:"max_rounds"`
	DecisionTimeout time.Duration `mapstructure:"decision_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Seed            int64         `mapstructure:"seed"` // 0 表示按时间取种子
	MVP             bool          `mapstructure:"mvp"`
	Script          string        `mapstructure:"script"` // 剧本路径，仅用于 --once
}

// PlayerConfig 单个座位；role 要么全部填写，要么全部留空由系统洗牌
type PlayerConfig struct {
	Name        string `mapstructure:"name" json:"name"`
	Role        string `mapstructure:"role" json:"role,omitempty"`
	Agent       string `mapstructure:"agent" json:"agent,omitempty"`
	Personality string `mapstructure:"personality" json:"personality,omitempty"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console 或 json
}

// StorageConfig 事件存储配置，留空表示不启用
type StorageConfig struct {
	SQLite   string `mapstructure:"sqlite"`
	JSONLDir string `mapstructure:"jsonl_dir"`
}

// flag 名 → 配置键
var flagKeys = map[string]string{
	"addr":             "server.addr",
	"max-rounds":       "game.max_rounds",
	"decision-timeout": "game.decision_timeout",
	"max-retries":      "game.max_retries",
	"seed":             "game.seed",
	"mvp":              "game.mvp",
	"script":           "game.script",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"sqlite":           "storage.sqlite",
	"jsonl-dir":        "storage.jsonl_dir",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("game.max_rounds", 10)
	v.SetDefault("game.decision_timeout", 30*time.Second)
	v.SetDefault("game.max_retries", 2)
	v.SetDefault("game.seed", 0)
	v.SetDefault("game.mvp", true)
	v.SetDefault("game.script", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("storage.sqlite", "")
	v.SetDefault("storage.jsonl_dir", "")
}

// NewFlagSet 命令行参数
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "配置文件路径 (yaml/json/toml)")
	fs.String("addr", ":8080", "HTTP 监听地址")
	fs.Int("max-rounds", 10, "最大夜数，达到后平局，0 表示不限")
	fs.Duration("decision-timeout", 30*time.Second, "单次决策超时")
	fs.Int("max-retries", 2, "非法选择后的重试次数")
	fs.Int64("seed", 0, "随机种子，0 表示按时间取")
	fs.Bool("mvp", true, "终局后进行 MVP 投票")
	fs.String("log-level", "info", "日志级别")
	fs.String("log-format", "console", "日志格式 console|json")
	fs.String("sqlite", "", "SQLite 事件库路径")
	fs.String("jsonl-dir", "", "JSONL 对局日志目录")
	fs.Bool("once", false, "本地运行一局后退出")
	fs.String("script", "", "--once 时按 YAML 剧本运行并校验期望结果")
	return fs
}

// Load 解析参数并合并配置文件、环境变量和默认值
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrConfig, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("绑定参数 %s 失败: %w", name, err)
			}
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: 读取配置文件失败: %v", services.ErrConfig, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: 解析配置失败: %v", services.ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验运行参数
func (c *Config) Validate() error {
	var errs []error
	if c.Game.MaxRounds < 0 {
		errs = append(errs, errors.New("max_rounds 不能为负数"))
	}
	if c.Game.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries 不能为负数"))
	}
	if c.Game.DecisionTimeout <= 0 {
		errs = append(errs, errors.New("decision_timeout 必须大于 0"))
	}
	if n := len(c.Players); n != 0 && n != services.StandardPlayerCount {
		errs = append(errs, fmt.Errorf("玩家数量必须是%d个，当前有%d个", services.StandardPlayerCount, n))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", services.ErrConfig, errors.Join(errs...))
	}
	return nil
}

// Options 对局运行参数
func (c *Config) Options() services.Options {
	return services.Options{
		DecisionTimeout: c.Game.DecisionTimeout,
		MaxRetries:      c.Game.MaxRetries,
		MaxRounds:       c.Game.MaxRounds,
		MVP:             c.Game.MVP,
	}
}

// Seed 随机种子，未配置时按当前时间
func (c *Config) Seed() int64 {
	if c.Game.Seed != 0 {
		return c.Game.Seed
	}
	return time.Now().UnixNano()
}

// Roster 根据座位配置生成角色表和座位。未配置座位时使用十个本地 AI；
// 角色要么全部指定，要么全部留空按标准配置洗牌，混合填写视为配置错误
func (c *Config) Roster(seed int64) (*services.RoleRegistry, []services.Seat, error) {
	players := c.Players
	if len(players) == 0 {
		players = make([]PlayerConfig, services.StandardPlayerCount)
	}

	seats := make([]services.Seat, len(players))
	roles := make([]models.Role, 0, len(players))
	for i, p := range players {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("玩家%d", i)
		}
		agent := p.Agent
		if agent == "" {
			agent = services.AgentHeuristic
		}
		seats[i] = services.Seat{Name: name, Agent: agent, Personality: p.Personality}
		if p.Role != "" {
			roles = append(roles, models.Role(strings.ToLower(p.Role)))
		}
	}

	switch len(roles) {
	case 0:
		rng := rand.New(rand.NewSource(seed))
		registry, err := services.Assign(len(players), services.StandardRoleCounts, func(r []models.Role) {
			rng.Shuffle(len(r), func(i, j int) { r[i], r[j] = r[j], r[i] })
		})
		return registry, seats, err
	case len(players):
		registry, err := services.NewRoleRegistry(roles)
		return registry, seats, err
	default:
		return nil, nil, fmt.Errorf("%w: %d个座位中只有%d个指定了角色", services.ErrConfig, len(players), len(roles))
	}
}
