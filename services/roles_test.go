package services

import (
	"errors"
	"testing"

	"github.com/qianlnk/autowolf/models"
)

// standardRoles 0-2 狼人, 3 预言家, 4 女巫, 5 猎人, 6-9 村民
func standardRoles() []models.Role {
	return []models.Role{
		models.Werewolf, models.Werewolf, models.Werewolf,
		models.Seer, models.Witch, models.Hunter,
		models.Villager, models.Villager, models.Villager, models.Villager,
	}
}

func newTestGame(t *testing.T) *GameState {
	t.Helper()
	registry, err := NewRoleRegistry(standardRoles())
	if err != nil {
		t.Fatalf("创建角色表失败: %v", err)
	}
	return NewGameState("test", registry, nil)
}

func TestNewRoleRegistry(t *testing.T) {
	tests := []struct {
		name  string
		roles func() []models.Role
		ok    bool
	}{
		{"标准配置", standardRoles, true},
		{"人数不足", func() []models.Role { return standardRoles()[:9] }, false},
		{"四狼", func() []models.Role {
			r := standardRoles()
			r[9] = models.Werewolf
			return r
		}, false},
		{"两个预言家", func() []models.Role {
			r := standardRoles()
			r[6] = models.Seer
			return r
		}, false},
		{"未知角色", func() []models.Role {
			r := standardRoles()
			r[7] = models.Role("guard")
			return r
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoleRegistry(tt.roles())
			if tt.ok && err != nil {
				t.Fatalf("不应出错: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrConfig) {
				t.Fatalf("期望 ErrConfig, 得到 %v", err)
			}
		})
	}
}

func TestAssign(t *testing.T) {
	registry, err := Assign(StandardPlayerCount, StandardRoleCounts, nil)
	if err != nil {
		t.Fatalf("分配角色失败: %v", err)
	}
	if registry.Len() != StandardPlayerCount {
		t.Fatalf("玩家数 = %d", registry.Len())
	}
	if registry.Role(0) != models.Werewolf || registry.Role(9) != models.Villager {
		t.Fatalf("未打乱时角色顺序 = %v", registry.Roles())
	}

	reversed, err := Assign(StandardPlayerCount, StandardRoleCounts, func(r []models.Role) {
		for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
			r[i], r[j] = r[j], r[i]
		}
	})
	if err != nil {
		t.Fatalf("分配角色失败: %v", err)
	}
	if reversed.Role(0) != models.Villager || reversed.Role(9) != models.Werewolf {
		t.Fatalf("打乱后角色顺序 = %v", reversed.Roles())
	}

	if _, err := Assign(8, StandardRoleCounts, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("人数错误应返回 ErrConfig, 得到 %v", err)
	}
}

func TestRegistryIsImmutable(t *testing.T) {
	roles := standardRoles()
	registry, err := NewRoleRegistry(roles)
	if err != nil {
		t.Fatalf("创建角色表失败: %v", err)
	}
	roles[0] = models.Villager
	out := registry.Roles()
	out[1] = models.Villager
	if registry.Role(0) != models.Werewolf || registry.Role(1) != models.Werewolf {
		t.Fatal("角色表不应受外部修改影响")
	}
}

func TestPlayersNames(t *testing.T) {
	registry, _ := NewRoleRegistry(standardRoles())
	players := registry.Players([]string{"甲", "", "丙"})
	if players[0].Name != "甲" || players[1].Name != "玩家1" || players[9].Name != "玩家9" {
		t.Fatalf("玩家名 = %q %q %q", players[0].Name, players[1].Name, players[9].Name)
	}
	for _, p := range players {
		if !p.Alive || p.DeathNight != 0 {
			t.Fatalf("%d号初始状态错误: %+v", p.ID, p)
		}
	}
}
