package services

import (
	"fmt"

	"github.com/qianlnk/autowolf/models"
)

// StandardPlayerCount 标准局人数
const StandardPlayerCount = 10

// StandardRoleCounts 标准局角色配置：3狼 1预言家 1女巫 1猎人 4村民
var StandardRoleCounts = map[models.Role]int{
	models.Werewolf: 3,
	models.Seer:     1,
	models.Witch:    1,
	models.Hunter:   1,
	models.Villager: 4,
}

// RoleRegistry 玩家到角色的映射，创建后不可变
type RoleRegistry struct {
	roles []models.Role
}

// Assign 按角色数量生成角色列表并校验。打乱顺序由配置层提供，可为 nil
func Assign(playerCount int, counts map[models.Role]int, shuffle func([]models.Role)) (*RoleRegistry, error) {
	if err := ValidateRoleCounts(playerCount, counts); err != nil {
		return nil, err
	}

	roles := make([]models.Role, 0, playerCount)
	for _, role := range models.Roles {
		for i := 0; i < counts[role]; i++ {
			roles = append(roles, role)
		}
	}
	if shuffle != nil {
		shuffle(roles)
	}
	return NewRoleRegistry(roles)
}

// NewRoleRegistry 使用已排好顺序的角色列表，roles[i] 为 i 号玩家的角色
func NewRoleRegistry(roles []models.Role) (*RoleRegistry, error) {
	counts := make(map[models.Role]int)
	for i, role := range roles {
		if !role.Valid() {
			return nil, fmt.Errorf("%w: %d号玩家角色未知 %q", ErrConfig, i, role)
		}
		counts[role]++
	}
	if err := ValidateRoleCounts(len(roles), counts); err != nil {
		return nil, err
	}

	copied := make([]models.Role, len(roles))
	copy(copied, roles)
	return &RoleRegistry{roles: copied}, nil
}

// ValidateRoleCounts 校验人数与角色分布
func ValidateRoleCounts(playerCount int, counts map[models.Role]int) error {
	if playerCount != StandardPlayerCount {
		return fmt.Errorf("%w: 需要%d名玩家，实际%d", ErrConfig, StandardPlayerCount, playerCount)
	}

	total := 0
	for role, n := range counts {
		if !role.Valid() {
			return fmt.Errorf("%w: 未知角色 %q", ErrConfig, role)
		}
		if n < 0 {
			return fmt.Errorf("%w: 角色 %s 数量为负", ErrConfig, role)
		}
		total += n
	}
	if total != playerCount {
		return fmt.Errorf("%w: 角色总数%d与玩家数%d不符", ErrConfig, total, playerCount)
	}

	for _, role := range models.Roles {
		if counts[role] != StandardRoleCounts[role] {
			return fmt.Errorf("%w: 角色 %s 需要%d个，实际%d", ErrConfig, role, StandardRoleCounts[role], counts[role])
		}
	}
	return nil
}

// Len 玩家数
func (r *RoleRegistry) Len() int {
	return len(r.roles)
}

// Role 返回玩家角色
func (r *RoleRegistry) Role(player int) models.Role {
	return r.roles[player]
}

// Roles 返回角色列表副本
func (r *RoleRegistry) Roles() []models.Role {
	out := make([]models.Role, len(r.roles))
	copy(out, r.roles)
	return out
}

// Players 按角色生成初始玩家列表
func (r *RoleRegistry) Players(names []string) []models.Player {
	players := make([]models.Player, len(r.roles))
	for i, role := range r.roles {
		name := fmt.Sprintf("玩家%d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		players[i] = models.Player{
			ID:    i,
			Name:  name,
			Role:  role,
			Alive: true,
		}
	}
	return players
}
