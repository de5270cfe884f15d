package services

import (
	"reflect"
	"testing"

	"github.com/qianlnk/autowolf/models"
)

func aliveSet(ids ...int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func TestTally(t *testing.T) {
	all := aliveSet(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)

	tests := []struct {
		name       string
		votes      map[int]int
		alive      map[int]bool
		eliminated int
		tie        bool
	}{
		{"多数出局", map[int]int{0: 6, 1: 6, 2: 6, 3: 0, 4: 0}, all, 6, false},
		{"平票无人出局", map[int]int{0: 6, 1: 6, 6: 0, 7: 0, 8: models.NoPlayer}, all, models.NoPlayer, true},
		{"全部弃票", map[int]int{0: models.NoPlayer, 1: models.NoPlayer}, all, models.NoPlayer, false},
		{"没有投票", map[int]int{}, all, models.NoPlayer, false},
		{"死者的票不计", map[int]int{0: 6, 1: 6, 2: 7, 3: 7, 4: 7}, aliveSet(0, 1, 2, 6, 7), 6, false},
		{"投给死者的票不计", map[int]int{0: 6, 1: 6, 2: 7}, aliveSet(0, 1, 2, 7), 7, false},
		{"可以投自己", map[int]int{3: 3, 4: 3, 5: 4}, all, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Tally(tt.votes, tt.alive)
			if r.Eliminated != tt.eliminated || r.Tie != tt.tie {
				t.Fatalf("出局 = %d 平票 = %v, 期望 %d %v (counts=%v)", r.Eliminated, r.Tie, tt.eliminated, tt.tie, r.Counts)
			}
		})
	}
}

func TestTallyTieLeaders(t *testing.T) {
	r := Tally(map[int]int{0: 7, 1: 6, 2: 7, 3: 6, 4: 9}, aliveSet(0, 1, 2, 3, 4, 6, 7, 9))
	if !reflect.DeepEqual(r.Leaders, []int{6, 7}) || r.MaxVotes != 2 {
		t.Fatalf("并列 = %v 最高票 = %d", r.Leaders, r.MaxVotes)
	}
}

func TestCollapseWolfVotes(t *testing.T) {
	tests := []struct {
		name  string
		votes map[int]int
		want  int
	}{
		{"多数", map[int]int{0: 6, 1: 6, 2: 7}, 6},
		{"一致", map[int]int{0: 8, 1: 8, 2: 8}, 8},
		{"平票取最小编号狼人的目标", map[int]int{0: 7, 1: 6}, 7},
		{"最小编号狼人放弃", map[int]int{0: models.NoPlayer, 1: 8, 2: 7}, 8},
		{"全部放弃", map[int]int{0: models.NoPlayer, 1: models.NoPlayer}, models.NoPlayer},
		{"没有狼人", map[int]int{}, models.NoPlayer},
		{"弃票不影响多数", map[int]int{0: models.NoPlayer, 1: 9, 2: models.NoPlayer}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := collapseWolfVotes(tt.votes); got != tt.want {
				t.Fatalf("刀口 = %d, 期望 %d", got, tt.want)
			}
		})
	}
}

func TestLastWordsEligible(t *testing.T) {
	one := []models.Death{{Player: 6, Cause: models.CauseWolfKill}}
	two := []models.Death{{Player: 6, Cause: models.CauseWolfKill}, {Player: 0, Cause: models.CausePoison}}

	tests := []struct {
		name   string
		night  int
		deaths []models.Death
		want   []int
	}{
		{"首夜单人", 1, one, []int{6}},
		{"首夜双死", 1, two, []int{6, 0}},
		{"次夜单人", 2, one, []int{6}},
		{"次夜双死没有遗言", 2, two, nil},
		{"平安夜", 1, nil, nil},
		{"之后的平安夜", 3, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastWordsEligible(tt.night, tt.deaths); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("遗言资格 = %v, 期望 %v", got, tt.want)
			}
		})
	}
}

func TestSpeakingOrder(t *testing.T) {
	tests := []struct {
		name   string
		alive  []int
		deaths []models.Death
		want   []int
	}{
		{"平安夜从最小编号开始", []int{0, 1, 2, 3}, nil, []int{0, 1, 2, 3}},
		{"从死者下一位开始", []int{0, 1, 2, 4, 5}, []models.Death{{Player: 3}}, []int{4, 5, 0, 1, 2}},
		{"取编号最大的死者", []int{0, 2, 4, 6, 8}, []models.Death{{Player: 5}, {Player: 1}}, []int{6, 8, 0, 2, 4}},
		{"死者编号最大时回到开头", []int{0, 1, 2}, []models.Death{{Player: 9}}, []int{0, 1, 2}},
		{"存活列表无序", []int{7, 2, 5}, []models.Death{{Player: 4}}, []int{5, 7, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SpeakingOrder(tt.alive, tt.deaths); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("发言顺序 = %v, 期望 %v", got, tt.want)
			}
		})
	}
}
