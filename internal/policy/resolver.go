// Package policy 把活跃度指标映射为倍率和等级。
//
// 策略是数据而不是代码：同一 (目标类型, 指标) 下按阈值从高到低排列，
// 取第一条阈值不超过指标值的策略。没有任何策略命中时返回默认值
// （倍率 1.0、最低等级），解析永远不会失败。
package policy

import (
	"sort"
	"time"

	"clubpoints/internal/model"
)

// DefaultMultiplier 未命中任何策略时使用的倍率
const DefaultMultiplier = 1.0

// Resolution 一次解析的结果
type Resolution struct {
	Multiplier float64 `json:"multiplier"`
	Level      string  `json:"level"`
	// Matched 为 false 表示走了默认值
	Matched  bool  `json:"matched"`
	PolicyID int64 `json:"policy_id,omitempty"`
}

// Default 返回未命中时的默认结果
func Default() Resolution {
	return Resolution{Multiplier: DefaultMultiplier, Level: model.LevelBasic}
}

type key struct {
	target   model.TargetType
	activity string
}

// Set 某一时刻的策略快照，只读，可以被多个 goroutine 共享
type Set struct {
	asOf   time.Time
	groups map[key][]model.MultiplierPolicy
}

// NewSet 从策略列表构建快照，只保留 asOf 时已生效的启用策略
func NewSet(policies []model.MultiplierPolicy, asOf time.Time) *Set {
	s := &Set{asOf: asOf, groups: make(map[key][]model.MultiplierPolicy)}
	for _, p := range policies {
		if !p.Active || p.EffectiveFrom.After(asOf) {
			continue
		}
		k := key{target: p.TargetType, activity: p.ActivityType}
		s.groups[k] = append(s.groups[k], p)
	}
	for k := range s.groups {
		group := s.groups[k]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].MinEventsThreshold != group[j].MinEventsThreshold {
				return group[i].MinEventsThreshold > group[j].MinEventsThreshold
			}
			if group[i].Multiplier != group[j].Multiplier {
				return group[i].Multiplier > group[j].Multiplier
			}
			return group[i].LevelOrStatus < group[j].LevelOrStatus
		})
	}
	return s
}

// Resolve 返回 metric 命中的最高档策略
func (s *Set) Resolve(target model.TargetType, activity string, metric float64) Resolution {
	if s == nil {
		return Default()
	}
	for _, p := range s.groups[key{target: target, activity: activity}] {
		if p.MinEventsThreshold <= metric {
			return Resolution{
				Multiplier: p.Multiplier,
				Level:      p.LevelOrStatus,
				Matched:    true,
				PolicyID:   p.ID,
			}
		}
	}
	return Default()
}

// AsOf 快照的生效时间点，也是策略缓存的加载时间
func (s *Set) AsOf() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.asOf
}

var activityTargets = map[string]model.TargetType{
	model.ActivityEventParticipation: model.TargetMember,
	model.ActivitySessionAttendance:  model.TargetMember,
	model.ActivityClubEvents:         model.TargetClub,
}

// ValidActivity 指标是否存在且属于该目标类型
func ValidActivity(target model.TargetType, activity string) bool {
	t, ok := activityTargets[activity]
	return ok && t == target
}
