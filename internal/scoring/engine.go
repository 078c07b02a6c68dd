// Package scoring 计算成员与俱乐部的月度活跃度。
//
// 引擎是纯函数：输入是调用方从各个数据源组装好的快照和策略快照，
// 不访问数据库也不读取时钟，相同输入必然得到相同输出。
package scoring

import (
	"math"
	"sort"
	"strings"

	"clubpoints/internal/config"
	"clubpoints/internal/model"
	"clubpoints/internal/policy"
)

// Tier 分级表中的一档
type Tier struct {
	Label        string
	MinScore     float64
	RewardPoints int64
}

type Weights struct {
	Events       float64
	Feedback     float64
	Checkin      float64
	MemberScore  float64
	StaffQuality float64
}

// Params 评分常量，全部来自配置
type Params struct {
	AttendanceBaseScore int
	StaffPointPerTask   int
	StaffEvaluation     map[string]float64
	DefaultStaffScore   float64
	EventCountCap       int
	Weights             Weights
	MemberTiers         []Tier
	ClubTiers           []Tier
}

func ParamsFromConfig(c config.ScoringConfig) Params {
	p := Params{
		AttendanceBaseScore: c.AttendanceBaseScore,
		StaffPointPerTask:   c.StaffPointPerTask,
		StaffEvaluation:     make(map[string]float64, len(c.StaffEvaluation)),
		DefaultStaffScore:   c.DefaultStaffScore,
		EventCountCap:       c.EventCountCap,
		Weights: Weights{
			Events:       c.Weights.Events,
			Feedback:     c.Weights.Feedback,
			Checkin:      c.Weights.Checkin,
			MemberScore:  c.Weights.MemberScore,
			StaffQuality: c.Weights.StaffQuality,
		},
	}
	// viper 会把 map 的 key 转成小写
	for k, v := range c.StaffEvaluation {
		p.StaffEvaluation[strings.ToUpper(k)] = float64(v)
	}
	for _, t := range c.MemberTiers {
		p.MemberTiers = append(p.MemberTiers, Tier{Label: t.Label, MinScore: t.MinScore, RewardPoints: t.RewardPoints})
	}
	for _, t := range c.ClubTiers {
		p.ClubTiers = append(p.ClubTiers, Tier{Label: t.Label, MinScore: t.MinScore, RewardPoints: t.RewardPoints})
	}
	return p
}

// Classify 返回 score 落入的最高一档，低于所有阈值时返回最低档
func Classify(tiers []Tier, score float64) Tier {
	if len(tiers) == 0 {
		return Tier{}
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinScore > sorted[j].MinScore })
	for _, t := range sorted {
		if t.MinScore <= score {
			return t
		}
	}
	return sorted[len(sorted)-1]
}

// ============================================================================
// 成员
// ============================================================================

// MemberSnapshot 某成员某月的评分输入
type MemberSnapshot struct {
	MembershipID     int64
	ClubID           int64
	TotalSessions    int
	AttendedSessions int // PRESENT + LATE
	StaffTaskCount   int
	Penalties        []int
	EventsAttended   int
}

type MemberScore struct {
	MembershipID         int64
	ClubID               int64
	TotalSessions        int
	AttendedSessions     int
	AttendanceRate       float64
	AttendanceBaseScore  int
	AttendanceMultiplier float64
	AttendanceScore      int
	StaffBaseScore       int
	StaffTaskCount       int
	StaffScore           int
	PenaltyTotal         int
	EventsAttended       int
	FinalScore           int
	ActivityLevel        string
	// Membership 写回成员关系的倍率与等级，结算时使用
	Membership policy.Resolution
}

func ScoreMember(snap MemberSnapshot, set *policy.Set, p Params) MemberScore {
	rate := 0.0
	if snap.TotalSessions > 0 {
		rate = float64(snap.AttendedSessions) / float64(snap.TotalSessions)
	}
	rate = round(rate, 4)

	attendance := set.Resolve(model.TargetMember, model.ActivitySessionAttendance, rate*100)
	attendanceScore := int(math.Round(float64(p.AttendanceBaseScore) * attendance.Multiplier))

	staffScore := snap.StaffTaskCount * p.StaffPointPerTask

	penalty := 0
	for _, pt := range snap.Penalties {
		if pt < 0 {
			penalty += pt
		}
	}

	final := attendanceScore + staffScore + penalty

	return MemberScore{
		MembershipID:         snap.MembershipID,
		ClubID:               snap.ClubID,
		TotalSessions:        snap.TotalSessions,
		AttendedSessions:     snap.AttendedSessions,
		AttendanceRate:       rate,
		AttendanceBaseScore:  p.AttendanceBaseScore,
		AttendanceMultiplier: attendance.Multiplier,
		AttendanceScore:      attendanceScore,
		StaffBaseScore:       p.StaffPointPerTask,
		StaffTaskCount:       snap.StaffTaskCount,
		StaffScore:           staffScore,
		PenaltyTotal:         penalty,
		EventsAttended:       snap.EventsAttended,
		FinalScore:           final,
		ActivityLevel:        Classify(p.MemberTiers, float64(final)).Label,
		Membership:           set.Resolve(model.TargetMember, model.ActivityEventParticipation, float64(snap.EventsAttended)),
	}
}

// ToModel 转换成待写入的快照行
func (s MemberScore) ToModel(period Period) *model.MemberMonthlyActivity {
	return &model.MemberMonthlyActivity{
		MembershipID:         s.MembershipID,
		ClubID:               s.ClubID,
		Year:                 period.Year,
		Month:                period.Month,
		TotalSessions:        s.TotalSessions,
		AttendedSessions:     s.AttendedSessions,
		AttendanceRate:       s.AttendanceRate,
		AttendanceBaseScore:  s.AttendanceBaseScore,
		AttendanceMultiplier: s.AttendanceMultiplier,
		AttendanceScore:      s.AttendanceScore,
		StaffBaseScore:       s.StaffBaseScore,
		StaffTaskCount:       s.StaffTaskCount,
		StaffScore:           s.StaffScore,
		PenaltyTotal:         s.PenaltyTotal,
		EventsAttended:       s.EventsAttended,
		FinalScore:           s.FinalScore,
		ActivityLevel:        s.ActivityLevel,
	}
}

// ============================================================================
// 俱乐部
// ============================================================================

// EventStats 单场已完成活动的签到统计
type EventStats struct {
	EventID       int64
	Registrations int // 未取消的报名数
	Attended      int // 出勤等级不为 NONE 的报名数
}

// ClubSnapshot 某俱乐部某月的评分输入
type ClubSnapshot struct {
	ClubID            int64
	Events            []EventStats
	FeedbackRatings   []int
	MemberFinalScores []int
	StaffEvaluations  []string
}

type ClubScore struct {
	ClubID                 int64
	EventCount             int
	AvgFeedbackRating      float64
	AvgCheckinRate         float64
	AvgMemberActivityScore float64
	StaffPerformanceScore  float64
	FinalScore             float64
	AwardLevel             string
	RewardPoints           int64
	// Club 写回俱乐部的倍率与等级，结算时使用
	Club policy.Resolution
}

func ScoreClub(snap ClubSnapshot, set *policy.Set, p Params) ClubScore {
	eventCount := len(snap.Events)

	checkinSum, checkinEvents := 0.0, 0
	for _, e := range snap.Events {
		if e.Registrations <= 0 {
			continue
		}
		checkinSum += float64(e.Attended) / float64(e.Registrations)
		checkinEvents++
	}
	avgCheckin := 0.0
	if checkinEvents > 0 {
		avgCheckin = round(checkinSum/float64(checkinEvents), 4)
	}

	avgRating := round(meanInts(snap.FeedbackRatings), 2)
	avgMember := round(meanInts(snap.MemberFinalScores), 2)

	staff := p.DefaultStaffScore
	if len(snap.StaffEvaluations) > 0 {
		sum := 0.0
		for _, e := range snap.StaffEvaluations {
			if v, ok := p.StaffEvaluation[e]; ok {
				sum += v
			} else {
				sum += p.DefaultStaffScore
			}
		}
		staff = sum / float64(len(snap.StaffEvaluations))
	}
	staff = round(staff, 2)

	eventsComponent := 0.0
	if p.EventCountCap > 0 {
		eventsComponent = math.Min(float64(eventCount), float64(p.EventCountCap)) / float64(p.EventCountCap) * 100
	}
	components := []struct{ weight, value float64 }{
		{p.Weights.Events, eventsComponent},
		{p.Weights.Feedback, avgRating / 5 * 100},
		{p.Weights.Checkin, avgCheckin * 100},
		{p.Weights.MemberScore, clamp(avgMember, 0, 100)},
		{p.Weights.StaffQuality, staff},
	}
	weighted, weights := 0.0, 0.0
	for _, c := range components {
		weighted += c.weight * c.value
		weights += c.weight
	}
	final := 0.0
	if weights > 0 {
		final = round(weighted/weights, 2)
	}

	tier := Classify(p.ClubTiers, final)
	return ClubScore{
		ClubID:                 snap.ClubID,
		EventCount:             eventCount,
		AvgFeedbackRating:      avgRating,
		AvgCheckinRate:         avgCheckin,
		AvgMemberActivityScore: avgMember,
		StaffPerformanceScore:  staff,
		FinalScore:             final,
		AwardLevel:             tier.Label,
		RewardPoints:           tier.RewardPoints,
		Club:                   set.Resolve(model.TargetClub, model.ActivityClubEvents, float64(eventCount)),
	}
}

func (s ClubScore) ToModel(period Period) *model.ClubMonthlyActivity {
	return &model.ClubMonthlyActivity{
		ClubID:                 s.ClubID,
		Year:                   period.Year,
		Month:                  period.Month,
		EventCount:             s.EventCount,
		AvgFeedbackRating:      s.AvgFeedbackRating,
		AvgCheckinRate:         s.AvgCheckinRate,
		AvgMemberActivityScore: s.AvgMemberActivityScore,
		StaffPerformanceScore:  s.StaffPerformanceScore,
		FinalScore:             s.FinalScore,
		AwardLevel:             s.AwardLevel,
		RewardPoints:           s.RewardPoints,
		ClubMultiplier:         s.Club.Multiplier,
		ClubLevel:              s.Club.Level,
	}
}

func meanInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
