package scoring

import (
	"testing"
	"time"

	"clubpoints/internal/config"
	"clubpoints/internal/model"
	"clubpoints/internal/policy"

	"github.com/stretchr/testify/require"
)

var effective = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func testParams() Params {
	return Params{
		AttendanceBaseScore: 50,
		StaffPointPerTask:   5,
		StaffEvaluation:     map[string]float64{"POOR": 40, "AVERAGE": 70, "GOOD": 90, "EXCELLENT": 100},
		DefaultStaffScore:   50,
		EventCountCap:       4,
		Weights:             Weights{Events: 0.25, Feedback: 0.2, Checkin: 0.2, MemberScore: 0.2, StaffQuality: 0.15},
		MemberTiers: []Tier{
			{Label: "LOW", MinScore: 0},
			{Label: "NORMAL", MinScore: 20},
			{Label: "POSITIVE", MinScore: 50},
			{Label: "OUTSTANDING", MinScore: 80},
		},
		ClubTiers: []Tier{
			{Label: "LOW", MinScore: 0},
			{Label: "NORMAL", MinScore: 40, RewardPoints: 100},
			{Label: "POSITIVE", MinScore: 65, RewardPoints: 300},
			{Label: "OUTSTANDING", MinScore: 85, RewardPoints: 500},
		},
	}
}

func memberPolicy(activity, level string, threshold, multiplier float64) model.MultiplierPolicy {
	return model.MultiplierPolicy{
		TargetType: model.TargetMember, ActivityType: activity, LevelOrStatus: level,
		MinEventsThreshold: threshold, Multiplier: multiplier, Active: true, EffectiveFrom: effective,
	}
}

func testPolicies() *policy.Set {
	return policy.NewSet([]model.MultiplierPolicy{
		memberPolicy(model.ActivitySessionAttendance, "ABSENT", 0, 0),
		memberPolicy(model.ActivitySessionAttendance, "PARTIAL", 50, 1.0),
		memberPolicy(model.ActivitySessionAttendance, "REGULAR", 75, 1.2),
		memberPolicy(model.ActivityEventParticipation, "ACTIVE", 2, 1.1),
		memberPolicy(model.ActivityEventParticipation, "CORE", 5, 1.3),
		{
			TargetType: model.TargetClub, ActivityType: model.ActivityClubEvents, LevelOrStatus: "GOLD",
			MinEventsThreshold: 2, Multiplier: 1.2, Active: true, EffectiveFrom: effective,
		},
	}, effective.AddDate(1, 0, 0))
}

func TestScoreMemberZeroAttendanceWithPenalty(t *testing.T) {
	score := ScoreMember(MemberSnapshot{
		MembershipID:     1,
		ClubID:           9,
		TotalSessions:    4,
		AttendedSessions: 0,
		StaffTaskCount:   2,
		Penalties:        []int{-10},
	}, testPolicies(), testParams())

	require.Equal(t, 0.0, score.AttendanceRate)
	require.Equal(t, 0.0, score.AttendanceMultiplier)
	require.Equal(t, 0, score.AttendanceScore)
	require.Equal(t, 10, score.StaffScore)
	require.Equal(t, -10, score.PenaltyTotal)
	require.Equal(t, 0+10-10, score.FinalScore)
	require.Equal(t, "LOW", score.ActivityLevel)
	require.False(t, score.Membership.Matched)
	require.Equal(t, 1.0, score.Membership.Multiplier)
}

func TestScoreMemberRegularAttendance(t *testing.T) {
	score := ScoreMember(MemberSnapshot{
		TotalSessions:    4,
		AttendedSessions: 3,
		StaffTaskCount:   1,
		EventsAttended:   5,
	}, testPolicies(), testParams())

	require.Equal(t, 0.75, score.AttendanceRate)
	require.Equal(t, 60, score.AttendanceScore) // round(50 × 1.2)
	require.Equal(t, 65, score.FinalScore)
	require.Equal(t, "POSITIVE", score.ActivityLevel)
	require.Equal(t, "CORE", score.Membership.Level)
	require.Equal(t, 1.3, score.Membership.Multiplier)
}

func TestScoreMemberNoSessionsIsZeroRate(t *testing.T) {
	score := ScoreMember(MemberSnapshot{}, testPolicies(), testParams())
	require.Equal(t, 0.0, score.AttendanceRate)
	require.Equal(t, 0, score.FinalScore)
}

func TestScoreMemberIgnoresPositivePenalty(t *testing.T) {
	score := ScoreMember(MemberSnapshot{Penalties: []int{-3, 7, -2}}, testPolicies(), testParams())
	require.Equal(t, -5, score.PenaltyTotal)
}

func TestScoreMemberIsDeterministic(t *testing.T) {
	snap := MemberSnapshot{TotalSessions: 7, AttendedSessions: 5, StaffTaskCount: 3, Penalties: []int{-4}, EventsAttended: 2}
	first := ScoreMember(snap, testPolicies(), testParams())
	second := ScoreMember(snap, testPolicies(), testParams())
	require.Equal(t, first, second)
}

func TestScoreClub(t *testing.T) {
	score := ScoreClub(ClubSnapshot{
		ClubID: 3,
		Events: []EventStats{
			{EventID: 1, Registrations: 10, Attended: 8},
			{EventID: 2, Registrations: 5, Attended: 5},
			{EventID: 3, Registrations: 0, Attended: 0},
		},
		FeedbackRatings:   []int{4, 5},
		MemberFinalScores: []int{60, 80},
		StaffEvaluations:  []string{model.EvaluationGood, model.EvaluationExcellent},
	}, testPolicies(), testParams())

	require.Equal(t, 3, score.EventCount)
	require.Equal(t, 0.9, score.AvgCheckinRate)
	require.Equal(t, 4.5, score.AvgFeedbackRating)
	require.Equal(t, 70.0, score.AvgMemberActivityScore)
	require.Equal(t, 95.0, score.StaffPerformanceScore)
	// 0.25×75 + 0.2×90 + 0.2×90 + 0.2×70 + 0.15×95
	require.InDelta(t, 83.0, score.FinalScore, 0.011)
	require.Equal(t, "POSITIVE", score.AwardLevel)
	require.Equal(t, int64(300), score.RewardPoints)
	require.Equal(t, "GOLD", score.Club.Level)
	require.Equal(t, 1.2, score.Club.Multiplier)
}

func TestScoreClubWithoutData(t *testing.T) {
	score := ScoreClub(ClubSnapshot{ClubID: 3}, testPolicies(), testParams())

	require.Equal(t, 0, score.EventCount)
	require.Equal(t, 50.0, score.StaffPerformanceScore)
	require.InDelta(t, 7.5, score.FinalScore, 0.001) // 只有默认工作分 0.15×50
	require.Equal(t, "LOW", score.AwardLevel)
	require.Equal(t, int64(0), score.RewardPoints)
	require.False(t, score.Club.Matched)
}

func TestClassify(t *testing.T) {
	tiers := testParams().MemberTiers
	require.Equal(t, "LOW", Classify(tiers, -30).Label)
	require.Equal(t, "LOW", Classify(tiers, 19.99).Label)
	require.Equal(t, "NORMAL", Classify(tiers, 20).Label)
	require.Equal(t, "OUTSTANDING", Classify(tiers, 1000).Label)
	require.Equal(t, Tier{}, Classify(nil, 10))
}

func TestParamsFromConfigUpperCasesEvaluations(t *testing.T) {
	p := ParamsFromConfig(config.Default().Scoring)
	require.Equal(t, 90.0, p.StaffEvaluation[model.EvaluationGood])
	require.Len(t, p.ClubTiers, 4)
	require.Equal(t, "OUTSTANDING", Classify(p.ClubTiers, 99).Label)
}

func TestPeriod(t *testing.T) {
	_, err := NewPeriod(2026, 13)
	require.Error(t, err)

	p, err := NewPeriod(2026, 12)
	require.NoError(t, err)
	require.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), p.End())
	require.Equal(t, "2026-12", p.String())

	require.Equal(t, Period{Year: 2025, Month: 12}, PreviousPeriod(time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)))
}
