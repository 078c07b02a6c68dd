package service

import (
	"sync"
	"testing"

	"clubpoints/internal/apperr"
	"clubpoints/internal/model"

	"github.com/stretchr/testify/require"
)

func (e *testEnv) setEventStatus(t *testing.T, eventID int64, status string) {
	t.Helper()
	require.NoError(t, e.db.Model(&model.Event{}).Where("id = ?", eventID).Update("status", status).Error)
}

func (e *testEnv) setAttendance(t *testing.T, regID int64, level string) {
	t.Helper()
	require.NoError(t, e.db.Model(&model.EventRegistration{}).Where("id = ?", regID).Update("attendance_level", level).Error)
}

func (e *testEnv) registration(t *testing.T, regID int64) *model.EventRegistration {
	t.Helper()
	var reg model.EventRegistration
	require.NoError(t, e.db.First(&reg, regID).Error)
	return &reg
}

func (e *testEnv) event(t *testing.T, eventID int64) *model.Event {
	t.Helper()
	var ev model.Event
	require.NoError(t, e.db.First(&ev, eventID).Error)
	return &ev
}

// fundedEvent 开通活动钱包、拨款并为每个用户锁定押金，返回活动钱包
func (e *testEnv) fundedEvent(t *testing.T, event *model.Event, budget int64, regs ...*model.EventRegistration) *model.Wallet {
	t.Helper()
	wallet, err := e.settlement.OpenEventWallet(e.ctx, event.ID)
	require.NoError(t, err)
	if budget > 0 {
		_, err = e.settlement.GrantBudget(e.ctx, event.ID, budget, "")
		require.NoError(t, err)
	}
	for _, reg := range regs {
		_, err := e.settlement.LockCommit(e.ctx, reg.ID)
		require.NoError(t, err)
	}
	return wallet
}

func TestComputeRewardRoundsHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		committed, factor int64
		multipliers       []float64
		want              int64
	}{
		{100, 2, []float64{1.2, 1.0, 1.0}, 240},
		{100, 1, []float64{1.2, 1.0, 1.0}, 120},
		{100, 2, []float64{1.2, 1.5, 1.5}, 540},
		{33, 1, []float64{1.25}, 41},
		{5, 1, []float64{1.5}, 8},
		{7, 1, []float64{0.5}, 4},
		{1, 1, []float64{0.1, 0.1, 0.1}, 0},
		{0, 2, []float64{3}, 0},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ComputeReward(c.committed, c.factor, c.multipliers...), "%+v", c)
	}
}

func TestSplitLeftoverGivesRemainderToHost(t *testing.T) {
	shares := SplitLeftover(90, []int64{5, 7, 9})
	require.Equal(t, []ClubShare{{5, 30}, {7, 30}, {9, 30}}, shares)

	shares = SplitLeftover(91, []int64{5, 7, 9})
	require.Equal(t, []ClubShare{{5, 31}, {7, 30}, {9, 30}}, shares)

	shares = SplitLeftover(2, []int64{5, 7, 9})
	require.Equal(t, []ClubShare{{5, 2}, {7, 0}, {9, 0}}, shares)

	require.Nil(t, SplitLeftover(0, []int64{5}))
	require.Equal(t, []int64{3, 1, 2}, distributionClubs(3, []int64{1, 2, 3, 2}))
}

func TestOpenAndEnsureEventWallet(t *testing.T) {
	env := newTestEnv(t)
	club := env.fx.Club("host", 1)
	pending := env.fx.Event(club.ID, model.EventTypePublic, model.EventStatusPending, march2026)
	approved := env.fx.Event(club.ID, model.EventTypePublic, model.EventStatusApproved, march2026)

	_, err := env.settlement.OpenEventWallet(env.ctx, pending.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = env.settlement.EnsureEventWallet(env.ctx, approved.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = env.settlement.EnsureEventWallet(env.ctx, 4242)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	first, err := env.settlement.OpenEventWallet(env.ctx, approved.ID)
	require.NoError(t, err)
	again, err := env.settlement.OpenEventWallet(env.ctx, approved.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	ensured, err := env.settlement.EnsureEventWallet(env.ctx, approved.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, ensured.ID)

	summary, err := env.settlement.GetWalletSummary(env.ctx, approved.ID)
	require.NoError(t, err)
	require.Equal(t, WalletSummary{WalletID: first.ID, EventID: approved.ID, OwnerType: model.OwnerTypeEvent, Balance: 0, Active: true}, *summary)
}

func TestGrantBudgetRequiresFundsAndApproval(t *testing.T) {
	env := newTestEnv(t)
	club := env.fx.Club("host", 1)
	clubWallet := env.fx.Wallet(model.OwnerTypeClub, club.ID, 100)
	event := env.fx.Event(club.ID, model.EventTypePublic, model.EventStatusApproved, march2026)
	eventWallet := env.fundedEvent(t, event, 60)

	_, err := env.settlement.GrantBudget(env.ctx, event.ID, 41, "")
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	_, err = env.settlement.GrantBudget(env.ctx, event.ID, 0, "")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	env.setEventStatus(t, event.ID, model.EventStatusCompleted)
	_, err = env.settlement.GrantBudget(env.ctx, event.ID, 10, "")
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	require.Equal(t, int64(40), env.balance(t, clubWallet.ID))
	require.Equal(t, int64(60), env.balance(t, eventWallet.ID))
	env.requireConsistent(t, clubWallet.ID, eventWallet.ID)
}

func TestLockAndReleaseCommit(t *testing.T) {
	env := newTestEnv(t)
	club := env.fx.Club("host", 1)
	event := env.fx.Event(club.ID, model.EventTypePublic, model.EventStatusApproved, march2026)
	userWallet := env.fx.Wallet(model.OwnerTypeUser, 11, 80)
	poorWallet := env.fx.Wallet(model.OwnerTypeUser, 12, 10)
	reg := env.fx.Registration(event.ID, 11, 50, model.AttendanceNone, model.RegistrationStatusPending)
	poor := env.fx.Registration(event.ID, 12, 50, model.AttendanceNone, model.RegistrationStatusPending)
	eventWallet := env.fundedEvent(t, event, 0)

	locked, err := env.settlement.LockCommit(env.ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, model.RegistrationStatusConfirmed, locked.Status)
	require.Equal(t, int64(30), env.balance(t, userWallet.ID))
	require.Equal(t, int64(50), env.balance(t, eventWallet.ID))

	_, err = env.settlement.LockCommit(env.ctx, reg.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = env.settlement.LockCommit(env.ctx, poor.ID)
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	require.Equal(t, model.RegistrationStatusPending, env.registration(t, poor.ID).Status)
	require.Equal(t, int64(10), env.balance(t, poorWallet.ID))

	released, err := env.settlement.ReleaseCommit(env.ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, model.RegistrationStatusCanceled, released.Status)
	require.Equal(t, int64(80), env.balance(t, userWallet.ID))
	require.Equal(t, int64(0), env.balance(t, eventWallet.ID))

	_, err = env.settlement.ReleaseCommit(env.ctx, reg.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	env.requireConsistent(t, userWallet.ID, poorWallet.ID, eventWallet.ID)
}

func TestSettleFullAndHalfAttendance(t *testing.T) {
	env := newTestEnv(t)
	club := env.fx.Club("host", 1.2)
	clubWallet := env.fx.Wallet(model.OwnerTypeClub, club.ID, 1000)
	env.fx.Membership(21, club.ID, 1.0, model.MembershipStateActive)
	env.fx.Membership(22, club.ID, 1.0, model.MembershipStateActive)
	full := env.fx.Wallet(model.OwnerTypeUser, 21, 100)
	half := env.fx.Wallet(model.OwnerTypeUser, 22, 100)
	absent := env.fx.Wallet(model.OwnerTypeUser, 23, 100)

	event := env.fx.Event(club.ID, model.EventTypePublic, model.EventStatusApproved, march2026)
	regFull := env.fx.Registration(event.ID, 21, 100, model.AttendanceNone, model.RegistrationStatusPending)
	regHalf := env.fx.Registration(event.ID, 22, 100, model.AttendanceNone, model.RegistrationStatusPending)
	regAbsent := env.fx.Registration(event.ID, 23, 100, model.AttendanceNone, model.RegistrationStatusPending)
	eventWallet := env.fundedEvent(t, event, 500, regFull, regHalf, regAbsent)
	require.Equal(t, int64(800), env.balance(t, eventWallet.ID))
	before := env.totalBalance(t)

	env.setEventStatus(t, event.ID, model.EventStatusCompleted)
	env.setAttendance(t, regFull.ID, model.AttendanceFull)
	env.setAttendance(t, regHalf.ID, model.AttendanceHalf)

	report, err := env.settlement.Settle(env.ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, int64(360), report.TotalRewarded)
	require.Equal(t, int64(440), report.Leftover)
	require.Equal(t, []ClubShare{{ClubID: club.ID, Points: 440}}, report.Shares)
	require.Len(t, report.Rewards, 2)

	require.Equal(t, int64(240), env.balance(t, full.ID))
	require.Equal(t, int64(120), env.balance(t, half.ID))
	require.Equal(t, int64(0), env.balance(t, absent.ID))
	require.Equal(t, int64(940), env.balance(t, clubWallet.ID))
	require.Equal(t, before, env.totalBalance(t))

	summary, err := env.settlement.GetWalletSummary(env.ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), summary.Balance)
	require.False(t, summary.Active)

	settled := env.event(t, event.ID)
	require.Equal(t, model.EventStatusSettled, settled.Status)
	require.NotNil(t, settled.SettledAt)

	require.Equal(t, int64(240), env.registration(t, regFull.ID).RewardPoints)
	require.Equal(t, model.RegistrationStatusRefunded, env.registration(t, regHalf.ID).Status)
	require.Equal(t, model.RegistrationStatusConfirmed, env.registration(t, regAbsent.ID).Status)

	var outbox []model.OutboxMessage
	require.NoError(t, env.db.Where("topic = ?", env.cfg.Kafka.Topic.SettlementResult).Find(&outbox).Error)
	require.Len(t, outbox, 1)
	require.Equal(t, report.SettlementNo, outbox[0].MessageKey)

	env.requireConsistent(t, clubWallet.ID, full.ID, half.ID, absent.ID, eventWallet.ID)

	_, err = env.settlement.Settle(env.ctx, event.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestSettleAppliesMemberAndEventTypeMultipliers(t *testing.T) {
	env := newTestEnv(t)
	club := env.fx.Club("host", 1.2)
	env.fx.Wallet(model.OwnerTypeClub, club.ID, 0)
	env.fx.Membership(31, club.ID, 1.5, model.MembershipStateActive)
	member := env.fx.Wallet(model.OwnerTypeUser, 31, 100)
	guest := env.fx.Wallet(model.OwnerTypeUser, 32, 100)

	event := env.fx.Event(club.ID, model.EventTypeSpecial, model.EventStatusApproved, march2026)
	regMember := env.fx.Registration(event.ID, 31, 100, model.AttendanceNone, model.RegistrationStatusPending)
	regGuest := env.fx.Registration(event.ID, 32, 100, model.AttendanceNone, model.RegistrationStatusPending)
	env.fundedEvent(t, event, 0, regMember, regGuest)

	// 只有押金 200，奖励超出活动钱包余额
	env.setEventStatus(t, event.ID, model.EventStatusCompleted)
	env.setAttendance(t, regMember.ID, model.AttendanceFull)
	env.setAttendance(t, regGuest.ID, model.AttendanceFull)
	_, err := env.settlement.Settle(env.ctx, event.ID)
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	require.Equal(t, model.EventStatusCompleted, env.event(t, event.ID).Status)
	require.Equal(t, int64(0), env.balance(t, member.ID))

	// 补足预算后重试：成员 200×1.2×1.5×1.5=540，非成员 200×1.2×1.0×1.5=360
	eventWallet, err := env.settlement.EnsureEventWallet(env.ctx, event.ID)
	require.NoError(t, err)
	_, err = env.ledger.Adjust(env.ctx, &AdjustRequest{WalletID: eventWallet.ID, Amount: 700, Kind: model.KindInitialGrant})
	require.NoError(t, err)

	report, err := env.settlement.Settle(env.ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, 1.5, report.TypeMultiplier)
	require.Equal(t, int64(540), env.balance(t, member.ID))
	require.Equal(t, int64(360), env.balance(t, guest.ID))
	require.Equal(t, int64(0), report.Leftover)
	require.Empty(t, report.Shares)
}

func TestSettleSplitsLeftoverAcrossCoHosts(t *testing.T) {
	cases := []struct {
		name   string
		budget int64
		host   int64
	}{
		{name: "even", budget: 340, host: 30},
		{name: "remainder to host", budget: 341, host: 31},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env := newTestEnv(t)
			host := env.fx.Club("host", 1)
			co1 := env.fx.Club("co1", 1)
			co2 := env.fx.Club("co2", 1)
			hostWallet := env.fx.Wallet(model.OwnerTypeClub, host.ID, c.budget)
			co1Wallet := env.fx.Wallet(model.OwnerTypeClub, co1.ID, 0)
			co2Wallet := env.fx.Wallet(model.OwnerTypeClub, co2.ID, 0)
			user := env.fx.Wallet(model.OwnerTypeUser, 41, 250)

			event := env.fx.Event(host.ID, model.EventTypePublic, model.EventStatusApproved, march2026, co2.ID, co1.ID, host.ID)
			reg := env.fx.Registration(event.ID, 41, 250, model.AttendanceNone, model.RegistrationStatusPending)
			env.fundedEvent(t, event, c.budget, reg)
			env.setEventStatus(t, event.ID, model.EventStatusCompleted)
			env.setAttendance(t, reg.ID, model.AttendanceFull)

			report, err := env.settlement.Settle(env.ctx, event.ID)
			require.NoError(t, err)
			require.Equal(t, int64(500), report.TotalRewarded)
			require.Equal(t, c.budget-250, report.Leftover)
			require.Equal(t, []ClubShare{{host.ID, c.host}, {co1.ID, 30}, {co2.ID, 30}}, report.Shares)

			require.Equal(t, c.host, env.balance(t, hostWallet.ID))
			require.Equal(t, int64(30), env.balance(t, co1Wallet.ID))
			require.Equal(t, int64(30), env.balance(t, co2Wallet.ID))
			require.Equal(t, int64(500), env.balance(t, user.ID))
		})
	}
}

func TestSettleRollsBackWhenCoHostTransferFails(t *testing.T) {
	env := newTestEnv(t)
	host := env.fx.Club("host", 1)
	co1 := env.fx.Club("co1", 1)
	co2 := env.fx.Club("co2", 1)
	hostWallet := env.fx.Wallet(model.OwnerTypeClub, host.ID, 300)
	co2Wallet := env.fx.Wallet(model.OwnerTypeClub, co2.ID, 0)
	user := env.fx.Wallet(model.OwnerTypeUser, 51, 100)

	event := env.fx.Event(host.ID, model.EventTypePublic, model.EventStatusApproved, march2026, co1.ID, co2.ID)
	reg := env.fx.Registration(event.ID, 51, 100, model.AttendanceNone, model.RegistrationStatusPending)
	eventWallet := env.fundedEvent(t, event, 300, reg)
	env.setEventStatus(t, event.ID, model.EventStatusCompleted)
	env.setAttendance(t, reg.ID, model.AttendanceHalf)

	// co1 没有钱包，返还第二家俱乐部时失败
	_, err := env.settlement.Settle(env.ctx, event.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.Equal(t, model.EventStatusCompleted, env.event(t, event.ID).Status)
	require.Equal(t, int64(400), env.balance(t, eventWallet.ID))
	require.Equal(t, int64(0), env.balance(t, user.ID))
	require.Equal(t, int64(0), env.balance(t, hostWallet.ID))
	require.Equal(t, int64(0), env.balance(t, co2Wallet.ID))
	saved := env.registration(t, reg.ID)
	require.Equal(t, model.RegistrationStatusConfirmed, saved.Status)
	require.Equal(t, int64(0), saved.RewardPoints)
	summary, err := env.settlement.GetWalletSummary(env.ctx, event.ID)
	require.NoError(t, err)
	require.True(t, summary.Active)

	var pending int64
	require.NoError(t, env.db.Model(&model.OutboxMessage{}).Count(&pending).Error)
	require.Zero(t, pending)

	// 补开钱包后可以重新结算：奖励 100，结余 300 平分
	co1Wallet := env.fx.Wallet(model.OwnerTypeClub, co1.ID, 0)
	report, err := env.settlement.Settle(env.ctx, event.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), report.TotalRewarded)
	require.Equal(t, int64(100), env.balance(t, hostWallet.ID))
	require.Equal(t, int64(100), env.balance(t, co1Wallet.ID))
	require.Equal(t, int64(100), env.balance(t, co2Wallet.ID))
	env.requireConsistent(t, hostWallet.ID, co1Wallet.ID, co2Wallet.ID, user.ID, eventWallet.ID)
}

func TestConcurrentSettleRunsOnce(t *testing.T) {
	env := newTestEnv(t)
	club := env.fx.Club("host", 1)
	clubWallet := env.fx.Wallet(model.OwnerTypeClub, club.ID, 100)
	user := env.fx.Wallet(model.OwnerTypeUser, 61, 10)
	event := env.fx.Event(club.ID, model.EventTypePublic, model.EventStatusApproved, march2026)
	reg := env.fx.Registration(event.ID, 61, 10, model.AttendanceNone, model.RegistrationStatusPending)
	env.fundedEvent(t, event, 100, reg)
	env.setEventStatus(t, event.ID, model.EventStatusCompleted)
	env.setAttendance(t, reg.ID, model.AttendanceFull)

	const callers = 5
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.settlement.Settle(env.ctx, event.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, apperr.ErrInvalidState)
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, int64(20), env.balance(t, user.ID))
	require.Equal(t, int64(90), env.balance(t, clubWallet.ID))
}

func TestRefundCancelledEvent(t *testing.T) {
	env := newTestEnv(t)
	club := env.fx.Club("host", 1)
	clubWallet := env.fx.Wallet(model.OwnerTypeClub, club.ID, 200)
	user := env.fx.Wallet(model.OwnerTypeUser, 71, 50)
	event := env.fx.Event(club.ID, model.EventTypePublic, model.EventStatusApproved, march2026)
	reg := env.fx.Registration(event.ID, 71, 50, model.AttendanceNone, model.RegistrationStatusPending)
	pendingReg := env.fx.Registration(event.ID, 72, 30, model.AttendanceNone, model.RegistrationStatusPending)
	eventWallet := env.fundedEvent(t, event, 200, reg)

	_, err := env.settlement.RefundCancelledEvent(env.ctx, event.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	env.setEventStatus(t, event.ID, model.EventStatusCancelled)
	report, err := env.settlement.RefundCancelledEvent(env.ctx, event.ID)
	require.NoError(t, err)
	require.False(t, report.Skipped)
	require.Equal(t, int64(50), report.TotalRefunded)
	require.Equal(t, int64(200), report.Returned)

	require.Equal(t, int64(50), env.balance(t, user.ID))
	require.Equal(t, int64(200), env.balance(t, clubWallet.ID))
	require.Equal(t, int64(0), env.balance(t, eventWallet.ID))
	require.Equal(t, model.RegistrationStatusCanceled, env.registration(t, reg.ID).Status)
	require.Equal(t, model.RegistrationStatusCanceled, env.registration(t, pendingReg.ID).Status)

	again, err := env.settlement.RefundCancelledEvent(env.ctx, event.ID)
	require.NoError(t, err)
	require.True(t, again.Skipped)
	env.requireConsistent(t, clubWallet.ID, user.ID, eventWallet.ID)
}
