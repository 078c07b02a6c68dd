package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clubpoints/internal/config"
	"clubpoints/internal/infrastructure/lock"
	"clubpoints/internal/model"
	"clubpoints/internal/repository"
	"clubpoints/internal/service"
	"clubpoints/internal/testkit"

	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu   sync.Mutex
	fail map[string]bool
	sent []string
}

func (p *fakePublisher) SendMessage(topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[key] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, topic+"/"+key)
	return nil
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	db := testkit.NewDB(t)
	ctx := context.Background()
	repo := repository.NewOutboxRepository(db)
	require.NoError(t, repo.Enqueue(ctx, nil, "settle", "STL1_1", map[string]int{"event_id": 1}))
	require.NoError(t, repo.Enqueue(ctx, nil, "settle", "STL2_1", map[string]int{"event_id": 2}))
	require.NoError(t, repo.Enqueue(ctx, nil, "activity", "club:1:2026-03", map[string]int{"club_id": 1}))

	pub := &fakePublisher{fail: map[string]bool{"STL2_1": true}}
	cfg := config.Default().Jobs
	cfg.MaxRetryCount = 2
	sender := NewOutboxSender(db, pub, testkit.Logger(), cfg)

	require.Equal(t, 2, sender.processPendingMessages(ctx))
	require.Equal(t, []string{"settle/STL1_1", "activity/club:1:2026-03"}, pub.sent)

	pending, err := repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "STL2_1", pending[0].MessageKey)
	require.Equal(t, 1, pending[0].RetryCount)

	require.Equal(t, 0, sender.processPendingMessages(ctx))
	pending, err = repo.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	settled, err := repo.ListByTopic(ctx, "settle")
	require.NoError(t, err)
	require.Equal(t, model.OutboxStatusSent, settled[0].Status)
	require.Equal(t, model.OutboxStatusFailed, settled[1].Status)
	require.Equal(t, 2, settled[1].RetryCount)

	// 人工补发后重新进入待发送
	n, err := repo.RequeueFailed(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	delete(pub.fail, "STL2_1")
	require.Equal(t, 1, sender.processPendingMessages(ctx))
}

func TestWalletAuditDetectsAndRepairsDrift(t *testing.T) {
	db := testkit.NewDB(t)
	fx := testkit.NewFixtures(t, db)
	ctx := context.Background()
	ledger := service.NewLedgerService(db, testkit.Logger())

	cfg := config.Default().Jobs
	cfg.AuditBatchSize = 2
	var ids []int64
	for i := int64(1); i <= 5; i++ {
		ids = append(ids, fx.Wallet(model.OwnerTypeUser, i, i*100).ID)
	}
	require.NoError(t, db.Model(&model.Wallet{}).Where("id = ?", ids[3]).Update("balance", 999).Error)

	audit := NewWalletAuditJob(db, ledger, testkit.Logger(), cfg)
	report := audit.audit(ctx)
	require.Equal(t, 5, report.Checked)
	require.Equal(t, []int64{ids[3]}, report.Drifted)
	require.Zero(t, report.Repaired)

	w, err := ledger.GetWallet(ctx, ids[3])
	require.NoError(t, err)
	require.Equal(t, int64(999), w.Balance)

	audit.repair = true
	report = audit.audit(ctx)
	require.Equal(t, 1, report.Repaired)

	w, err = ledger.GetWallet(ctx, ids[3])
	require.NoError(t, err)
	require.Equal(t, int64(400), w.Balance)

	report = audit.audit(ctx)
	require.Empty(t, report.Drifted)
}

type fakeRecalculator struct {
	calls []string
	err   error
}

func (f *fakeRecalculator) RecalculateAllForMonth(_ context.Context, year, month int) (*service.BatchReport, error) {
	period := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
	f.calls = append(f.calls, period)
	if f.err != nil {
		return nil, f.err
	}
	return &service.BatchReport{Period: period}, nil
}

func TestMonthlyScoringRunsPreviousMonthOnce(t *testing.T) {
	recalc := &fakeRecalculator{}
	locker := lock.NewLocalLocker()
	j := NewMonthlyScoringJob(recalc, locker, testkit.Logger(), config.Default())
	clock := time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return clock }
	ctx := context.Background()

	report, err := j.runOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, "2026-03", report.Period)

	report, err = j.runOnce(ctx)
	require.NoError(t, err)
	require.Nil(t, report)
	require.Equal(t, []string{"2026-03"}, recalc.calls)

	// 其他实例持有下个月的锁
	held, err := locker.Obtain(ctx, lock.ScoringLockKey("2026-04"), "other", time.Minute)
	require.NoError(t, err)
	clock = time.Date(2026, 5, 1, 0, 5, 0, 0, time.UTC)
	_, err = j.runOnce(ctx)
	require.ErrorIs(t, err, lock.ErrLockFailed)
	require.NoError(t, held.Unlock(ctx))

	recalc.err = errors.New("db down")
	_, err = j.runOnce(ctx)
	require.Error(t, err)
	recalc.err = nil
	_, err = j.runOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"2026-03", "2026-04", "2026-04"}, recalc.calls)
}
