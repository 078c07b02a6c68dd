package service

import (
	"context"
	"testing"
	"time"

	"clubpoints/internal/config"
	"clubpoints/internal/infrastructure/lock"
	"clubpoints/internal/model"
	"clubpoints/internal/testkit"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	ctx        context.Context
	db         *gorm.DB
	cfg        *config.Config
	fx         *testkit.Fixtures
	locker     *lock.LocalLocker
	ledger     *LedgerService
	policies   *PolicyService
	settlement *SettlementService
	activity   *ActivityService
	records    *RecordService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testkit.NewDB(t)
	log := testkit.Logger()
	cfg := config.Default()
	locker := lock.NewLocalLocker()

	ledger := NewLedgerService(db, log)
	policies := NewPolicyService(db, log, cfg.Policy)
	return &testEnv{
		ctx:        context.Background(),
		db:         db,
		cfg:        cfg,
		fx:         testkit.NewFixtures(t, db),
		locker:     locker,
		ledger:     ledger,
		policies:   policies,
		settlement: NewSettlementService(db, log, cfg, ledger, locker),
		activity:   NewActivityService(db, log, cfg, policies, ledger),
		records:    NewRecordService(db, log),
	}
}

func (e *testEnv) balance(t *testing.T, walletID int64) int64 {
	t.Helper()
	w, err := e.ledger.GetWallet(e.ctx, walletID)
	require.NoError(t, err)
	return w.Balance
}

// requireConsistent 缓存余额必须等于流水累加值
func (e *testEnv) requireConsistent(t *testing.T, walletIDs ...int64) {
	t.Helper()
	for _, id := range walletIDs {
		res, err := e.ledger.Reconcile(e.ctx, id)
		require.NoError(t, err)
		require.Zerof(t, res.Drift, "wallet %d cached=%d computed=%d", id, res.Cached, res.Computed)
	}
}

func (e *testEnv) totalBalance(t *testing.T) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, e.db.Model(&model.Wallet{}).Select("COALESCE(SUM(balance), 0)").Scan(&sum).Error)
	return sum
}

var march2026 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
