package service

import (
	"errors"
	"sync"
	"testing"

	"clubpoints/internal/apperr"
	"clubpoints/internal/model"

	"github.com/stretchr/testify/require"
)

func TestCreateWallet(t *testing.T) {
	env := newTestEnv(t)

	w, err := env.ledger.CreateWallet(env.ctx, model.OwnerTypeUser, 7)
	require.NoError(t, err)
	require.Equal(t, int64(0), w.Balance)
	require.True(t, w.Active)
	require.Equal(t, int64(7), *w.UserID)

	_, err = env.ledger.CreateWallet(env.ctx, model.OwnerTypeUser, 7)
	require.ErrorIs(t, err, apperr.ErrConflict)

	// 不同类型的 owner 可以使用相同的 id
	_, err = env.ledger.CreateWallet(env.ctx, model.OwnerTypeClub, 7)
	require.NoError(t, err)

	_, err = env.ledger.CreateWallet(env.ctx, model.OwnerType("BANK"), 1)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	got, err := env.ledger.GetWalletByOwner(env.ctx, model.OwnerTypeClub, 7)
	require.NoError(t, err)
	require.Equal(t, model.OwnerTypeClub, got.OwnerType)
}

func TestTransferWritesMatchedPair(t *testing.T) {
	env := newTestEnv(t)
	from := env.fx.Wallet(model.OwnerTypeUser, 1, 500)
	to := env.fx.Wallet(model.OwnerTypeUser, 2, 0)

	res, err := env.ledger.Transfer(env.ctx, &TransferRequest{
		FromWalletID: from.ID,
		ToWalletID:   to.ID,
		Amount:       200,
		Kind:         model.KindMemberTransfer,
		Reason:       "gift",
		ReferenceNo:  "ref-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(300), res.FromBalance)
	require.Equal(t, int64(200), res.ToBalance)
	require.Equal(t, int64(300), env.balance(t, from.ID))
	require.Equal(t, int64(200), env.balance(t, to.ID))

	var rows []model.WalletTransaction
	require.NoError(t, env.db.Where("reference_no = ?", "ref-1").Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)

	debit, credit := rows[0], rows[1]
	require.Equal(t, from.ID, debit.WalletID)
	require.Equal(t, int64(-200), debit.Amount)
	require.Equal(t, int64(500), debit.BalanceBefore)
	require.Equal(t, int64(300), debit.BalanceAfter)
	require.Equal(t, to.ID, *debit.CounterpartyWalletID)

	require.Equal(t, to.ID, credit.WalletID)
	require.Equal(t, int64(200), credit.Amount)
	require.Equal(t, from.ID, *credit.CounterpartyWalletID)
	require.Equal(t, model.KindMemberTransfer, credit.Kind)
	require.Equal(t, "gift", credit.Reason)

	env.requireConsistent(t, from.ID, to.ID)
}

func TestTransferRejections(t *testing.T) {
	env := newTestEnv(t)
	from := env.fx.Wallet(model.OwnerTypeUser, 1, 100)
	to := env.fx.Wallet(model.OwnerTypeClub, 1, 0)

	req := func(fromID, toID, amount int64) *TransferRequest {
		return &TransferRequest{FromWalletID: fromID, ToWalletID: toID, Amount: amount, Kind: model.KindMemberTransfer}
	}

	_, err := env.ledger.Transfer(env.ctx, req(from.ID, from.ID, 10))
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = env.ledger.Transfer(env.ctx, req(from.ID, to.ID, 0))
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = env.ledger.Transfer(env.ctx, &TransferRequest{FromWalletID: from.ID, ToWalletID: to.ID, Amount: 1, Kind: "BOGUS"})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = env.ledger.Transfer(env.ctx, req(from.ID, 9999, 10))
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.ledger.Transfer(env.ctx, req(from.ID, to.ID, 101))
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)
	require.Equal(t, int64(100), env.balance(t, from.ID))
	require.Equal(t, int64(0), env.balance(t, to.ID))

	require.NoError(t, env.ledger.DeactivateTx(env.ctx, env.db, to.ID))
	_, err = env.ledger.Transfer(env.ctx, req(from.ID, to.ID, 10))
	require.ErrorIs(t, err, apperr.ErrInvalidState)
	require.ErrorIs(t, env.ledger.DeactivateTx(env.ctx, env.db, to.ID), apperr.ErrInvalidState)

	env.requireConsistent(t, from.ID, to.ID)
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	from := env.fx.Wallet(model.OwnerTypeUser, 1, 1000)
	targets := make([]*model.Wallet, 4)
	for i := range targets {
		targets[i] = env.fx.Wallet(model.OwnerTypeUser, int64(i+2), 0)
	}

	const attempts = 20
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		succeeded  int
		rejected   int
		unexpected []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.ledger.Transfer(env.ctx, &TransferRequest{
				FromWalletID: from.ID,
				ToWalletID:   targets[i%len(targets)].ID,
				Amount:       100,
				Kind:         model.KindMemberTransfer,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperr.ErrInsufficientFunds):
				rejected++
			default:
				unexpected = append(unexpected, err)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, unexpected)
	require.Equal(t, 10, succeeded)
	require.Equal(t, 10, rejected)
	require.Equal(t, int64(0), env.balance(t, from.ID))
	require.Equal(t, int64(1000), env.totalBalance(t))

	ids := []int64{from.ID}
	for _, w := range targets {
		ids = append(ids, w.ID)
	}
	env.requireConsistent(t, ids...)
}

func TestAdjustAndRepairBalance(t *testing.T) {
	env := newTestEnv(t)
	w := env.fx.Wallet(model.OwnerTypeClub, 3, 100)

	trans, err := env.ledger.Adjust(env.ctx, &AdjustRequest{WalletID: w.ID, Amount: 50, Kind: model.KindAdminAdjustment})
	require.NoError(t, err)
	require.Nil(t, trans.CounterpartyWalletID)
	require.Equal(t, int64(150), trans.BalanceAfter)

	_, err = env.ledger.Adjust(env.ctx, &AdjustRequest{WalletID: w.ID, Amount: -20, Kind: model.KindPenaltyDeduction})
	require.NoError(t, err)

	_, err = env.ledger.Adjust(env.ctx, &AdjustRequest{WalletID: w.ID, Amount: -131, Kind: model.KindPenaltyDeduction})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	_, err = env.ledger.Adjust(env.ctx, &AdjustRequest{WalletID: w.ID, Amount: 0, Kind: model.KindAdminAdjustment})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	require.Equal(t, int64(130), env.balance(t, w.ID))
	env.requireConsistent(t, w.ID)

	// 模拟缓存余额被绕过账本改写
	require.NoError(t, env.db.Model(&model.Wallet{}).Where("id = ?", w.ID).Update("balance", 999).Error)

	res, err := env.ledger.Reconcile(env.ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, int64(999), res.Cached)
	require.Equal(t, int64(130), res.Computed)
	require.Equal(t, int64(869), res.Drift)

	repaired, err := env.ledger.RepairBalance(env.ctx, w.ID)
	require.NoError(t, err)
	require.False(t, repaired.Consistent())
	require.Equal(t, int64(130), env.balance(t, w.ID))
	env.requireConsistent(t, w.ID)
}

func TestListTransactionsPages(t *testing.T) {
	env := newTestEnv(t)
	w := env.fx.Wallet(model.OwnerTypeUser, 1, 10)
	for i := 0; i < 5; i++ {
		_, err := env.ledger.Adjust(env.ctx, &AdjustRequest{WalletID: w.ID, Amount: 1, Kind: model.KindMonthlyAllowance})
		require.NoError(t, err)
	}

	list, total, err := env.ledger.ListTransactions(env.ctx, w.ID, 1, 4)
	require.NoError(t, err)
	require.Equal(t, int64(6), total)
	require.Len(t, list, 4)
	require.Equal(t, model.KindMonthlyAllowance, list[0].Kind)

	list, _, err = env.ledger.ListTransactions(env.ctx, w.ID, 2, 4)
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, _, err = env.ledger.ListTransactions(env.ctx, 12345, 1, 10)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
