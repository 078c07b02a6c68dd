package apperr

import (
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(ErrInsufficientFunds, "余额不足")
	wrapped := pkgerrors.Wrap(fmt.Errorf("transfer: %w", base), "settle")

	require.ErrorIs(t, wrapped, ErrInsufficientFunds)
	require.Equal(t, ErrInsufficientFunds, KindOf(wrapped))
	require.Contains(t, wrapped.Error(), "余额不足")
}

func TestKindOfUnknown(t *testing.T) {
	require.Nil(t, KindOf(fmt.Errorf("boom")))
	require.Nil(t, KindOf(nil))
	require.Equal(t, ErrNotFound, KindOf(Newf(ErrNotFound, "钱包 %d 不存在", 7)))
}
