package services

import (
	"testing"

	"chatbet/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func trx(id uint, trxType, status string) models.WalletTransaction {
	t := models.WalletTransaction{TrxType: trxType, Status: status}
	t.Model = gorm.Model{ID: id}
	return t
}

func TestFirstCompletedDepositPicksEarliest(t *testing.T) {
	// Two deposits committed before the bonus evaluation ran: the bonus
	// still applies, keyed off the first one.
	deposits := []models.WalletTransaction{
		trx(12, models.TrxTypeDeposit, models.TrxStatusCompleted),
		trx(5, models.TrxTypeDeposit, models.TrxStatusCompleted),
	}

	first := firstCompletedDeposit(deposits)
	require.NotNil(t, first)
	assert.Equal(t, uint(5), first.ID)
}

func TestFirstCompletedDepositIgnoresIncomplete(t *testing.T) {
	deposits := []models.WalletTransaction{
		trx(1, models.TrxTypeDeposit, models.TrxStatusPending),
		trx(2, models.TrxTypeDeposit, models.TrxStatusFailed),
		trx(3, models.TrxTypeBetWin, models.TrxStatusCompleted),
		trx(4, models.TrxTypeDeposit, models.TrxStatusCompleted),
	}

	first := firstCompletedDeposit(deposits)
	require.NotNil(t, first)
	assert.Equal(t, uint(4), first.ID)
}

func TestFirstCompletedDepositNoneYet(t *testing.T) {
	assert.Nil(t, firstCompletedDeposit(nil))
	assert.Nil(t, firstCompletedDeposit([]models.WalletTransaction{
		trx(1, models.TrxTypeDeposit, models.TrxStatusPending),
	}))
}
