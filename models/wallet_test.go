package models

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The (trx_type, reference) pair is the schema-level exactly-once guard for
// every credit and debit; a retried webhook must not be able to insert a
// second row for the same reference.
func TestWalletTransactionReferenceUniquePerType(t *testing.T) {
	typ := reflect.TypeOf(WalletTransaction{})

	trxType, ok := typ.FieldByName("TrxType")
	require.True(t, ok)
	reference, ok := typ.FieldByName("Reference")
	require.True(t, ok)

	assert.Contains(t, trxType.Tag.Get("gorm"), "uniqueIndex:idx_wallet_trx_ref")
	assert.Contains(t, reference.Tag.Get("gorm"), "uniqueIndex:idx_wallet_trx_ref")
}
