package storagewriter

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestWatchList(t *testing.T) {
	accounts := []common.Address{accountB, accountA}
	wl := NewWatchList(accounts)

	assert.True(t, wl.Contains(accountA))
	assert.True(t, wl.Contains(accountB))
	assert.False(t, wl.Contains(common.HexToAddress("0x03")))
	assert.Equal(t, 2, wl.Len())
	assert.Equal(t, []common.Address{accountB, accountA}, wl.Accounts())

	// Mutating the input or the returned slice leaves the list untouched.
	accounts[0] = common.Address{}
	wl.Accounts()[1] = common.Address{}
	assert.Equal(t, []common.Address{accountB, accountA}, wl.Accounts())
}

func TestNewRecord(t *testing.T) {
	r := newRecord(accountB, common.Hash{}, 0, key1, common.Hash{})
	assert.Equal(t, []string{
		"00000000000000000000000000000000000000bb",
		"0000000000000000000000000000000000000000000000000000000000000000",
		"0",
		"0000000000000000000000000000000000000000000000000000000000000001",
		"0000000000000000000000000000000000000000000000000000000000000000",
	}, r.fields())
}
