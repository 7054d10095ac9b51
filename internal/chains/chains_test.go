package chains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for name, want := range map[string]int64{
		"base":         8453,
		"ARB":          42161,
		"Arbitrum One": 42161,
		" op ":         10,
		"OPTIMISM":     10,
		"Solana":       0,
	} {
		c, err := Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, c.ChainID, name)
	}

	_, err := Lookup("tron")
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(Base, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	assert.Error(t, ValidateAddress(Base, "0x123"))
	assert.Error(t, ValidateAddress(Arbitrum, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"))

	assert.NoError(t, ValidateAddress(Solana, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"))
	assert.Error(t, ValidateAddress(Solana, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	assert.Error(t, ValidateAddress(Solana, "short"))
}

func TestChecksumAddress(t *testing.T) {
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		ChecksumAddress(Optimism, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"))
	assert.Equal(t, "abc", ChecksumAddress(Solana, " abc "))
	assert.Equal(t, "https://basescan.org/tx/0xff", Base.TxURL("0xff"))
}
