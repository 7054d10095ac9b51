// Package chains 提币相关的链信息和地址校验。
package chains

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownChain 不支持的链名称
var ErrUnknownChain = errors.New("chains: unknown chain")

// Chain 链信息
type Chain struct {
	Name        string // OKX 使用的链名称
	Backpack    string // Backpack 的 blockchain 参数
	ChainID     int64  // EVM chain id，非 EVM 为 0
	RPC         string
	Scan        string // 交易浏览器前缀
	NativeToken string
	EVM         bool
}

var (
	Base = Chain{
		Name:        "Base",
		Backpack:    "Base",
		ChainID:     8453,
		RPC:         "https://base.meowrpc.com",
		Scan:        "https://basescan.org/tx",
		NativeToken: "ETH",
		EVM:         true,
	}
	Optimism = Chain{
		Name:        "Optimism",
		Backpack:    "Optimism",
		ChainID:     10,
		RPC:         "https://optimism.drpc.org",
		Scan:        "https://optimistic.etherscan.io/tx",
		NativeToken: "ETH",
		EVM:         true,
	}
	Arbitrum = Chain{
		Name:        "Arbitrum One",
		Backpack:    "Arbitrum",
		ChainID:     42161,
		RPC:         "https://arbitrum.meowrpc.com",
		Scan:        "https://arbiscan.io/tx",
		NativeToken: "ETH",
		EVM:         true,
	}
	Solana = Chain{
		Name:        "Solana",
		Backpack:    "Solana",
		RPC:         "https://api.mainnet-beta.solana.com",
		Scan:        "https://solscan.io/tx",
		NativeToken: "SOL",
	}
)

var aliases = map[string]Chain{
	"BASE":         Base,
	"ARBITRUM ONE": Arbitrum,
	"ARBITRUM":     Arbitrum,
	"ARB":          Arbitrum,
	"OP":           Optimism,
	"OPTIMISM":     Optimism,
	"SOLANA":       Solana,
	"SOL":          Solana,
}

// Lookup 按名称或别名查找，大小写不敏感
func Lookup(name string) (Chain, error) {
	c, ok := aliases[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Chain{}, fmt.Errorf("%w: %q", ErrUnknownChain, name)
	}
	return c, nil
}

// TxURL 交易浏览器链接
func (c Chain) TxURL(hash string) string {
	return c.Scan + "/" + hash
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ValidateAddress EVM 链校验 0x 地址，Solana 校验 base58 公钥
func ValidateAddress(c Chain, addr string) error {
	addr = strings.TrimSpace(addr)
	if c.EVM {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s address %q", c.Name, addr)
		}
		return nil
	}
	if len(addr) < 32 || len(addr) > 44 {
		return fmt.Errorf("invalid %s address %q: bad length", c.Name, addr)
	}
	for _, r := range addr {
		if !strings.ContainsRune(base58Alphabet, r) {
			return fmt.Errorf("invalid %s address %q: bad character %q", c.Name, addr, r)
		}
	}
	return nil
}

// ChecksumAddress EVM 地址转 EIP-55 格式，非 EVM 原样返回
func ChecksumAddress(c Chain, addr string) string {
	if c.EVM && common.IsHexAddress(addr) {
		return common.HexToAddress(addr).Hex()
	}
	return strings.TrimSpace(addr)
}
