// Package wallets 读取 wallets.txt / proxies.txt / recipients.txt 并写回结果文件。
package wallets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/betbot/gopack/pkg/config"
	"github.com/betbot/gopack/pkg/proxy"
)

// ErrNoWallets wallets 文件为空
var ErrNoWallets = errors.New("wallets: no private keys loaded")

// Inputs 从文件读取的原始输入
type Inputs struct {
	Keys       []string
	Proxies    []*proxy.Proxy
	Recipients []string
}

// ProxyAt 第 i 个钱包（wallets.txt 中的顺序）的代理，代理少于钱包时循环使用
func (in *Inputs) ProxyAt(i int) *proxy.Proxy {
	if in == nil || len(in.Proxies) == 0 || i < 0 {
		return nil
	}
	return in.Proxies[i%len(in.Proxies)]
}

// ProxyFor 按私钥在 wallets.txt 中的位置取代理
func (in *Inputs) ProxyFor(key string) *proxy.Proxy {
	if in == nil {
		return nil
	}
	for i, k := range in.Keys {
		if k == key {
			return in.ProxyAt(i)
		}
	}
	return nil
}

// RecipientAt 第 i 个钱包的收款地址，没有时为空
func (in *Inputs) RecipientAt(i int) string {
	if in == nil || i < 0 || i >= len(in.Recipients) {
		return ""
	}
	return in.Recipients[i]
}

// Load 读取全部输入文件；代理和收款地址文件不存在或为空时返回空列表
func Load(files config.Files, mobile bool) (*Inputs, error) {
	keys, err := ReadLines(files.Wallets)
	if err != nil {
		return nil, err
	}
	return LoadWithKeys(files, mobile, keys)
}

// LoadWithKeys 私钥来自其他来源（如加密存储）时只读代理和收款地址文件
func LoadWithKeys(files config.Files, mobile bool, keys []string) (*Inputs, error) {
	if len(keys) == 0 {
		return nil, ErrNoWallets
	}

	proxyLines, err := readOptional(files.Proxies)
	if err != nil {
		return nil, err
	}
	proxies := make([]*proxy.Proxy, 0, len(proxyLines))
	for i, line := range proxyLines {
		p, err := proxy.Parse(line, mobile)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", files.Proxies, i+1, err)
		}
		proxies = append(proxies, p)
	}

	recipients, err := readOptional(files.Recipients)
	if err != nil {
		return nil, err
	}
	return &Inputs{Keys: keys, Proxies: proxies, Recipients: recipients}, nil
}

// ReadLines 读取非空、非注释行
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func readOptional(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	lines, err := ReadLines(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return lines, err
}

// WriteProxies 用检测后可用的代理覆盖代理文件
func WriteProxies(path string, list []*proxy.Proxy) error {
	lines := make([]string, 0, len(list))
	for _, p := range list {
		lines = append(lines, p.String())
	}
	return writeFile(path, strings.Join(lines, "\n"))
}

// DepositAddress 一个 key 对应的充值地址
type DepositAddress struct {
	Key     string
	Address string
}

// WriteDepositAddresses 写出 "key:address" 列表
func WriteDepositAddresses(path string, rows []DepositAddress) error {
	var b strings.Builder
	b.WriteString("# API Key : Deposit Address\n")
	for _, r := range rows {
		b.WriteString(r.Key)
		b.WriteByte(':')
		b.WriteString(r.Address)
		b.WriteByte('\n')
	}
	return writeFile(path, b.String())
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
