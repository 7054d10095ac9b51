package wallets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gopack/pkg/config"
	"github.com/betbot/gopack/pkg/proxy"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	files := config.Files{
		Wallets:    writeTemp(t, dir, "wallets.txt", "\xef\xbb\xbfkeyA\n\n# comment\n  keyB  \n"),
		Proxies:    writeTemp(t, dir, "proxies.txt", "u:p@h:1|https://h/change\n"),
		Recipients: filepath.Join(dir, "missing.txt"),
	}

	in, err := Load(files, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"keyA", "keyB"}, in.Keys)
	require.Len(t, in.Proxies, 1)
	assert.Equal(t, "https://h/change", in.Proxies[0].ChangeLink)
	assert.Empty(t, in.Recipients)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(config.Files{Wallets: writeTemp(t, dir, "empty.txt", "\n\n")}, false)
	assert.ErrorIs(t, err, ErrNoWallets)

	_, err = Load(config.Files{Wallets: filepath.Join(dir, "nope.txt")}, false)
	assert.Error(t, err)

	_, err = Load(config.Files{
		Wallets: writeTemp(t, dir, "w.txt", "k\n"),
		Proxies: writeTemp(t, dir, "p.txt", "u:p@h:1\n"),
	}, true)
	assert.ErrorContains(t, err, "line 1")
}

func TestLoadWithKeys(t *testing.T) {
	dir := t.TempDir()
	files := config.Files{
		Wallets:    filepath.Join(dir, "not-used.txt"),
		Recipients: writeTemp(t, dir, "recipients.txt", "r1\nr2\n"),
	}
	in, err := LoadWithKeys(files, false, []string{"k1", "k2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, in.Keys)
	assert.Equal(t, []string{"r1", "r2"}, in.Recipients)
	assert.Empty(t, in.Proxies)

	_, err = LoadWithKeys(files, false, nil)
	assert.ErrorIs(t, err, ErrNoWallets)
}

func TestWriteProxies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "proxies.txt")
	require.NoError(t, WriteProxies(path, []*proxy.Proxy{{Addr: "a:1"}, {Addr: "b:2", ChangeLink: "https://c"}}))

	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2|https://c"}, lines)
}

func TestWriteDepositAddresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deposit_addresses.txt")
	require.NoError(t, WriteDepositAddresses(path, []DepositAddress{{Key: "k1", Address: "addr1"}, {Key: "k2", Address: "addr2"}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# API Key : Deposit Address\nk1:addr1\nk2:addr2\n", string(data))
}

func TestInputs_Lookups(t *testing.T) {
	p1 := &proxy.Proxy{Addr: "h1:1"}
	p2 := &proxy.Proxy{Addr: "h2:2"}
	in := &Inputs{Keys: []string{"a", "b", "c"}, Proxies: []*proxy.Proxy{p1, p2}, Recipients: []string{"r0"}}

	assert.Same(t, p1, in.ProxyAt(0))
	assert.Same(t, p1, in.ProxyAt(2))
	assert.Same(t, p2, in.ProxyFor("b"))
	assert.Nil(t, in.ProxyFor("zzz"))
	assert.Equal(t, "r0", in.RecipientAt(0))
	assert.Equal(t, "", in.RecipientAt(1))

	var none *Inputs
	assert.Nil(t, none.ProxyAt(0))
	assert.Nil(t, (&Inputs{Keys: []string{"a"}}).ProxyFor("a"))
}
