package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/gopack/internal/wallets"
	"github.com/betbot/gopack/pkg/sdk/backpack"
	"github.com/betbot/gopack/pkg/secretstore"
)

func main() {
	_ = godotenv.Load()

	var (
		inPath    = flag.String("in", "wallets.txt", "input file with one base64 API secret per line")
		dbPath    = flag.String("badger", getenv("GOPACK_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("GOPACK_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set GOPACK_SECRET_KEY or pass -secret-key"))
	}

	secrets, err := wallets.ReadLines(*inPath)
	if err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{Path: *dbPath, EncryptionKey: keyBytes})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	written, skipped := 0, 0
	for i, secret := range secrets {
		signer, err := backpack.NewSigner(secret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "第 %d 行无效，已跳过: %v\n", i+1, err)
			skipped++
			continue
		}
		if err := ss.PutWallet(signer.PublicKey(), secret); err != nil {
			fatal(err)
		}
		written++
	}

	fmt.Fprintf(os.Stderr, "已导入 %d 个私钥到 badger：%s（跳过 %d）\n", written, *dbPath, skipped)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
