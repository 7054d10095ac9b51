package backpack

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultWindow 请求有效窗口（毫秒）
const DefaultWindow int64 = 60000

// Signer ed25519 请求签名
type Signer struct {
	key       ed25519.PrivateKey
	publicB64 string
}

// NewSigner secret 为 base64 编码的 32 字节种子
func NewSigner(secret string) (*Signer, error) {
	seed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSecret, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed length %d", ErrBadSecret, len(seed))
	}
	key := ed25519.NewKeyFromSeed(seed)
	pub := key.Public().(ed25519.PublicKey)
	return &Signer{key: key, publicB64: base64.StdEncoding.EncodeToString(pub)}, nil
}

// PublicKey base64 公钥，也就是 X-API-KEY
func (s *Signer) PublicKey() string {
	return s.publicB64
}

// Sign 返回 base64 签名
func (s *Signer) Sign(message string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(message)))
}

// Headers 生成鉴权请求头
func (s *Signer) Headers(instruction string, params map[string]any, timestamp, window int64) map[string]string {
	return map[string]string{
		"X-API-KEY":   s.publicB64,
		"X-SIGNATURE": s.Sign(SigningString(instruction, params, timestamp, window)),
		"X-TIMESTAMP": strconv.FormatInt(timestamp, 10),
		"X-WINDOW":    strconv.FormatInt(window, 10),
	}
}

// SigningString instruction=<type>&k1=v1&k2=v2&timestamp=<ms>&window=<ms>，参数按 key 排序，布尔值小写
func SigningString(instruction string, params map[string]any, timestamp, window int64) string {
	var b strings.Builder
	b.WriteString("instruction=")
	b.WriteString(instruction)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatParam(params[k]))
	}

	fmt.Fprintf(&b, "&timestamp=%d&window=%d", timestamp, window)
	return b.String()
}

func formatParam(v any) string {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	case Side:
		return string(t)
	case TimeInForce:
		return string(t)
	case decimal.Decimal:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
