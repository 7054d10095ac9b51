// Package okx OKX v5 资金接口：子账户归集和链上提币。
package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/gopack/pkg/logger"
	"github.com/betbot/gopack/pkg/ratelimit"
	sdkhttp "github.com/betbot/gopack/pkg/sdk/http"
)

// DefaultBaseURL 正式环境
const DefaultBaseURL = "https://www.okx.com"

// ErrNoCredentials 缺少 API key / secret / passphrase
var ErrNoCredentials = errors.New("okx: api key, secret and passphrase are required")

// Credentials API 凭证
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// Options 客户端选项
type Options struct {
	BaseURL string
	Proxy   string
	Limits  *ratelimit.Manager
	Log     *logrus.Entry
}

// APIError code 不为 "0" 的业务错误
type APIError struct {
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("okx error %s: %s", e.Code, e.Msg)
}

// Client 签名客户端
type Client struct {
	http   *sdkhttp.Client
	creds  Credentials
	limits *ratelimit.Manager
	log    *logrus.Entry
	now    func() time.Time
}

// New 创建客户端
func New(creds Credentials, opts Options) (*Client, error) {
	if creds.APIKey == "" || creds.Secret == "" || creds.Passphrase == "" {
		return nil, ErrNoCredentials
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	c := &Client{
		http:   sdkhttp.NewClient(base, sdkhttp.WithProxy(opts.Proxy)),
		creds:  creds,
		limits: opts.Limits,
		log:    opts.Log,
		now:    time.Now,
	}
	if c.limits == nil {
		c.limits = ratelimit.NewManager()
	}
	if c.log == nil {
		c.log = logger.WithField("client", "okx")
	}
	return c, nil
}

// Sign base64(HMAC-SHA256(timestamp + METHOD + requestPath + body))
func Sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// request 签名并发送；query 会编码进 requestPath 参与签名
func (c *Client) request(ctx context.Context, limit, method, path string, query url.Values, body any, out any) error {
	if err := c.limits.Wait(ctx, limit); err != nil {
		return err
	}

	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}
	var payload string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = string(b)
	}

	ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	opt := &sdkhttp.RequestOptions{Headers: map[string]string{
		"OK-ACCESS-KEY":        c.creds.APIKey,
		"OK-ACCESS-SIGN":       Sign(c.creds.Secret, ts, method, requestPath, payload),
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": c.creds.Passphrase,
	}}
	if payload != "" {
		opt.Data = payload
	}

	var env envelope
	if _, err := c.http.Do(ctx, method, requestPath, opt, &env); err != nil {
		return err
	}
	if env.Code != "0" {
		return &APIError{Code: env.Code, Msg: env.Msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, limit, path string, query url.Values, out any) error {
	return c.request(ctx, limit, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, limit, path string, body any, out any) error {
	return c.request(ctx, limit, http.MethodPost, path, nil, body, out)
}
