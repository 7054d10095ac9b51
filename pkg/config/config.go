package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/betbot/gopack/pkg/deltaneutral"
	"github.com/betbot/gopack/pkg/logger"
)

// DefaultPath 默认配置文件路径
const DefaultPath = "yml/config.yaml"

// General 通用运行参数
type General struct {
	MobileProxy         bool  `yaml:"mobile_proxy" json:"mobile_proxy"` // proxies.txt 中每行为 url|change_link
	RotateIP            bool  `yaml:"rotate_ip" json:"rotate_ip"`       // 仅对移动代理生效
	ShuffleWallets      bool  `yaml:"shuffle_wallets" json:"shuffle_wallets"`
	PauseBetweenWallets Range `yaml:"pause_between_wallets" json:"pause_between_wallets"` // 秒
	PauseBetweenModules Range `yaml:"pause_between_modules" json:"pause_between_modules"` // 秒
	Retries             int   `yaml:"retries" json:"retries"`
	PauseBetweenRetries int   `yaml:"pause_between_retries" json:"pause_between_retries"` // 秒
}

// Telegram 通知配置，token 或 user_id 为空时不发送
type Telegram struct {
	BotToken string `yaml:"bot_token" json:"bot_token"`
	UserID   int64  `yaml:"user_id" json:"user_id"`
}

// Enabled 是否启用通知
func (t Telegram) Enabled() bool {
	return t.BotToken != "" && t.UserID != 0
}

// Tasks 每个钱包要执行的任务开关
type Tasks struct {
	OKXWithdraw     bool `yaml:"okx_withdraw" json:"okx_withdraw"`
	BackpackSpot    bool `yaml:"backpack_spot" json:"backpack_spot"`
	BackpackFutures bool `yaml:"backpack_futures" json:"backpack_futures"`
	RandomSwaps     bool `yaml:"random_swaps" json:"random_swaps"`
	CloseAll        bool `yaml:"close_all" json:"close_all"`
	SwapAllToUSDC   bool `yaml:"swap_all_to_usdc" json:"swap_all_to_usdc"`
	GetTickers      bool `yaml:"get_tickers" json:"get_tickers"`
	OKXDeposit      bool `yaml:"okx_deposit" json:"okx_deposit"`
}

// RandomSwaps 随机买入若干代币
type RandomSwaps struct {
	Symbols        []string `yaml:"symbols" json:"symbols"`
	NumOfSwaps     Range    `yaml:"num_of_swaps" json:"num_of_swaps"`
	SwapPercentage Range    `yaml:"swap_percentage" json:"swap_percentage"` // 0.1 = 10% 的 USDC 余额
}

// Spot 单次现货买入/卖出
type Spot struct {
	Symbols              []string `yaml:"symbols" json:"symbols"`
	Side                 string   `yaml:"side" json:"side"` // Bid 买入 / Ask 卖出
	AmountUSDC           Range    `yaml:"amount_usdc" json:"amount_usdc"`
	UsePercentageUSDC    bool     `yaml:"use_percentage_usdc" json:"use_percentage_usdc"`
	TradePercentageUSDC  Range    `yaml:"trade_percentage_usdc" json:"trade_percentage_usdc"`
	AmountToken          Range    `yaml:"amount_token" json:"amount_token"`
	UsePercentageToken   bool     `yaml:"use_percentage_token" json:"use_percentage_token"`
	TradePercentageToken Range    `yaml:"trade_percentage_token" json:"trade_percentage_token"`
}

// Futures 单次合约开仓
type Futures struct {
	Symbols         []string `yaml:"symbols" json:"symbols"`
	Amount          Range    `yaml:"amount" json:"amount"` // USDC，会乘以 leverage
	Side            string   `yaml:"side" json:"side"`     // Bid 多 / Ask 空
	Leverage        int      `yaml:"leverage" json:"leverage"`
	UsePercentage   bool     `yaml:"use_percentage" json:"use_percentage"`
	TradePercentage Range    `yaml:"trade_percentage" json:"trade_percentage"`
}

// OKXWithdraw 从 OKX 提币到钱包的 Backpack 充值地址
type OKXWithdraw struct {
	Chains         []string `yaml:"chains" json:"chains"`
	Token          string   `yaml:"token" json:"token"`
	Amount         Range    `yaml:"amount" json:"amount"`
	MinUSDCBalance float64  `yaml:"min_usdc_balance" json:"min_usdc_balance"` // 余额已达到该值则跳过
}

// OKXDeposit 从 Backpack 提到 recipients.txt 中的地址，保留 keep_balance
type OKXDeposit struct {
	Chain       string `yaml:"chain" json:"chain"`
	Token       string `yaml:"token" json:"token"`
	KeepBalance Range  `yaml:"keep_balance" json:"keep_balance"`
}

// OKX API 凭证
type OKX struct {
	APIKey      string `yaml:"api_key" json:"api_key"`
	APISecret   string `yaml:"api_secret" json:"api_secret"`
	APIPassword string `yaml:"api_password" json:"api_password"`
	Proxy       string `yaml:"proxy" json:"proxy"`
	BaseURL     string `yaml:"base_url" json:"base_url"`
}

// Forks 多账户对冲参数
type Forks struct {
	Symbols              []string `yaml:"symbols" json:"symbols"`
	MaxLeverage          float64  `yaml:"max_leverage" json:"max_leverage"`
	MinAccountsPerPair   int      `yaml:"min_accounts_per_pair" json:"min_accounts_per_pair"`
	MaxAccountsPerPair   int      `yaml:"max_accounts_per_pair" json:"max_accounts_per_pair"`
	AvgAccountsPerPair   int      `yaml:"avg_accounts_per_pair" json:"avg_accounts_per_pair"`
	ShortAccounts        Range    `yaml:"short_accounts" json:"short_accounts"`
	LongUsage            Range    `yaml:"long_usage" json:"long_usage"`
	LongLeverage         Range    `yaml:"long_leverage" json:"long_leverage"`
	ShortLeverage        Range    `yaml:"short_leverage" json:"short_leverage"`
	PerturbationRange    float64  `yaml:"perturbation_range" json:"perturbation_range"`
	PerturbationAttempts int      `yaml:"perturbation_attempts" json:"perturbation_attempts"`
	NeutralityTolerance  float64  `yaml:"neutrality_tolerance" json:"neutrality_tolerance"`
	Seed                 int64    `yaml:"seed" json:"seed"`                       // 0 表示按时间播种
	BalanceWorkers       int      `yaml:"balance_workers" json:"balance_workers"` // 并发查询余额的 worker 数
}

// Allocator 转换为分配器参数
func (f Forks) Allocator() deltaneutral.Config {
	return deltaneutral.Config{
		Symbols:              f.Symbols,
		MaxLeverage:          f.MaxLeverage,
		MinAccountsPerPair:   f.MinAccountsPerPair,
		MaxAccountsPerPair:   f.MaxAccountsPerPair,
		AvgAccountsPerPair:   f.AvgAccountsPerPair,
		MinShortAccounts:     int(f.ShortAccounts.Lo),
		MaxShortAccounts:     int(f.ShortAccounts.Hi),
		LongUsageMin:         f.LongUsage.Lo,
		LongUsageMax:         f.LongUsage.Hi,
		LongLeverageMin:      int(f.LongLeverage.Lo),
		LongLeverageMax:      int(f.LongLeverage.Hi),
		ShortLeverageMin:     f.ShortLeverage.Lo,
		ShortLeverageMax:     f.ShortLeverage.Hi,
		PerturbationRange:    f.PerturbationRange,
		PerturbationAttempts: f.PerturbationAttempts,
		NeutralityTolerance:  f.NeutralityTolerance,
	}
}

// Files 输入输出文件
type Files struct {
	Wallets          string `yaml:"wallets" json:"wallets"`
	Proxies          string `yaml:"proxies" json:"proxies"`
	Recipients       string `yaml:"recipients" json:"recipients"`
	DepositAddresses string `yaml:"deposit_addresses" json:"deposit_addresses"`
}

// Storage 本地存储
type Storage struct {
	DBPath    string `yaml:"db_path" json:"db_path"`
	SecretDB  string `yaml:"secret_db" json:"secret_db"`   // badger 目录，配置后私钥从这里读取
	SecretKey string `yaml:"secret_key" json:"secret_key"` // 建议用环境变量 GOPACK_SECRET_KEY
}

// ProxyCheck 代理可用性检查
type ProxyCheck struct {
	URL         string `yaml:"url" json:"url"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	TimeoutSec  int    `yaml:"timeout_sec" json:"timeout_sec"`
}

// API 只读状态服务
type API struct {
	Listen        string `yaml:"listen" json:"listen"`
	MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"` // bot 进程的 /debug/vars，为空不启动
}

// Config 应用配置
type Config struct {
	General     General       `yaml:"general" json:"general"`
	Telegram    Telegram      `yaml:"telegram" json:"telegram"`
	Tasks       Tasks         `yaml:"tasks" json:"tasks"`
	RandomSwaps RandomSwaps   `yaml:"random_swaps" json:"random_swaps"`
	Spot        Spot          `yaml:"spot" json:"spot"`
	Futures     Futures       `yaml:"futures" json:"futures"`
	OKXWithdraw OKXWithdraw   `yaml:"okx_withdraw" json:"okx_withdraw"`
	OKXDeposit  OKXDeposit    `yaml:"okx_deposit" json:"okx_deposit"`
	OKX         OKX           `yaml:"okx" json:"okx"`
	Forks       Forks         `yaml:"forks" json:"forks"`
	Files       Files         `yaml:"files" json:"files"`
	Storage     Storage       `yaml:"storage" json:"storage"`
	ProxyCheck  ProxyCheck    `yaml:"proxy_check" json:"proxy_check"`
	API         API           `yaml:"api" json:"api"`
	Log         logger.Config `yaml:"log" json:"log"`
}

// Default 默认配置
func Default() *Config {
	alloc := deltaneutral.DefaultConfig()
	return &Config{
		General: General{
			PauseBetweenWallets: R(10, 15),
			PauseBetweenModules: R(15, 20),
			Retries:             3,
			PauseBetweenRetries: 15,
		},
		RandomSwaps: RandomSwaps{
			Symbols:        []string{"SOL", "ETH", "PYTH", "JTO", "LINK", "USDT", "UNI"},
			NumOfSwaps:     R(3, 4),
			SwapPercentage: R(0.1, 0.2),
		},
		Spot: Spot{
			Symbols:              []string{"SOL"},
			Side:                 "Ask",
			AmountUSDC:           R(10, 15),
			UsePercentageUSDC:    true,
			TradePercentageUSDC:  R(0.1, 0.15),
			AmountToken:          R(0.1, 0.2),
			UsePercentageToken:   true,
			TradePercentageToken: R(0.8, 0.8),
		},
		Futures: Futures{
			Symbols:         []string{"SOL"},
			Amount:          R(5, 10),
			Side:            "Ask",
			Leverage:        2,
			TradePercentage: R(0.1, 0.2),
		},
		OKXWithdraw: OKXWithdraw{
			Chains:         []string{"Solana"},
			Token:          "USDC",
			Amount:         R(5, 10),
			MinUSDCBalance: 25,
		},
		OKXDeposit: OKXDeposit{
			Chain:       "Solana",
			Token:       "USDC",
			KeepBalance: R(30, 30),
		},
		OKX: OKX{BaseURL: "https://www.okx.com"},
		Forks: Forks{
			Symbols:              alloc.Symbols,
			MaxLeverage:          alloc.MaxLeverage,
			MinAccountsPerPair:   alloc.MinAccountsPerPair,
			MaxAccountsPerPair:   alloc.MaxAccountsPerPair,
			AvgAccountsPerPair:   alloc.AvgAccountsPerPair,
			ShortAccounts:        R(float64(alloc.MinShortAccounts), float64(alloc.MaxShortAccounts)),
			LongUsage:            R(alloc.LongUsageMin, alloc.LongUsageMax),
			LongLeverage:         R(float64(alloc.LongLeverageMin), float64(alloc.LongLeverageMax)),
			ShortLeverage:        R(alloc.ShortLeverageMin, alloc.ShortLeverageMax),
			PerturbationRange:    alloc.PerturbationRange,
			PerturbationAttempts: alloc.PerturbationAttempts,
			NeutralityTolerance:  alloc.NeutralityTolerance,
			BalanceWorkers:       4,
		},
		Files: Files{
			Wallets:          "wallets.txt",
			Proxies:          "proxies.txt",
			Recipients:       "recipients.txt",
			DepositAddresses: "deposit_addresses.txt",
		},
		Storage: Storage{
			DBPath: "data/gopack.db",
		},
		ProxyCheck: ProxyCheck{
			URL:         "https://lisk.drpc.org",
			Concurrency: 50,
			TimeoutSec:  8,
		},
		API: API{Listen: ":8080"},
		Log: logger.DefaultConfig(),
	}
}

// Load 读取配置文件（不存在时使用默认值），叠加环境变量后校验
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadConfigFile(path, cfg); err != nil {
				return nil, fmt.Errorf("加载配置文件失败 %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) || path != DefaultPath {
			return nil, fmt.Errorf("配置文件不可用 %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 支持 YAML 和 JSON，未出现的字段保留默认值
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

// applyEnv 敏感信息优先取环境变量
func applyEnv(cfg *Config) {
	cfg.Telegram.BotToken = getEnv("GOPACK_TG_BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.Telegram.UserID = parseInt64Env("GOPACK_TG_USER_ID", cfg.Telegram.UserID)
	cfg.OKX.APIKey = getEnv("GOPACK_OKX_API_KEY", cfg.OKX.APIKey)
	cfg.OKX.APISecret = getEnv("GOPACK_OKX_API_SECRET", cfg.OKX.APISecret)
	cfg.OKX.APIPassword = getEnv("GOPACK_OKX_API_PASSWORD", cfg.OKX.APIPassword)
	cfg.Storage.SecretKey = getEnv("GOPACK_SECRET_KEY", cfg.Storage.SecretKey)
	cfg.Storage.DBPath = getEnv("GOPACK_DB", cfg.Storage.DBPath)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
}

// Validate 验证配置
func (c *Config) Validate() error {
	g := c.General
	if !g.PauseBetweenWallets.Valid() || !g.PauseBetweenModules.Valid() {
		return fmt.Errorf("pause_between_wallets / pause_between_modules 区间无效")
	}
	if g.Retries < 1 {
		return fmt.Errorf("retries 必须大于 0")
	}
	if g.PauseBetweenRetries < 0 {
		return fmt.Errorf("pause_between_retries 不能为负数")
	}

	if c.Tasks.RandomSwaps {
		if len(c.RandomSwaps.Symbols) == 0 {
			return fmt.Errorf("random_swaps.symbols 不能为空")
		}
		if !c.RandomSwaps.NumOfSwaps.Valid() || !validFraction(c.RandomSwaps.SwapPercentage) {
			return fmt.Errorf("random_swaps 区间无效")
		}
	}
	if c.Tasks.BackpackSpot {
		if len(c.Spot.Symbols) == 0 {
			return fmt.Errorf("spot.symbols 不能为空")
		}
		if !validSide(c.Spot.Side) {
			return fmt.Errorf("spot.side 必须是 Bid 或 Ask，实际 %q", c.Spot.Side)
		}
		if !c.Spot.AmountUSDC.Valid() || !c.Spot.AmountToken.Valid() ||
			!validFraction(c.Spot.TradePercentageUSDC) || !validFraction(c.Spot.TradePercentageToken) {
			return fmt.Errorf("spot 区间无效")
		}
	}
	if c.Tasks.BackpackFutures {
		if len(c.Futures.Symbols) == 0 {
			return fmt.Errorf("futures.symbols 不能为空")
		}
		if !validSide(c.Futures.Side) {
			return fmt.Errorf("futures.side 必须是 Bid 或 Ask，实际 %q", c.Futures.Side)
		}
		if c.Futures.Leverage < 1 {
			return fmt.Errorf("futures.leverage 必须大于等于 1")
		}
		if !c.Futures.Amount.Valid() || !validFraction(c.Futures.TradePercentage) {
			return fmt.Errorf("futures 区间无效")
		}
	}
	if c.Tasks.OKXWithdraw {
		if len(c.OKXWithdraw.Chains) == 0 || c.OKXWithdraw.Token == "" {
			return fmt.Errorf("okx_withdraw.chains / token 不能为空")
		}
		if !c.OKXWithdraw.Amount.Valid() {
			return fmt.Errorf("okx_withdraw.amount 区间无效")
		}
		if c.OKX.APIKey == "" || c.OKX.APISecret == "" || c.OKX.APIPassword == "" {
			return fmt.Errorf("启用 okx_withdraw 需要配置 OKX API 凭证")
		}
	}
	if c.Tasks.OKXDeposit {
		if c.OKXDeposit.Chain == "" || c.OKXDeposit.Token == "" {
			return fmt.Errorf("okx_deposit.chain / token 不能为空")
		}
		if !c.OKXDeposit.KeepBalance.Valid() {
			return fmt.Errorf("okx_deposit.keep_balance 区间无效")
		}
	}

	if c.Forks.BalanceWorkers < 1 {
		return fmt.Errorf("forks.balance_workers 必须大于 0")
	}
	if err := c.Forks.Allocator().Validate(); err != nil {
		return fmt.Errorf("forks: %w", err)
	}

	if c.Files.Wallets == "" {
		return fmt.Errorf("files.wallets 不能为空")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path 不能为空")
	}
	if c.ProxyCheck.Concurrency < 1 {
		return fmt.Errorf("proxy_check.concurrency 必须大于 0")
	}
	return nil
}

func validSide(s string) bool {
	return s == "Bid" || s == "Ask"
}

func validFraction(r Range) bool {
	return r.Valid() && r.Hi <= 1
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt64Env 解析整数环境变量
func parseInt64Env(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
