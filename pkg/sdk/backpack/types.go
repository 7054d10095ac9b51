package backpack

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrAmountTooSmall 按精度取整后买入数量为 0
	ErrAmountTooSmall = errors.New("backpack: buy amount is smaller than the minimal amount")
	// ErrEmptyBook 订单簿没有对应方向的挂单
	ErrEmptyBook = errors.New("backpack: order book side is empty")
	// ErrNoAddress 未提供提币地址
	ErrNoAddress = errors.New("backpack: withdrawal address must be provided")
	// ErrBadSecret 私钥不是 base64 编码的 32 字节 ed25519 种子
	ErrBadSecret = errors.New("backpack: invalid ed25519 secret")
)

// Side 订单方向：Bid 买 / 多，Ask 卖 / 空
type Side string

const (
	Bid Side = "Bid"
	Ask Side = "Ask"
)

// Opposite 反方向
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// TimeInForce 订单有效方式
type TimeInForce string

const (
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
	GTC TimeInForce = "GTC"
)

// Order status
const (
	StatusFilled = "Filled"
	StatusNew    = "New"
)

// Balance 单个币种余额
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
	Staked    decimal.Decimal `json:"staked"`
}

// OrderBook 深度，价格和数量都是字符串，asks 升序，bids 升序（最优买价在末尾）
type OrderBook struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
}

// Market 交易对信息
type Market struct {
	Symbol      string `json:"symbol"`
	BaseSymbol  string `json:"baseSymbol"`
	QuoteSymbol string `json:"quoteSymbol"`
	MarketType  string `json:"marketType"`
}

// Order 下单返回
type Order struct {
	ID               string `json:"id"`
	Symbol           string `json:"symbol"`
	Side             Side   `json:"side"`
	OrderType        string `json:"orderType"`
	Status           string `json:"status"`
	Price            string `json:"price"`
	Quantity         string `json:"quantity"`
	ExecutedQuantity string `json:"executedQuantity"`
}

// Placed 订单已成交或已挂出
func (o *Order) Placed() bool {
	return o != nil && (o.Status == StatusFilled || o.Status == StatusNew)
}

// Position 合约持仓，NetQuantity 为正是多头
type Position struct {
	Symbol      string          `json:"symbol"`
	NetQuantity decimal.Decimal `json:"netQuantity"`
	EntryPrice  decimal.Decimal `json:"entryPrice"`
}

// Side 持仓方向
func (p Position) Side() Side {
	if p.NetQuantity.IsPositive() {
		return Bid
	}
	return Ask
}

// Withdrawal 提币请求
type Withdrawal struct {
	Address    string
	Blockchain string
	Symbol     string
	Quantity   decimal.Decimal
}

// DepositAddress 充值地址返回
type DepositAddress struct {
	Address string `json:"address"`
}
