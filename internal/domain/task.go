package domain

import "github.com/betbot/gopack/pkg/config"

// TaskName 钱包任务名称，与数据库中的 task_name 一致
type TaskName string

const (
	TaskOKXWithdraw     TaskName = "OKX_WITHDRAW"
	TaskBackpackSpot    TaskName = "BACKPACK_SPOT"
	TaskBackpackFutures TaskName = "BACKPACK_FUTURES"
	TaskRandomSwaps     TaskName = "RANDOM_SWAPS"
	TaskCloseAll        TaskName = "CLOSE_ALL"
	TaskSwapAllToUSDC   TaskName = "SWAP_ALL_TO_USDC"
	TaskGetTickers      TaskName = "GET_TICKERS"
	TaskOKXDeposit      TaskName = "OKX_DEPOSIT"
)

// TaskOrder 任务的固定执行顺序
var TaskOrder = []TaskName{
	TaskOKXWithdraw,
	TaskBackpackSpot,
	TaskBackpackFutures,
	TaskRandomSwaps,
	TaskCloseAll,
	TaskSwapAllToUSDC,
	TaskGetTickers,
	TaskOKXDeposit,
}

// EnabledTasks 按固定顺序返回配置中打开的任务
func EnabledTasks(t config.Tasks) []TaskName {
	on := map[TaskName]bool{
		TaskOKXWithdraw:     t.OKXWithdraw,
		TaskBackpackSpot:    t.BackpackSpot,
		TaskBackpackFutures: t.BackpackFutures,
		TaskRandomSwaps:     t.RandomSwaps,
		TaskCloseAll:        t.CloseAll,
		TaskSwapAllToUSDC:   t.SwapAllToUSDC,
		TaskGetTickers:      t.GetTickers,
		TaskOKXDeposit:      t.OKXDeposit,
	}
	out := make([]TaskName, 0, len(TaskOrder))
	for _, name := range TaskOrder {
		if on[name] {
			out = append(out, name)
		}
	}
	return out
}

// Valid 是否为已知任务
func (n TaskName) Valid() bool {
	for _, name := range TaskOrder {
		if n == name {
			return true
		}
	}
	return false
}

// Status 钱包 / 任务 / fork 的状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)
