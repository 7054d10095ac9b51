// Package metrics 进程内计数器，通过 expvar 暴露在 /debug/vars。
package metrics

import "expvar"

var (
	TasksCompleted = expvar.NewInt("tasks_completed")
	TasksFailed    = expvar.NewInt("tasks_failed")
	WalletsDone    = expvar.NewInt("wallets_done")
	LegsOpened     = expvar.NewInt("fork_legs_opened")
	LegsFailed     = expvar.NewInt("fork_legs_failed")
	ForksCompleted = expvar.NewInt("forks_completed")
)
