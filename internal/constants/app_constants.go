package constants

import "time"

const (
	// Application-level constants
	DefaultBuilderVer = "1.0"

	// Session-related constants
	DefaultSessionTTL = 24 * time.Hour

	// 会话分布式锁的持有上限，持有方异常退出时靠过期自动释放
	DefaultSessionLockTTL = 30 * time.Second

	// 单步重新生成次数上限，超出后强制采用当前保留的内容
	DefaultMaxRegenAttempts = 5
)
