package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// BuilderModulePrefix 构建器模块
	BuilderModulePrefix = "builder"

	// EntitySession 构建器会话实体
	EntitySession = "session"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyBuilderSession 构建器会话 (STRING, JSON值)
	// 格式: app:builder:session:{sessionID}
	KeyBuilderSession = AppPrefix + ":" + BuilderModulePrefix + ":" + EntitySession + ":%s"

	// KeyBuilderSessionLock 会话分布式锁 (STRING)
	// 格式: app:builder:lock:{sessionID}
	KeyBuilderSessionLock = AppPrefix + ":" + BuilderModulePrefix + ":" + EntityLock + ":%s"
)
