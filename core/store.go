package core

import (
	"context"
	"time"
)

// Store 是结果缓存背后的 KV 存储接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 只保留缓存需要的最小操作集；未命中返回 ErrStoreNotFound
//   - 可用性是可选的：调用方必须把任何错误当作未命中处理
//
// 实现：
//   - store.MemoryStore（进程内，go-cache）
//   - store.RedisStore（共享缓存）
//   - store.Tiered（本地 L1 + 远端 L2）
type Store interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Get 读取单个 key 的值
	Get(ctx context.Context, key string) ([]byte, error)

	// Set 写入单个 key-value，ttl <= 0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除单个 key
	Delete(ctx context.Context, key string) error

	// Close 关闭连接/释放资源
	Close() error
}
