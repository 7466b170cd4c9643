// Package engine 定义 messenger 持久化使用的存储引擎接口
//
// 房间、成员、会话与 Handle 映射都落在同一个引擎上，
// 通过 kv.Store 的前缀隔离出各自的层级目录。
//
// # 线程安全
//
// 所有接口实现必须保证线程安全。批量操作在提交前
// 是独立的，不影响其他并发操作。
package engine

// Engine 存储引擎接口
type Engine interface {
	// Get 获取指定键的值
	//
	// 键不存在时返回 ErrNotFound。返回值是副本，调用者可以修改。
	Get(key []byte) ([]byte, error)

	// Put 设置键值对（覆盖旧值）
	Put(key, value []byte) error

	// Delete 删除指定键（幂等）
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// NewBatch 创建新的批量写入对象
	NewBatch() Batch

	// Write 原子写入批量操作
	Write(batch Batch) error

	// NewIterator 创建新的迭代器，opts 为 nil 时使用默认选项
	NewIterator(opts *IteratorOptions) Iterator

	// NewPrefixIterator 创建前缀迭代器
	NewPrefixIterator(prefix []byte) Iterator

	// Start 启动后台任务（GC 等）
	Start() error

	// Sync 同步数据到磁盘
	Sync() error

	// Close 关闭引擎
	Close() error
}

// Batch 批量写入接口
//
// Batch 不是线程安全的，不应在多个 goroutine 中并发使用。
type Batch interface {
	// Put 添加一个写入操作
	Put(key, value []byte)

	// Delete 添加一个删除操作
	Delete(key []byte)

	// Write 提交批量操作
	Write() error

	// Reset 丢弃尚未提交的操作
	Reset()

	// Size 返回操作数量
	Size() int
}

// Iterator 迭代器接口
//
//	iter := eng.NewPrefixIterator([]byte("r/"))
//	defer iter.Close()
//	for iter.First(); iter.Valid(); iter.Next() {
//	    key, value := iter.Key(), iter.Value()
//	}
//	if err := iter.Error(); err != nil {
//	    return err
//	}
type Iterator interface {
	// First 移动到第一个键值对
	First() bool

	// Next 移动到下一个键值对
	Next() bool

	// Valid 检查迭代器是否指向有效位置
	Valid() bool

	// Key 返回当前键的副本
	Key() []byte

	// Value 返回当前值的副本
	Value() []byte

	// Close 关闭迭代器
	Close()

	// Error 返回迭代过程中的错误
	Error() error
}

// IteratorOptions 迭代器选项
type IteratorOptions struct {
	// Prefix 仅迭代具有此前缀的键
	Prefix []byte

	// Reverse 是否反向迭代
	Reverse bool

	// StartKey 起始键（包含）
	StartKey []byte

	// EndKey 结束键（不包含）
	EndKey []byte

	// PrefetchSize 预取数量（0 表示使用默认值）
	PrefetchSize int

	// PrefetchValues 是否预取值
	PrefetchValues bool
}

// DefaultIteratorOptions 返回默认迭代器选项
func DefaultIteratorOptions() *IteratorOptions {
	return &IteratorOptions{
		PrefetchSize:   100,
		PrefetchValues: true,
	}
}
