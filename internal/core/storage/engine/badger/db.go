package badger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-messenger/internal/core/storage/engine"
	"github.com/dep2p/go-messenger/pkg/lib/log"
	"github.com/dgraph-io/badger/v4"
)

// logger 是 badger 存储引擎的日志记录器
var logger = log.Logger("storage/badger")

// Engine BadgerDB 存储引擎
type Engine struct {
	db     *badger.DB
	config *engine.Config
	closed atomic.Bool

	// 后台任务
	gcCtx    context.Context
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// New 创建新的 BadgerDB 存储引擎
func New(cfg *engine.Config) (*Engine, error) {
	if cfg == nil {
		return nil, engine.ErrInvalidConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.EnsureDir(); err != nil {
		return nil, err
	}

	db, err := badger.Open(buildBadgerOptions(cfg))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		db:       db,
		config:   cfg,
		gcCtx:    ctx,
		gcCancel: cancel,
	}, nil
}

// buildBadgerOptions 根据配置构建 BadgerDB 选项
func buildBadgerOptions(cfg *engine.Config) badger.Options {
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(cfg.NumVersionsToKeep).
		WithReadOnly(cfg.ReadOnly)

	b := cfg.Badger
	opts = opts.
		WithMemTableSize(b.MemTableSize).
		WithValueLogFileSize(b.ValueLogFileSize).
		WithNumMemtables(b.NumMemtables).
		WithValueThreshold(b.ValueThreshold).
		WithBlockCacheSize(b.BlockCacheSize).
		WithNumCompactors(b.NumCompactors).
		WithZSTDCompressionLevel(b.ZSTDCompressionLevel)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	return opts
}

// badgerLogger 适配器：将 engine.Logger 适配到 badger.Logger
type badgerLogger struct {
	logger engine.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warningf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Start 启动存储引擎
func (e *Engine) Start() error {
	if e.closed.Load() {
		return engine.ErrClosed
	}

	if e.config.Badger.GCInterval > 0 && !e.config.ReadOnly {
		e.startGC()
	}

	return nil
}

// startGC 启动垃圾回收后台任务
func (e *Engine) startGC() {
	e.gcWg.Add(1)
	go func() {
		defer e.gcWg.Done()

		ticker := time.NewTicker(e.config.Badger.GCInterval)
		defer ticker.Stop()

		for {
			select {
			case <-e.gcCtx.Done():
				return
			case <-ticker.C:
				e.runGC()
			}
		}
	}()
}

// runGC 执行一次垃圾回收
func (e *Engine) runGC() {
	if e.closed.Load() {
		return
	}

	// 运行 GC 直到没有更多可回收的空间
	for {
		if err := e.db.RunValueLogGC(e.config.Badger.GCDiscardRatio); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				logger.Debug("值日志 GC 结束", "error", err)
			}
			break
		}
	}
}

// Get 获取指定键的值
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, engine.ErrClosed
	}
	if len(key) == 0 {
		return nil, engine.ErrEmptyKey
	}

	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, convertError(err)
	}

	return value, nil
}

// Put 设置键值对
func (e *Engine) Put(key, value []byte) error {
	if err := e.checkWritable(key); err != nil {
		return err
	}

	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}))
}

// Delete 删除指定键
func (e *Engine) Delete(key []byte) error {
	if err := e.checkWritable(key); err != nil {
		return err
	}

	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

// Has 检查键是否存在
func (e *Engine) Has(key []byte) (bool, error) {
	if e.closed.Load() {
		return false, engine.ErrClosed
	}
	if len(key) == 0 {
		return false, engine.ErrEmptyKey
	}

	var exists bool
	err := e.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			exists = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})

	return exists, convertError(err)
}

func (e *Engine) checkWritable(key []byte) error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	if e.config.ReadOnly {
		return engine.ErrReadOnly
	}
	if len(key) == 0 {
		return engine.ErrEmptyKey
	}
	return nil
}

// Close 关闭存储引擎
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}

	e.gcCancel()
	e.gcWg.Wait()

	return e.db.Close()
}

// NewBatch 创建新的批量写入对象
func (e *Engine) NewBatch() engine.Batch {
	return &WriteBatch{
		db:    e,
		batch: e.db.NewWriteBatch(),
	}
}

// Write 执行批量写入
func (e *Engine) Write(batch engine.Batch) error {
	wb, ok := batch.(*WriteBatch)
	if !ok {
		return engine.ErrInvalidConfig
	}
	return wb.Write()
}

// NewIterator 创建新的迭代器
func (e *Engine) NewIterator(opts *engine.IteratorOptions) engine.Iterator {
	if opts == nil {
		opts = engine.DefaultIteratorOptions()
	}

	txn := e.db.NewTransaction(false)

	badgerOpts := badger.DefaultIteratorOptions
	badgerOpts.Reverse = opts.Reverse
	badgerOpts.PrefetchSize = opts.PrefetchSize
	badgerOpts.PrefetchValues = opts.PrefetchValues
	if len(opts.Prefix) > 0 {
		badgerOpts.Prefix = opts.Prefix
	}

	return &Iterator{
		txn:      txn,
		iter:     txn.NewIterator(badgerOpts),
		prefix:   opts.Prefix,
		startKey: opts.StartKey,
		endKey:   opts.EndKey,
	}
}

// NewPrefixIterator 创建前缀迭代器
func (e *Engine) NewPrefixIterator(prefix []byte) engine.Iterator {
	return e.NewIterator(&engine.IteratorOptions{
		Prefix:         prefix,
		PrefetchSize:   100,
		PrefetchValues: true,
	})
}

// Sync 同步数据到磁盘
func (e *Engine) Sync() error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	return e.db.Sync()
}

// convertError 转换 BadgerDB 错误到引擎错误
func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return engine.ErrNotFound
	case errors.Is(err, badger.ErrEmptyKey):
		return engine.ErrEmptyKey
	case errors.Is(err, badger.ErrTxnTooBig):
		return engine.ErrTransactionTooLarge
	case errors.Is(err, badger.ErrReadOnlyTxn):
		return engine.ErrReadOnly
	default:
		return err
	}
}

// 编译时检查接口实现
var _ engine.Engine = (*Engine)(nil)
