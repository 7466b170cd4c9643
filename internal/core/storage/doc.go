// Package storage 提供 messenger 的持久化存储服务
//
// 基于 BadgerDB，持久化是可选的：配置中 Storage.Path 为空时
// 模块提供 nil 的 *kv.Store，所有组件的 Save/Load 直接跳过。
//
// # 键空间设计
//
// 以键前缀保留 房间/成员/会话 的层级：
//
//	r/<room>/state                       消息状态（分叉前沿）
//	r/<room>/basement                    basement 节点列表
//	r/<room>/msg/<hash>                  消息编码
//	r/<room>/msgidx                      后继链接与墓碑
//	r/<room>/ops                         延迟操作
//	r/<room>/m/<member>/id               成员 ID
//	r/<room>/m/<member>/s/<session>/meta 会话元数据
//	r/<room>/m/<member>/s/<session>/hist 会话历史
//	i/<ego>/<room>                       Handle 的 房间 → 成员 ID 映射
//
// # 使用示例
//
//	app := fx.New(
//	    storage.Module(),
//	    // ... 其他模块
//	)
//
// 手动创建：
//
//	eng, store, err := storage.Open("/data/messenger.db")
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//	room := store.SubStore([]byte("r/" + key.String() + "/"))
package storage
