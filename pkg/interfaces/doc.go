// Package interfaces 定义 messenger 的协作者接口
//
// 目前只包含通道层：
//   - channel.go        - Channel / ChannelHandler / ChannelService
//
// mocks/ 子目录提供 go.uber.org/mock 生成的桩实现，供各包测试使用。
package interfaces
