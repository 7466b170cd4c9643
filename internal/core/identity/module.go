package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-messenger/config"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/lib/log"
)

var logger = log.Logger("core/identity")

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// 配置（可选，使用默认配置）
	Config *config.Config `optional:"true"`

	// Identity 直接注入的身份（WithIdentity 场景，优先级最高）
	Identity *Identity `name:"preset_identity" optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Identity  *Identity
	Anonymous *crypto.Anonymous
}

// ProvideServices 创建或加载节点身份
//
// 优先级：直接注入 > 密钥文件 > 临时生成
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	out := ModuleOutput{Anonymous: crypto.NewAnonymous()}

	if input.Identity != nil {
		out.Identity = input.Identity
		return out, nil
	}

	cfg := config.DefaultIdentityConfig()
	if input.Config != nil {
		cfg = input.Config.Identity
	}

	id, err := LoadOrCreate(cfg.KeyFile, cfg.AutoGenerate)
	if err != nil {
		return ModuleOutput{}, err
	}

	logger.Debug("节点身份就绪", "peer", id.PeerID().ShortString())
	out.Identity = id
	return out, nil
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideServices),
	)
}
