package crypto

import "github.com/dep2p/go-messenger/pkg/types"

// anonymousSeedLabel 匿名身份种子标签
const anonymousSeedLabel = "messenger-anonymous-ego"

// Anonymous 匿名身份上下文
//
// 所有节点由同一个固定种子派生出相同的匿名密钥对，没有 ego 的 Handle 使用它签名。
// 启动时构造一次，通过引用传给 Service/Room，不使用全局变量。
type Anonymous struct {
	priv PrivateKey
	pub  PublicKey
}

// NewAnonymous 派生匿名身份
func NewAnonymous() *Anonymous {
	seed := types.HashBytes([]byte(anonymousSeedLabel))
	priv, err := NewEd25519KeyFromSeed(seed[:])
	if err != nil {
		// 种子长度固定为 32 字节
		panic(err)
	}
	return &Anonymous{priv: priv, pub: priv.GetPublic()}
}

// PrivateKey 返回匿名私钥
func (a *Anonymous) PrivateKey() PrivateKey {
	return a.priv
}

// PublicKey 返回匿名公钥
func (a *Anonymous) PublicKey() PublicKey {
	return a.pub
}

// IsAnonymous 判断公钥是否为匿名公钥
func (a *Anonymous) IsAnonymous(key PublicKey) bool {
	return key != nil && a.pub.Equals(key)
}
