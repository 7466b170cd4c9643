package identity

import (
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// Identity 本节点身份
type Identity struct {
	privateKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	peerID     types.PeerID
}

// New 从私钥创建身份
func New(priv crypto.PrivateKey) (*Identity, error) {
	if priv == nil {
		return nil, ErrNilPrivateKey
	}

	pub := priv.GetPublic()
	id, err := crypto.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, err
	}

	return &Identity{
		privateKey: priv,
		publicKey:  pub,
		peerID:     id,
	}, nil
}

// Generate 生成新的随机身份
func Generate() (*Identity, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv)
}

// PeerID 返回节点 ID
func (i *Identity) PeerID() types.PeerID {
	return i.peerID
}

// PrivateKey 返回私钥
func (i *Identity) PrivateKey() crypto.PrivateKey {
	return i.privateKey
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() crypto.PublicKey {
	return i.publicKey
}

// Sign 使用节点私钥签名
func (i *Identity) Sign(data []byte) (crypto.Signature, error) {
	return crypto.Sign(i.privateKey, data)
}
