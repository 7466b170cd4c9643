package quic

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/dep2p/go-messenger/internal/core/identity"
	"github.com/dep2p/go-messenger/pkg/lib/crypto"
	"github.com/dep2p/go-messenger/pkg/types"
)

// alpn 应用层协议标识
const alpn = "messenger-channel"

// newCertificate 用节点私钥生成自签名证书
//
// 证书公钥即节点 Ed25519 公钥，PeerID 由此直接得到。
func newCertificate(id *identity.Identity) (tls.Certificate, error) {
	priv, ok := id.PrivateKey().(*crypto.Ed25519PrivateKey)
	if !ok {
		return tls.Certificate{}, fmt.Errorf("不支持的密钥类型: %T", id.PrivateKey())
	}
	key := priv.StdKey()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"messenger"},
			CommonName:   "messenger peer " + id.PeerID().ShortString(),
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour * 24 * 180),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("创建证书失败: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}, nil
}

// serverTLSConfig 入站 TLS 配置：要求对端证书，接受任意合法 Ed25519 身份
func serverTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
		// 自签名证书没有 CA，身份由 VerifyPeerCertificate 校验
		InsecureSkipVerify: true,
		ClientAuth:         tls.RequireAnyClientCert,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			_, err := peerFromCertificates(rawCerts)
			return err
		},
		MinVersion: tls.VersionTLS13,
	}
}

// clientTLSConfig 出站 TLS 配置：要求证书公钥等于 expected
func clientTLSConfig(cert tls.Certificate, expected types.PeerID) *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{alpn},
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			actual, err := peerFromCertificates(rawCerts)
			if err != nil {
				return err
			}
			if actual != expected {
				return fmt.Errorf("%w: expected %s, got %s", ErrPeerMismatch, expected.ShortString(), actual.ShortString())
			}
			return nil
		},
		MinVersion: tls.VersionTLS13,
	}
}

// peerFromCertificates 从原始证书链提取 PeerID
func peerFromCertificates(rawCerts [][]byte) (types.PeerID, error) {
	if len(rawCerts) == 0 {
		return types.EmptyPeerID, ErrNoCertificate
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return types.EmptyPeerID, fmt.Errorf("解析证书失败: %w", err)
	}
	return peerFromCertificate(cert)
}

// peerFromCertificate 从证书公钥得到 PeerID，并检查有效期
func peerFromCertificate(cert *x509.Certificate) (types.PeerID, error) {
	pub, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return types.EmptyPeerID, ErrBadKey
	}

	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return types.EmptyPeerID, fmt.Errorf("证书不在有效期内: %v - %v", cert.NotBefore, cert.NotAfter)
	}

	return types.PeerIDFromBytes(pub)
}
