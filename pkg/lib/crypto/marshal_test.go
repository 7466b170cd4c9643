package crypto

import (
	"testing"
)

func TestMarshalPublicKey_RoundTrip(t *testing.T) {
	_, pub, _ := GenerateKeyPair()

	data, err := MarshalPublicKey(pub)
	if err != nil {
		t.Fatalf("MarshalPublicKey() error = %v", err)
	}
	if len(data) != marshalHeaderSize+Ed25519PublicKeySize {
		t.Errorf("len = %d, want %d", len(data), marshalHeaderSize+Ed25519PublicKeySize)
	}

	back, err := UnmarshalPublicKeyBytes(data)
	if err != nil {
		t.Fatalf("UnmarshalPublicKeyBytes() error = %v", err)
	}
	if !back.Equals(pub) {
		t.Error("round trip changed key")
	}

	// 带尾随数据时 ReadPublicKey 只消耗一个编码
	key, n, err := ReadPublicKey(append(data, 1, 2, 3))
	if err != nil || n != len(data) || !key.Equals(pub) {
		t.Errorf("ReadPublicKey() = %v, %d, %v", key, n, err)
	}
	if _, err := UnmarshalPublicKeyBytes(append(data, 9)); err == nil {
		t.Error("UnmarshalPublicKeyBytes(trailing) error = nil")
	}
}

func TestMarshalPrivateKey_RoundTrip(t *testing.T) {
	priv, _, _ := GenerateKeyPair()

	data, err := MarshalPrivateKey(priv)
	if err != nil {
		t.Fatalf("MarshalPrivateKey() error = %v", err)
	}
	back, err := UnmarshalPrivateKeyBytes(data)
	if err != nil {
		t.Fatalf("UnmarshalPrivateKeyBytes() error = %v", err)
	}
	if !back.Equals(priv) {
		t.Error("round trip changed key")
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte{2, 0, 0}},
		{"length overflow", []byte{2, 0xff, 0xff, 0xff, 0xff}},
		{"truncated", []byte{2, 0, 0, 0, 32, 1, 2}},
		{"bad type", append([]byte{9, 0, 0, 0, 32}, make([]byte, 32)...)},
		{"bad size", []byte{2, 0, 0, 0, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalPublicKeyBytes(tt.data); err == nil {
				t.Error("UnmarshalPublicKeyBytes() error = nil")
			}
		})
	}
}

func TestSignature_Encoding(t *testing.T) {
	priv, _, _ := GenerateKeyPair()
	sig, _ := Sign(priv, []byte("payload"))

	buf := sig.AppendTo([]byte{0xaa})
	if len(buf) != 1+sig.Size() {
		t.Fatalf("AppendTo len = %d, want %d", len(buf), 1+sig.Size())
	}

	back, n, err := ReadSignature(buf[1:])
	if err != nil {
		t.Fatalf("ReadSignature() error = %v", err)
	}
	if n != sig.Size() || !back.Equal(sig) {
		t.Errorf("ReadSignature() = %v, %d", back, n)
	}

	// 空签名
	empty, n, err := ReadSignature(Signature{}.AppendTo(nil))
	if err != nil || n != SignatureHeaderSize || !empty.IsEmpty() {
		t.Errorf("ReadSignature(empty) = %v, %d, %v", empty, n, err)
	}

	if _, _, err := ReadSignature([]byte{2, 0, 64, 1}); err == nil {
		t.Error("ReadSignature(truncated) error = nil")
	}
}
