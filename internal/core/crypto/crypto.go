package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"health-diary/pkg/utils"
)

// ErrDecryption 密文无法用当前密钥环还原（密钥轮换 / 数据损坏 / 伪造）
var ErrDecryption = errors.New("decryption failed")

const keyLen = 32

type Key struct {
	Version    int    `mapstructure:"version"`
	Passphrase string `mapstructure:"passphrase"`
}

type Options struct {
	Passphrase  string
	Salt        string
	Version     int
	IndexSecret string // 盲索引密钥，与加密密钥分开，轮换不影响查找
	Retired     []Key  // 旧版本，仅用于解密
}

// Service 字段级加密：AES-256-GCM，每个值随机 nonce。
// 密文格式：version(1B) || nonce(12B) || sealed，字符串再做 base64。
type Service struct {
	active   byte
	aeads    map[byte]cipher.AEAD
	indexKey []byte
}

func New(o Options) (*Service, error) {
	if o.Passphrase == "" || o.Salt == "" {
		return nil, errors.New("crypto: passphrase and salt are required")
	}
	if o.Version < 1 || o.Version > 255 {
		return nil, fmt.Errorf("crypto: key version %d out of range 1..255", o.Version)
	}
	s := &Service{active: byte(o.Version), aeads: map[byte]cipher.AEAD{}}

	keys := append([]Key{{Version: o.Version, Passphrase: o.Passphrase}}, o.Retired...)
	for _, k := range keys {
		if k.Version < 1 || k.Version > 255 {
			return nil, fmt.Errorf("crypto: key version %d out of range 1..255", k.Version)
		}
		if _, dup := s.aeads[byte(k.Version)]; dup {
			return nil, fmt.Errorf("crypto: duplicate key version %d", k.Version)
		}
		aead, err := newAEAD(deriveKey(k.Passphrase, o.Salt))
		if err != nil {
			return nil, err
		}
		s.aeads[byte(k.Version)] = aead
	}

	secret := o.IndexSecret
	if secret == "" {
		secret = o.Passphrase
	}
	s.indexKey = deriveKey(secret, "index:"+o.Salt)
	return s, nil
}

// NewEphemeral 随机密钥，进程退出即失效；只给测试和本地调试用
func NewEphemeral() *Service {
	key := make([]byte, keyLen)
	idx := make([]byte, keyLen)
	_, _ = rand.Read(key)
	_, _ = rand.Read(idx)
	aead, err := newAEAD(key)
	if err != nil {
		panic(err)
	}
	return &Service{active: 1, aeads: map[byte]cipher.AEAD{1: aead}, indexKey: idx}
}

func deriveKey(passphrase, salt string) []byte {
	return argon2.IDKey([]byte(passphrase), []byte(salt), 1, 64*1024, 4, keyLen)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func (s *Service) ActiveVersion() int { return int(s.active) }

func (s *Service) EncryptBytes(plain []byte) ([]byte, error) {
	aead := s.aeads[s.active]
	ns := aead.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(plain)+aead.Overhead())
	out[0] = s.active
	if _, err := rand.Read(out[1 : 1+ns]); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	return aead.Seal(out, out[1:1+ns], plain, out[:1]), nil
}

func (s *Service) DecryptBytes(sealed []byte) ([]byte, error) {
	if len(sealed) < 1 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrDecryption)
	}
	aead, ok := s.aeads[sealed[0]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key version %d", ErrDecryption, sealed[0])
	}
	ns := aead.NonceSize()
	if len(sealed) < 1+ns+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	plain, err := aead.Open(nil, sealed[1:1+ns], sealed[1+ns:], sealed[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

func (s *Service) Encrypt(plain string) (string, error) {
	b, err := s.EncryptBytes([]byte(plain))
	if err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}

func (s *Service) Decrypt(ciphertext string) (string, error) {
	b, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: not base64", ErrDecryption)
	}
	plain, err := s.DecryptBytes(b)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Reencrypt 非当前版本的密文换成当前版本；changed=false 表示无需改写
func (s *Service) Reencrypt(ciphertext string) (out string, changed bool, err error) {
	b, err := base64.RawStdEncoding.DecodeString(ciphertext)
	if err != nil || len(b) == 0 {
		return "", false, fmt.Errorf("%w: not base64", ErrDecryption)
	}
	if b[0] == s.active {
		return ciphertext, false, nil
	}
	plain, err := s.Decrypt(ciphertext)
	if err != nil {
		return "", false, err
	}
	out, err = s.Encrypt(plain)
	return out, err == nil, err
}

func (s *Service) ReencryptBytes(sealed []byte) ([]byte, bool, error) {
	if len(sealed) > 0 && sealed[0] == s.active {
		return sealed, false, nil
	}
	plain, err := s.DecryptBytes(sealed)
	if err != nil {
		return nil, false, err
	}
	out, err := s.EncryptBytes(plain)
	return out, err == nil, err
}

// BlindIndex HMAC-SHA256，只做等值查找，不可逆
func (s *Service) BlindIndex(parts ...string) string {
	m := hmac.New(sha256.New, s.indexKey)
	for i, p := range parts {
		if i > 0 {
			m.Write([]byte{0})
		}
		m.Write([]byte(p))
	}
	return hex.EncodeToString(m.Sum(nil))
}

func (s *Service) Hash(secret string) (string, error) { return utils.HashPassword(secret) }

func (s *Service) Matches(secret, digest string) bool { return utils.CheckPassword(secret, digest) }
