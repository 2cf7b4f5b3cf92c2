// Package signer формирует и проверяет подписи обновлений репутации.
package signer

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"

	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

const (
	// SignatureLength: r||s||v.
	SignatureLength = 65
	// PreimageLength: address(20) + uint16×3 + uint256.
	PreimageLength = 20 + 2*3 + 32

	recoveryOffset = 27
)

// Update это подписываемые поля обновления репутации.
type Update struct {
	User            common.Address
	Quality         uint16
	Reliability     uint16
	Professionalism uint16
}

// HourBucket это номер часа, к которому привязана подпись.
func HourBucket(at time.Time) uint64 {
	return uint64(at.Unix()) / 3600
}

// Preimage собирает упакованное сообщение: адрес, три uint16 big-endian и номер часа как uint256.
func Preimage(u Update, hour uint64) []byte {
	buf := make([]byte, PreimageLength)
	copy(buf[0:20], u.User.Bytes())
	binary.BigEndian.PutUint16(buf[20:22], u.Quality)
	binary.BigEndian.PutUint16(buf[22:24], u.Reliability)
	binary.BigEndian.PutUint16(buf[24:26], u.Professionalism)
	new(big.Int).SetUint64(hour).FillBytes(buf[26:58])
	return buf
}

// Digest это keccak256 упакованного сообщения.
func Digest(u Update, hour uint64) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(Preimage(u, hour))
	return h.Sum(nil)
}

// SignedHash это дайджест с префиксом "\x19Ethereum Signed Message:\n32".
func SignedHash(u Update, hour uint64) []byte {
	return accounts.TextHash(Digest(u, hour))
}

// Sign подписывает обновление ключом провайдера. v возвращается в форме 27/28.
func Sign(key *ecdsa.PrivateKey, u Update, at time.Time) ([]byte, error) {
	sig, err := crypto.Sign(SignedHash(u, HourBucket(at)), key)
	if err != nil {
		return nil, fmt.Errorf("signer: подпись: %w", err)
	}
	sig[64] += recoveryOffset
	return sig, nil
}

// Recover восстанавливает адрес подписавшего для часа at.
func Recover(u Update, at time.Time, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, invalid("неверная длина подписи").With("length", len(signature))
	}
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= recoveryOffset {
		sig[64] -= recoveryOffset
	}
	if sig[64] > 1 {
		return common.Address{}, invalid("неверный байт восстановления").With("v", signature[64])
	}

	pub, err := crypto.SigToPub(SignedHash(u, HourBucket(at)), sig)
	if err != nil {
		return common.Address{}, invalid("подпись не восстанавливается")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verifier проверяет подписи против списка разрешённых адресов.
type Verifier struct {
	allowed func(common.Address) bool
}

func NewVerifier(allowed func(common.Address) bool) *Verifier {
	return &Verifier{allowed: allowed}
}

// Verify возвращает адрес подписавшего, если он разрешён.
func (v *Verifier) Verify(u Update, at time.Time, signature []byte) (common.Address, error) {
	addr, err := Recover(u, at, signature)
	if err != nil {
		return common.Address{}, err
	}
	if !v.allowed(addr) {
		return common.Address{}, invalid("подписант не входит в список провайдеров").With("signer", addr.Hex())
	}
	return addr, nil
}

func invalid(message string) *apperror.AppError {
	return apperror.Reject(apperror.KindInvalidSignature, message)
}
