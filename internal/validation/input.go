package validation

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ignatzorin/bounty-escrow/internal/domain/valueobject"
	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

// Константы валидации
const (
	MaxHashLength          = 130
	MaxJustificationLength = 500
	MaxPauseReasonLength   = 200
	SignatureLength        = 65
	MaxReviewPeriodHours   = 30 * 24
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return invalid(fieldName, fmt.Sprintf("%s должен быть не менее %d символов", fieldName, min))
	}
	if max > 0 && length > max {
		return invalid(fieldName, fmt.Sprintf("%s должен быть не более %d символов", fieldName, max))
	}
	return nil
}

// ValidateHash проверяет ссылку на внешнее содержимое: 0x и непустой hex.
func ValidateHash(fieldName, value string, required bool) error {
	if value == "" {
		if required {
			return invalid(fieldName, fieldName+" обязателен")
		}
		return nil
	}
	if len(value) > MaxHashLength || !strings.HasPrefix(value, "0x") || len(value) == 2 {
		return invalid(fieldName, fieldName+" должен быть hex строкой с префиксом 0x")
	}
	if _, err := hex.DecodeString(evenHex(value[2:])); err != nil {
		return invalid(fieldName, fieldName+" должен быть hex строкой с префиксом 0x")
	}
	return nil
}

// ParseAddress разбирает hex адрес.
func ParseAddress(fieldName, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, apperror.Reject(apperror.KindInvalidAddress, "некорректный адрес").With("field", fieldName)
	}
	return common.HexToAddress(value), nil
}

// ParseAmount разбирает десятичную сумму в нативных единицах и возвращает wei.
func ParseAmount(fieldName, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, invalid(fieldName, fieldName+" обязателен")
	}
	wei, err := valueobject.ParseEther(value)
	if err != nil {
		if appErr, ok := err.(*apperror.AppError); ok {
			return nil, appErr.With("field", fieldName)
		}
		return nil, err
	}
	return wei, nil
}

// ParseSignature разбирает 65-байтовую подпись в hex.
func ParseSignature(value string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil || len(sig) != SignatureLength {
		return nil, apperror.Reject(apperror.KindInvalidSignature, "подпись должна быть 65 байт в hex").
			With("length", len(sig))
	}
	return sig, nil
}

func evenHex(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

func invalid(field, message string) error {
	return apperror.Reject(apperror.KindInvalidInput, message).With("field", field)
}
