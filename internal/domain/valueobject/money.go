package valueobject

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/bounty-escrow/internal/pkg/apperror"
)

const (
	weiDecimals = 18
	// BasisPoints это знаменатель для комиссии в базисных пунктах.
	BasisPoints = 10000
	// MaxFeeBps это потолок комиссии платформы (10%).
	MaxFeeBps = 1000
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(weiDecimals), nil)

// MinEscrow это минимальная сумма депозита задачи (0.01 в нативной единице).
var MinEscrow = new(big.Int).Div(weiPerEther, big.NewInt(100))

// Ether возвращает n целых нативных единиц в wei.
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), weiPerEther)
}

// ParseEther разбирает десятичную строку ("1.5") в wei.
func ParseEther(value string) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, apperror.Reject(apperror.KindInvalidInput, "некорректная сумма").With("value", value)
	}
	if d.IsNegative() {
		return nil, apperror.Reject(apperror.KindInvalidInput, "сумма не может быть отрицательной").With("value", value)
	}
	wei := d.Shift(weiDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, apperror.Reject(apperror.KindInvalidInput, "точность суммы превышает 18 знаков").With("value", value)
	}
	return wei.BigInt(), nil
}

// FormatEther печатает wei как десятичное число в нативных единицах.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -weiDecimals).String()
}

// FeeOf считает amount * bps / 10000 с округлением вниз.
func FeeOf(amount *big.Int, bps uint16) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(BasisPoints))
}

// PercentOf считает amount * pct / 100 с округлением вниз.
func PercentOf(amount *big.Int, pct uint8) *big.Int {
	part := new(big.Int).Mul(amount, big.NewInt(int64(pct)))
	return part.Div(part, big.NewInt(100))
}

// Zero возвращает новый нулевой big.Int.
func Zero() *big.Int {
	return new(big.Int)
}

// CopyAmount возвращает независимую копию суммы. nil превращается в ноль.
func CopyAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
