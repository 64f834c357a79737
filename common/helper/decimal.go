package helper

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// 金额格式：非负，最多两位小数
var moneyRe = regexp.MustCompile(`^(?:0|[1-9]\d*)(?:\.\d{1,2})?$`)

var ErrMoneyFormat = errors.New("invalid money format")

// TrimDecimal 四舍五入到 2 位小数输出
func TrimDecimal(val decimal.Decimal) string {
	return val.StringFixed(2)
}

// ParseMoney 解析非负金额字符串（最多两位小数）
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !moneyRe.MatchString(s) {
		return decimal.Zero, ErrMoneyFormat
	}
	return decimal.NewFromString(s)
}

// ParseSignedMoney 同 ParseMoney，允许前导负号（后台调账使用）
func ParseSignedMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		d, err := ParseMoney(s[1:])
		if err != nil {
			return decimal.Zero, err
		}
		return d.Neg(), nil
	}
	return ParseMoney(s)
}
