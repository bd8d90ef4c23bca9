package app

import (
	"strings"
	"unicode"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// money formats amounts in a tenant currency with locale grouping and the
// currency's standard number of decimals.
type money struct {
	printer *message.Printer
	symbol  string
	scale   int
}

func newMoney(code string) money {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "USD"
	}
	m := money{printer: message.NewPrinter(language.English), symbol: code + " ", scale: 2}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return m
	}
	m.scale, _ = currency.Standard.Rounding(unit)
	symbol := m.printer.Sprint(currency.Symbol(unit))
	if last := []rune(symbol); len(last) > 0 && unicode.IsLetter(last[len(last)-1]) {
		symbol += " "
	}
	m.symbol = symbol
	return m
}

func (m money) format(amount float64) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	return sign + m.symbol + m.printer.Sprint(number.Decimal(amount, number.Scale(m.scale)))
}

func (m money) count(n int64) string {
	return m.printer.Sprintf("%d", n)
}
