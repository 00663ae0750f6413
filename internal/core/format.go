package core

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	usdPrinter = message.NewPrinter(language.AmericanEnglish)
	vesPrinter = message.NewPrinter(language.Spanish)
)

// FormatUSD renders m as a dollar amount, e.g. "$1,234.50".
func FormatUSD(m Money) string {
	if m.IsNegative() {
		return "-" + usdPrinter.Sprintf("$%.2f", m.amount.Neg().InexactFloat64())
	}
	return usdPrinter.Sprintf("$%.2f", m.Float64())
}

// FormatBs renders m as a bolívar amount with Spanish separators.
func FormatBs(m Money) string {
	return vesPrinter.Sprintf("Bs. %.2f", m.Float64())
}
