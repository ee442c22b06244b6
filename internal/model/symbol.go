package model

// closedSymbols is the exact fifteen-pair set trading is permitted against
// (spec §7, "Closed set of trading symbols"). XAUUSD is deliberately absent
// and rejected even though it would otherwise satisfy the length/case rules.
var closedSymbols = map[string]bool{
	"EURUSD": true,
	"GBPUSD": true,
	"USDJPY": true,
	"USDCAD": true,
	"AUDUSD": true,
	"USDCHF": true,
	"NZDUSD": true,
	"EURGBP": true,
	"EURJPY": true,
	"GBPJPY": true,
	"GBPNZD": true,
	"GBPAUD": true,
	"EURAUD": true,
	"GBPCHF": true,
	"AUDJPY": true,
}

// ForbiddenSymbol is XAUUSD: explicitly excluded from the closed set and
// checked independently of it, per spec §7.
const ForbiddenSymbol = "XAUUSD"

// ValidSymbol reports whether symbol (expected already uppercased) is one
// of the fifteen tradeable pairs. XAUUSD returns false like any other
// symbol outside the closed set; callers that need to distinguish "unknown"
// from "explicitly forbidden" for error messaging should check
// symbol == ForbiddenSymbol separately.
func ValidSymbol(symbol string) bool {
	return closedSymbols[symbol]
}
