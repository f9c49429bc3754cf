package analyst

// sectorMap assigns large-cap symbols to GICS-style sectors for exposure
// accounting and prompt context.
var sectorMap = map[string]string{
	"AAPL": "Technology", "MSFT": "Technology", "GOOGL": "Technology",
	"AMZN": "Consumer Discretionary", "NVDA": "Technology", "META": "Technology",
	"TSLA": "Consumer Discretionary", "JPM": "Financials", "V": "Financials",
	"UNH": "Healthcare", "JNJ": "Healthcare", "PG": "Consumer Staples",
	"XOM": "Energy", "CVX": "Energy", "HD": "Consumer Discretionary",
	"MA": "Financials", "BAC": "Financials", "ABBV": "Healthcare",
	"PFE": "Healthcare", "KO": "Consumer Staples", "PEP": "Consumer Staples",
	"COST": "Consumer Staples", "WMT": "Consumer Staples", "CRM": "Technology",
	"AMD": "Technology", "INTC": "Technology", "NFLX": "Technology",
	"DIS": "Communication Services", "CMCSA": "Communication Services",
	"T": "Communication Services", "VZ": "Communication Services",
	"LLY": "Healthcare", "MRK": "Healthcare", "TMO": "Healthcare",
	"AVGO": "Technology", "QCOM": "Technology", "ORCL": "Technology",
	"ADBE": "Technology", "TXN": "Technology", "GS": "Financials",
	"MS": "Financials", "C": "Financials", "BLK": "Financials",
	"NEE": "Utilities", "SO": "Utilities", "DUK": "Utilities",
	"SPY": "Index", "QQQ": "Index", "IWM": "Index", "DIA": "Index",
}

// Sector returns the sector for a symbol, "Unknown" when unmapped.
func Sector(symbol string) string {
	if s, ok := sectorMap[symbol]; ok {
		return s
	}
	return "Unknown"
}
