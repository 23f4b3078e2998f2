package domain

// Instrument carries the exchange-defined sizing metadata for a security.
type Instrument struct {
	SecurityID      string
	ExchangeSegment string
	TradingSymbol   string
	LotSize         int64
	TickSize        float64
	IsOption        bool
	OptionExpiry    string
	StrikePrice     float64
}
