package ib

import "fmt"

// Security types.
const (
	SecTypeStock  = "STK"
	SecTypeOption = "OPT"
	SecTypeFuture = "FUT"
	SecTypeIndex  = "IND"
	SecTypeForex  = "CASH"
)

// CurrencyUSD is the currency of contracts built by the convenience constructors.
const CurrencyUSD = "USD"

// Contract describes a tradable instrument.
type Contract struct {
	ConID           int64  `json:"con_id,omitempty" cbor:"con_id,omitempty"`
	Symbol          string `json:"symbol" cbor:"symbol"`
	SecType         string `json:"sec_type" cbor:"sec_type"`
	Currency        string `json:"currency,omitempty" cbor:"currency,omitempty"`
	Exchange        string `json:"exchange,omitempty" cbor:"exchange,omitempty"`
	PrimaryExchange string `json:"primary_exchange,omitempty" cbor:"primary_exchange,omitempty"`
}

// String renders symbol/type/currency/exchange/primary.
func (c Contract) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", c.Symbol, c.SecType, c.Currency, c.Exchange, c.PrimaryExchange)
}

// ContractDescription is one match of a symbol search.
type ContractDescription struct {
	Contract           Contract `json:"contract" cbor:"contract"`
	DerivativeSecTypes []string `json:"derivative_sec_types,omitempty" cbor:"derivative_sec_types,omitempty"`
}
