package models

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "Paid"
	PaymentStatusUnpaid PaymentStatus = "Unpaid"
)

func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusPaid || s == PaymentStatusUnpaid
}

type TransferStatus string

const (
	TransferStatusRequested TransferStatus = "Requested"
	TransferStatusReceived  TransferStatus = "Received"
)

// IsFulfilled reports the only distinction the source side renders:
// Received is terminal, everything else is still in flight.
func (s TransferStatus) IsFulfilled() bool {
	return s == TransferStatusReceived
}

type RecommendationMode string

const (
	RecommendationModeAll        RecommendationMode = "all"
	RecommendationModeLowStock   RecommendationMode = "low_stock"
	RecommendationModeFastMovers RecommendationMode = "fast_movers"
)

func (m RecommendationMode) IsValid() bool {
	switch m {
	case RecommendationModeAll, RecommendationModeLowStock, RecommendationModeFastMovers:
		return true
	}
	return false
}

type ReasonCode string

const (
	ReasonCodeLowStock     ReasonCode = "low_stock"
	ReasonCodeFastMover    ReasonCode = "fast_mover"
	ReasonCodeStockoutRisk ReasonCode = "stockout_risk"
)
