package model

type MarketplaceStats struct {
	TasksByStatus       map[TaskStatus]int64
	OffersByStatus      map[OfferStatus]int64
	ConversionsByState  map[ConversionState]int64
	PendingDispositions int64
	Jobs                int64
}

func NewMarketplaceStats() MarketplaceStats {
	return MarketplaceStats{
		TasksByStatus:      make(map[TaskStatus]int64),
		OffersByStatus:     make(map[OfferStatus]int64),
		ConversionsByState: make(map[ConversionState]int64),
	}
}
