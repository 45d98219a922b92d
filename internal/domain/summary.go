package domain

import "github.com/shopspring/decimal"

type SummaryItem struct {
	TotalRequests int64           `json:"totalRequests"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

type Summary struct {
	Default  SummaryItem `json:"default"`
	Fallback SummaryItem `json:"fallback"`
}

func (s *Summary) Item(p Processor) *SummaryItem {
	if p == ProcessorFallback {
		return &s.Fallback
	}
	return &s.Default
}
