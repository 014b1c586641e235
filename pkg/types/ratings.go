package types

import "github.com/shopspring/decimal"

// Ratings is the aggregate of approved reviews stored on a product.
type Ratings struct {
	Average float64 `json:"average" gorm:"column:average;not null;default:0"`
	Count   int     `json:"count" gorm:"column:count;not null;default:0"`
}

// ComputeRatings averages the given scores rounded half-up to one decimal place.
func ComputeRatings(scores []int) Ratings {
	if len(scores) == 0 {
		return Ratings{}
	}
	sum := int64(0)
	for _, s := range scores {
		sum += int64(s)
	}
	mean := decimal.NewFromInt(sum).Div(decimal.NewFromInt(int64(len(scores))))
	return Ratings{
		Average: mean.Round(1).InexactFloat64(),
		Count:   len(scores),
	}
}
