package intake

import (
	"context"

	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/pkg/enums"
	"github.com/shopspring/decimal"
)

type sampleProduct struct {
	name     string
	category string
	unit     string
	cents    int64
}

var sampleStores = []string{
	"Aldi Downtown",
	"Lidl Riverside",
	"Tesco Express",
	"Whole Foods Market",
	"Costco Northgate",
	"Trader Joe's",
	"Kroger Midtown",
}

var sampleProducts = []sampleProduct{
	{"Bread", "Bakery", "loaf", 249},
	{"Milk", "Dairy", "l", 119},
	{"Eggs", "Dairy", "dozen", 329},
	{"Bananas", "Produce", "kg", 159},
	{"Rice", "Pantry", "kg", 289},
	{"Coffee", "Beverages", "bag", 899},
	{"Chicken Breast", "Meat", "kg", 1099},
	{"Tomatoes", "Produce", "kg", 349},
	{"Olive Oil", "Pantry", "bottle", 749},
	{"Yogurt", "Dairy", "tub", 189},
}

// SimulateCSV stands in for a parsed receipt CSV: it queues a random number
// of single-store groups, between the configured bounds, filled with sample
// products. It returns the number of groups queued.
func (s *Service) SimulateCSV(ctx context.Context) int {
	s.engine.SetChannel(ctx, enums.UploadChannelCSV)

	span := s.cfg.CSVMaxGroups - s.cfg.CSVMinGroups + 1
	count := s.cfg.CSVMinGroups + s.intN(span)
	offset := s.intN(len(sampleStores))

	queued := 0
	for i := 0; i < count; i++ {
		store := sampleStores[(offset+i)%len(sampleStores)]
		if s.engine.AddGroup(ctx, s.sampleGroup(store)) {
			queued++
		}
	}
	s.logIntake(ctx, enums.UploadChannelCSV, queued, nil)
	return queued
}

func (s *Service) sampleGroup(store string) []receipts.Receipt {
	size := 1 + s.intN(4)
	start := s.intN(len(sampleProducts))
	group := make([]receipts.Receipt, 0, size)
	for i := 0; i < size; i++ {
		p := sampleProducts[(start+i)%len(sampleProducts)]
		qty := 1 + s.intN(3)
		unitPrice := decimal.New(p.cents, -2)
		group = append(group, receipts.New(receipts.Draft{
			StoreBranch: store,
			Category:    p.category,
			ProductName: p.name,
			UnitPrice:   unitPrice,
			Quantity:    qty,
			SubTotal:    unitPrice.Mul(decimal.NewFromInt(int64(qty))),
			Unit:        p.unit,
		}))
	}
	return group
}
