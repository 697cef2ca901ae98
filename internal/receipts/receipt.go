package receipts

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Draft is a receipt line as produced by an intake channel, before it has an id.
type Draft struct {
	StoreBranch string          `json:"storeBranch" validate:"required"`
	Category    string          `json:"category"`
	ProductName string          `json:"productName" validate:"required"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	Quantity    int             `json:"quantity" validate:"min=1"`
	SubTotal    decimal.Decimal `json:"subTotal" validate:"gte=0"`
	Unit        string          `json:"unit"`
}

// Receipt is a single purchased line item.
type Receipt struct {
	ReceiptID   string          `json:"receiptId"`
	StoreBranch string          `json:"storeBranch"`
	Category    string          `json:"category"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	SubTotal    decimal.Decimal `json:"subTotal"`
	Unit        string          `json:"unit"`
}

// Group is an ordered list of receipts that share one store branch.
type Group []Receipt

// Key identifies a product within a store for duplicate detection.
type Key struct {
	Product string
	Branch  string
}

// DedupKey normalizes a product name and store branch into a Key.
func DedupKey(productName, storeBranch string) Key {
	return Key{
		Product: strings.ToLower(strings.TrimSpace(productName)),
		Branch:  strings.ToLower(strings.TrimSpace(storeBranch)),
	}
}

func (d Draft) Key() Key {
	return DedupKey(d.ProductName, d.StoreBranch)
}

func (r Receipt) Key() Key {
	return DedupKey(r.ProductName, r.StoreBranch)
}

// WithID turns the draft into a receipt carrying id.
func (d Draft) WithID(id string) Receipt {
	return Receipt{
		ReceiptID:   id,
		StoreBranch: d.StoreBranch,
		Category:    d.Category,
		ProductName: d.ProductName,
		UnitPrice:   d.UnitPrice,
		Quantity:    d.Quantity,
		SubTotal:    d.SubTotal,
		Unit:        d.Unit,
	}
}

// New assigns a fresh id to d.
func New(d Draft) Receipt {
	return d.WithID(NewID())
}

// Draft drops the id from r.
func (r Receipt) Draft() Draft {
	return Draft{
		StoreBranch: r.StoreBranch,
		Category:    r.Category,
		ProductName: r.ProductName,
		UnitPrice:   r.UnitPrice,
		Quantity:    r.Quantity,
		SubTotal:    r.SubTotal,
		Unit:        r.Unit,
	}
}

var newUUID = uuid.NewRandom

// NewID returns a random UUID, falling back to a timestamp plus random
// suffix when the system entropy source fails.
func NewID() string {
	id, err := newUUID()
	if err == nil {
		return id.String()
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), strconv.FormatUint(rand.Uint64(), 36))
}

// Clone copies receipts so the result shares no backing array with the input.
func Clone(receipts []Receipt) []Receipt {
	if receipts == nil {
		return nil
	}
	out := make([]Receipt, len(receipts))
	copy(out, receipts)
	return out
}

// CloneWithFreshIDs copies receipts and gives every copy a new id.
func CloneWithFreshIDs(receipts []Receipt) []Receipt {
	out := make([]Receipt, 0, len(receipts))
	for _, r := range receipts {
		r.ReceiptID = NewID()
		out = append(out, r)
	}
	return out
}

// RenameBranch returns a copy of receipts with every receipt at oldName
// moved to newName, and whether anything changed.
func RenameBranch(receipts []Receipt, oldName, newName string) ([]Receipt, bool) {
	if oldName == newName {
		return receipts, false
	}
	var out []Receipt
	for i, r := range receipts {
		if r.StoreBranch != oldName {
			continue
		}
		if out == nil {
			out = Clone(receipts)
		}
		out[i].StoreBranch = newName
	}
	if out == nil {
		return receipts, false
	}
	return out, true
}

// ContainsBranch reports whether any receipt belongs to storeBranch.
func ContainsBranch(receipts []Receipt, storeBranch string) bool {
	for _, r := range receipts {
		if r.StoreBranch == storeBranch {
			return true
		}
	}
	return false
}

// SubTotal sums the entered sub totals of receipts.
func SubTotal(receipts []Receipt) decimal.Decimal {
	total := decimal.Zero
	for _, r := range receipts {
		total = total.Add(r.SubTotal)
	}
	return total
}
