package transactions

import (
	"sort"
	"time"

	"github.com/angelmondragon/receiptflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/receiptflow/pkg/errors"
	"github.com/angelmondragon/receiptflow/pkg/pagination"
)

// FilterOptions narrows a history listing. Zero values match everything;
// From and To are inclusive.
type FilterOptions struct {
	From    time.Time
	To      time.Time
	Channel enums.UploadChannel
}

// Filter returns the items matching opts, keeping their order.
func Filter(items []TransactionItem, opts FilterOptions) []TransactionItem {
	out := make([]TransactionItem, 0, len(items))
	for _, item := range items {
		if !opts.From.IsZero() && item.NewDate.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && item.NewDate.After(opts.To) {
			continue
		}
		if opts.Channel != "" && item.UploadChannel != opts.Channel {
			continue
		}
		out = append(out, cloneItem(item))
	}
	return out
}

// SortByDate returns a copy of items ordered by NewDate. Ties keep their
// insertion order.
func SortByDate(items []TransactionItem, descending bool) []TransactionItem {
	out := cloneItems(items)
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].NewDate.After(out[j].NewDate)
		}
		return out[i].NewDate.Before(out[j].NewDate)
	})
	return out
}

// Page is one slice of a history listing.
type Page struct {
	Items      []TransactionItem
	NextCursor string
}

// Paginate slices items using a cursor produced by a previous call. The
// cursor records the date of the last item served so a listing that changed
// underneath it is rejected rather than silently skipped.
func Paginate(items []TransactionItem, params pagination.Params) (Page, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	start := 0
	if cursor != nil {
		start = cursor.Offset
		if start == 0 || start > len(items) || !items[start-1].NewDate.Equal(cursor.Date) {
			return Page{}, pkgerrors.New(pkgerrors.CodeValidation, "cursor does not match the listing")
		}
	}

	end := min(start+limit, len(items))
	page := Page{Items: cloneItems(items[start:end])}
	if end < len(items) {
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			Date:   items[end-1].NewDate,
			Offset: end,
		})
	}
	return page, nil
}
