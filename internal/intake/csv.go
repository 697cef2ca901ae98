package intake

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/receiptflow/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

const (
	colStoreBranch = "storebranch"
	colCategory    = "category"
	colProductName = "productname"
	colUnitPrice   = "unitprice"
	colQuantity    = "quantity"
	colSubTotal    = "subtotal"
	colUnit        = "unit"
)

var requiredColumns = []string{colStoreBranch, colProductName}

// ImportResult summarises a CSV import.
type ImportResult struct {
	Rows     int
	Rejected int
	Groups   int
}

// ImportCSV reads receipts from a CSV file with a header row and queues one
// group per store branch, in order of first appearance. Header names are
// matched ignoring case, spaces and underscores; unknown columns are
// skipped. Rows that fail to parse or validate are reported together while
// the valid rows still queue. An empty quantity counts as one. A failing
// reader aborts the import before anything is queued.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	s.engine.SetChannel(ctx, enums.UploadChannelCSV)

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, pkgerrors.New(pkgerrors.CodeValidation, "csv file is empty")
		}
		return ImportResult{}, readError(err, "read csv header")
	}
	columns := indexColumns(header)
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return ImportResult{}, pkgerrors.New(pkgerrors.CodeValidation, "csv header is missing a column").
				WithDetails(map[string]string{"column": name})
		}
	}

	var (
		result ImportResult
		valid  []receipts.Receipt
		errs   error
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				err = readError(err, "read csv")
				s.logg.Error(s.logg.WithChannel(ctx, enums.UploadChannelCSV.String()), "csv import aborted", err)
				return result, err
			}
			result.Rows++
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		result.Rows++
		d, err := parseRow(columns, record)
		if err == nil {
			d, err = checkDraft(d)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		valid = append(valid, receipts.New(d))
	}
	result.Rejected = len(multierr.Errors(errs))

	for _, g := range receipts.PartitionByBranch(valid) {
		if s.engine.AddGroup(ctx, g.Receipts) {
			result.Groups++
		}
	}
	s.logIntake(ctx, enums.UploadChannelCSV, result.Groups, errs)
	return result, errs
}

// readError classifies a reader failure. Malformed CSV is the caller's
// fault; anything else means the source itself failed.
func readError(err error, msg string) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
		key = strings.TrimPrefix(key, "\ufeff")
		if _, seen := columns[key]; !seen {
			columns[key] = i
		}
	}
	return columns
}

func parseRow(columns map[string]int, record []string) (receipts.Draft, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	d := receipts.Draft{
		StoreBranch: field(colStoreBranch),
		Category:    field(colCategory),
		ProductName: field(colProductName),
		Unit:        field(colUnit),
		Quantity:    1,
	}
	if raw := field(colQuantity); raw != "" {
		qty, err := strconv.Atoi(raw)
		if err != nil {
			return d, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quantity")
		}
		d.Quantity = qty
	}
	var err error
	if d.UnitPrice, err = parseMoney(field(colUnitPrice)); err != nil {
		return d, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit price")
	}
	if d.SubTotal, err = parseMoney(field(colSubTotal)); err != nil {
		return d, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sub total")
	}
	return d, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "$")
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
