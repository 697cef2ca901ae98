package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/angelmondragon/receiptflow/internal/engine"
	"github.com/angelmondragon/receiptflow/internal/intake"
	"github.com/angelmondragon/receiptflow/internal/receipts"
	"github.com/angelmondragon/receiptflow/internal/transactions"
	"github.com/angelmondragon/receiptflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/receiptflow/pkg/errors"
	"github.com/angelmondragon/receiptflow/pkg/logger"
	"github.com/angelmondragon/receiptflow/pkg/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// RunOptions tunes the read-only steps.
type RunOptions struct {
	HistoryLimit   int
	HistoryCursor  string
	HistoryChannel string
}

type RunnerParams struct {
	Engine  *engine.Engine
	Intake  *intake.Service
	Logger  *logger.Logger
	Out     io.Writer
	Options RunOptions
	// Now defaults to time.Now.
	Now func() time.Time
	// Open defaults to os.Open.
	Open func(path string) (io.ReadCloser, error)
}

// Runner executes CLI steps in order against one engine.
type Runner struct {
	engine *engine.Engine
	intake *intake.Service
	logg   *logger.Logger
	out    io.Writer
	opts   RunOptions
	now    func() time.Time
	open   func(path string) (io.ReadCloser, error)
}

func NewRunner(p RunnerParams) (*Runner, error) {
	if p.Engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if p.Intake == nil {
		return nil, fmt.Errorf("intake service required")
	}
	if p.Out == nil {
		return nil, fmt.Errorf("output writer required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	open := p.Open
	if open == nil {
		open = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}
	return &Runner{
		engine: p.Engine,
		intake: p.Intake,
		logg:   logg,
		out:    p.Out,
		opts:   p.Options,
		now:    now,
		open:   open,
	}, nil
}

// Run executes args as a sequence of steps and stops at the first step that
// fails outright. Partially rejected imports are reported and do not stop
// the run.
func (r *Runner) Run(ctx context.Context, args []string) error {
	for len(args) > 0 {
		step := args[0]
		args = args[1:]
		r.logg.Debug(r.logg.WithField(ctx, "step", step), "running step")

		var err error
		switch step {
		case "import":
			if len(args) < 1 {
				return fmt.Errorf("import needs a file path")
			}
			err = r.importCSV(ctx, args[0])
			args = args[1:]
		case "simulate":
			n := r.intake.SimulateCSV(ctx)
			fmt.Fprintf(r.out, "queued %d simulated groups\n", n)
		case "add":
			if len(args) < 4 {
				return fmt.Errorf("add needs <store> <product> <qty> <subtotal>")
			}
			err = r.add(ctx, args[:4])
			args = args[4:]
		case "rename":
			if len(args) < 2 {
				return fmt.Errorf("rename needs <old> <new>")
			}
			if r.engine.RenameBranch(ctx, args[0], args[1]) {
				fmt.Fprintf(r.out, "renamed %q to %q\n", args[0], args[1])
			} else {
				fmt.Fprintf(r.out, "no receipts at %q\n", args[0])
			}
			args = args[2:]
		case "review":
			err = r.review(ctx)
		case "exit":
			r.exit(ctx)
		case "wishlist":
			r.printWishlist()
		case "submit":
			items := r.engine.Submit(ctx)
			fmt.Fprintf(r.out, "materialized %d transactions\n", len(items))
		case "history":
			err = r.printHistory()
		case "reset":
			r.engine.Reset(ctx)
			fmt.Fprintln(r.out, "all receipt data removed")
		default:
			return fmt.Errorf("unknown step %q", step)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}
	return nil
}

func (r *Runner) importCSV(ctx context.Context, path string) error {
	f, err := r.open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := r.intake.ImportCSV(ctx, f)
	if pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		return err
	}
	fmt.Fprintf(r.out, "read %d rows, queued %d groups, rejected %d rows\n", res.Rows, res.Groups, res.Rejected)
	if err != nil && res.Rows == 0 {
		return err
	}
	for _, rowErr := range multierr.Errors(err) {
		fmt.Fprintf(r.out, "  rejected: %v\n", rowErr)
	}
	return nil
}

func (r *Runner) add(ctx context.Context, args []string) error {
	qty, err := strconv.Atoi(args[2])
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quantity")
	}
	subTotal, err := decimal.NewFromString(args[3])
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid sub total")
	}
	res, err := r.intake.Form(ctx, receipts.Draft{
		StoreBranch: args[0],
		ProductName: args[1],
		Quantity:    qty,
		SubTotal:    subTotal,
	})
	if err != nil {
		return err
	}
	if res.Duplicate() {
		fmt.Fprintf(r.out, "%q is already listed for %q\n", args[1], args[0])
		return nil
	}
	fmt.Fprintf(r.out, "added %q to %s\n", args[1], res.Destination)
	return nil
}

// review confirms groups until the session completes.
func (r *Runner) review(ctx context.Context) error {
	start := r.engine.StartReview(ctx)
	if start.Source == engine.SourceNone {
		fmt.Fprintln(r.out, "nothing to review")
		return nil
	}
	for {
		progress := r.engine.Progress()
		fmt.Fprintf(r.out, "%s reviewing %d receipts\n", progress, r.engine.Ledger().Len())
		res, err := r.engine.Promote(ctx, r.now().UTC(), "")
		if err != nil {
			return err
		}
		if res.Complete {
			fmt.Fprintf(r.out, "review complete, wishlist holds %d entries\n", r.engine.Wishlist().Len())
			return nil
		}
	}
}

func (r *Runner) exit(ctx context.Context) {
	decision := r.engine.RequestExit()
	if decision.NeedsConfirmation {
		fmt.Fprintf(r.out, "discarding %d queued groups\n", decision.PendingGroups)
	}
	r.engine.ConfirmExit(ctx)
}

func (r *Runner) printWishlist() {
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDATE\tCHANNEL\tSTORE\tITEMS\tSUBTOTAL")
	for i, entry := range r.engine.Wishlist().Entries() {
		store := ""
		if len(entry.Receipts) > 0 {
			store = entry.Receipts[0].StoreBranch
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			i, entry.Date.Format(time.DateOnly), entry.UploadChannel, store,
			len(entry.Receipts), receipts.SubTotal(entry.Receipts).StringFixed(2))
	}
	tw.Flush()
}

func (r *Runner) printHistory() error {
	opts := transactions.FilterOptions{}
	if r.opts.HistoryChannel != "" {
		ch, err := enums.ParseUploadChannel(r.opts.HistoryChannel)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid channel filter")
		}
		opts.Channel = ch
	}
	items := transactions.SortByDate(transactions.Filter(r.engine.Transactions().List(), opts), true)
	page, err := transactions.Paginate(items, pagination.Params{
		Limit:  r.opts.HistoryLimit,
		Cursor: r.opts.HistoryCursor,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tDATE\tSTORE\tSUBTOTAL\tSTATUS\tCHANNEL")
	for _, item := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.OrderID, item.NewDate.Format(time.DateOnly), item.StoreName,
			item.SubTotal, item.OrderStatus, item.UploadChannel)
	}
	tw.Flush()
	if page.NextCursor != "" {
		fmt.Fprintf(r.out, "next cursor: %s\n", page.NextCursor)
	}
	return nil
}
