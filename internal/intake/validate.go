package intake

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/angelmondragon/receiptflow/internal/receipts"
	pkgerrors "github.com/angelmondragon/receiptflow/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// normalize trims text fields and fills in whichever of unit price and sub
// total is missing from the other.
func normalize(d receipts.Draft) receipts.Draft {
	d.StoreBranch = strings.TrimSpace(d.StoreBranch)
	d.Category = strings.TrimSpace(d.Category)
	d.ProductName = strings.TrimSpace(d.ProductName)
	d.Unit = strings.TrimSpace(d.Unit)
	if d.Quantity <= 0 {
		return d
	}
	qty := decimal.NewFromInt(int64(d.Quantity))
	switch {
	case d.UnitPrice.IsZero() && !d.SubTotal.IsZero():
		d.UnitPrice = d.SubTotal.Div(qty).Round(2)
	case d.SubTotal.IsZero() && !d.UnitPrice.IsZero():
		d.SubTotal = d.UnitPrice.Mul(qty)
	}
	return d
}

// checkDraft normalizes d and validates the result.
func checkDraft(d receipts.Draft) (receipts.Draft, error) {
	d = normalize(d)
	if err := validate.Struct(d); err != nil {
		return d, formatValidationErrors(err)
	}
	return d, nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must not be below %s", fe.Param())
	}
	return "is invalid"
}
