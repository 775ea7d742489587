package domain

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/schema"
)

// MoneyScale is the number of fractional digits kept for amounts and balances
const MoneyScale = 2

// MaxAmount bounds a single amount: 13 integer digits at MoneyScale
var MaxAmount = decimal.New(1, 13)

// ValidAmount reports whether amount is strictly positive, below MaxAmount and fits the money scale
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.LessThan(MaxAmount) && amount.Equal(amount.Round(MoneyScale))
}

// ToMinor converts an amount to integer minor units (cents)
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(MoneyScale).Round(0).IntPart()
}

// FromMinor converts integer minor units back to an amount
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -MoneyScale)
}

// MinorUnits stores a decimal.Decimal field as a BIGINT count of minor units, so
// balance arithmetic in SQL stays in integers on every driver.
type MinorUnits struct{}

func init() {
	schema.RegisterSerializer("minor", MinorUnits{})
}

// Scan reads a BIGINT column into a decimal field
func (MinorUnits) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue any) error {
	var minor int64
	switch v := dbValue.(type) {
	case nil:
	case int64:
		minor = v
	case int32:
		minor = int64(v)
	case int:
		minor = int64(v)
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("scan %s: %w", field.Name, err)
		}
		minor = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("scan %s: %w", field.Name, err)
		}
		minor = n
	default:
		return fmt.Errorf("scan %s: unsupported minor units value %T", field.Name, dbValue)
	}
	field.ReflectValueOf(ctx, dst).Set(reflect.ValueOf(FromMinor(minor)))
	return nil
}

// Value writes a decimal field as minor units
func (MinorUnits) Value(_ context.Context, field *schema.Field, _ reflect.Value, fieldValue any) (any, error) {
	switch v := fieldValue.(type) {
	case decimal.Decimal:
		return ToMinor(v), nil
	case *decimal.Decimal:
		if v == nil {
			return int64(0), nil
		}
		return ToMinor(*v), nil
	default:
		return nil, fmt.Errorf("value %s: unsupported type %T", field.Name, fieldValue)
	}
}
