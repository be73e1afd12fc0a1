package model

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

const (
	CurrencyPKR = "PKR"
	CurrencyUSD = "USD"
)

// Price is a decimal amount persisted as its canonical string so that fee
// values never pass through float64.
type Price struct {
	decimal.Decimal
}

func NewPrice(value string) (Price, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Price{}, fmt.Errorf("invalid price %q: %w", value, err)
	}
	return Price{Decimal: d}, nil
}

func MustPrice(value string) Price {
	p, err := NewPrice(value)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Price) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(p.String())
}

func (p *Price) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		s, _ := raw.StringValueOK()
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("decode price: %w", err)
		}
		p.Decimal = d
	case bsontype.Double:
		p.Decimal = decimal.NewFromFloat(raw.Double())
	case bsontype.Int32:
		p.Decimal = decimal.NewFromInt32(raw.Int32())
	case bsontype.Int64:
		p.Decimal = decimal.NewFromInt(raw.Int64())
	case bsontype.Null:
		p.Decimal = decimal.Zero
	default:
		return fmt.Errorf("decode price: unsupported bson type %s", t)
	}
	return nil
}
