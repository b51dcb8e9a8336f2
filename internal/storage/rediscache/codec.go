package rediscache

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-purchase/internal/domain/product"
)

func encodeProduct(p *product.Product) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Str(p.Price.String())
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("created_at")
	e.Str(p.CreatedAt.Format(time.RFC3339Nano))
	e.FieldStart("updated_at")
	e.Str(p.UpdatedAt.Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

func decodeProduct(data []byte) (*product.Product, error) {
	var p product.Product
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = d.Int64()
		case "name":
			p.Name, err = d.Str()
		case "price":
			var s string
			if s, err = d.Str(); err == nil {
				p.Price, err = decimal.NewFromString(s)
			}
		case "stock":
			p.Stock, err = d.Int()
		case "created_at":
			p.CreatedAt, err = decodeTime(d)
		case "updated_at":
			p.UpdatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "decode %q", key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, errors.New("cached product has no id")
	}
	return &p, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
