package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/domain/product"
)

// errMalformed marks a body that is not the expected JSON shape.
var errMalformed = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

// writeData wraps the payload as {"data": ...}.
func writeData(w http.ResponseWriter, code int, encode func(e *jx.Encoder)) {
	writeJSON(w, code, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("data")
		encode(e)
		e.ObjEnd()
	})
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Str(p.Price.StringFixed(2))
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("created_at")
	encodeTime(e, p.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, p.UpdatedAt)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, d *order.Details) {
	o := d.Order
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("product_id")
	e.Int64(o.ProductID)
	e.FieldStart("quantity")
	e.Int(o.Quantity)
	e.FieldStart("total_price")
	e.Str(o.TotalPrice.StringFixed(2))
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("created_at")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("product")
	if d.Product != nil {
		encodeProduct(e, d.Product)
	} else {
		e.Null()
	}
	e.ObjEnd()
}

func readBody(r *http.Request, w http.ResponseWriter) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(errMalformed, err.Error())
	}
	return data, nil
}

// decodeObject walks a JSON object, turning every decode error into
// errMalformed.
func decodeObject(data []byte, field func(d *jx.Decoder, key string) error) error {
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return errMalformed
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	})
	if err != nil {
		return errors.Wrap(errMalformed, err.Error())
	}
	return nil
}

// decodeInt accepts an integral JSON number.
func decodeInt(d *jx.Decoder) (int64, error) {
	if d.Next() != jx.Number {
		return 0, errors.New("expected a number")
	}
	return d.Int64()
}

// decodeMoney accepts "19.99" or 19.99. Numbers are taken from their literal
// text, never through float64.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Zero, errors.New("expected a string or number")
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
