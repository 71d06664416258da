package promotion

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// ParseDocument decodes a promotion document from its JSON key-value form.
//
// Decimal fields accept JSON numbers as well as numeric strings, so documents
// written by tools that quote money values decode to the same amounts.
// Keys that are not part of Document are preserved verbatim in Attributes.
func ParseDocument(data []byte) (*Document, error) {
	doc := &Document{}
	d := jx.DecodeBytes(data)

	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			doc.ID, err = d.Str()
		case "type":
			var s string
			s, err = d.Str()
			doc.Type = Type(s)
		case "description":
			doc.Description, err = decodeOptString(d)
		case "discount_amount":
			doc.DiscountAmount, err = decodeDecimal(d)
		case "discount_percent":
			doc.DiscountPercent, err = decodeDecimal(d)
		case "max_discount":
			doc.MaxDiscount, err = decodeDecimal(d)
		case "min_order_amount":
			doc.MinOrderAmount, err = decodeDecimal(d)
		case "conditions":
			doc.Conditions, err = decodeStrings(d)
		case "channels":
			var names []string
			names, err = decodeStrings(d)
			for _, name := range names {
				c, perr := ParseChannel(name)
				if perr != nil {
					return perr
				}
				doc.Channels = append(doc.Channels, c)
			}
		case "valid_from":
			doc.ValidFrom, err = decodeTime(d)
		case "valid_until":
			doc.ValidUntil, err = decodeTime(d)
		default:
			var raw jx.Raw
			raw, err = d.Raw()
			if err == nil {
				if doc.Attributes == nil {
					doc.Attributes = make(map[string]string)
				}
				doc.Attributes[string(key)] = string(raw)
			}
		}
		return errors.Wrapf(err, "field %q", key)
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode promotion document")
	}

	if doc.ID == "" {
		return nil, errors.New("promotion document: id is required")
	}
	if doc.Type == "" {
		return nil, errors.Errorf("promotion document %s: type is required", doc.ID)
	}
	return doc, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		return decimal.Zero, errors.Errorf("unexpected %s, want number", d.Next())
	}
}

func decodeOptString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
