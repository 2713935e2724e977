package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Optional fields count as present only when their value is truthy: null,
// false, 0, "" and empty containers are the same as an absent key. A zero
// amount therefore takes the default of 1 and a zero price the default of 0.

var (
	stockKeys = map[string]bool{"name": true, "amount": true}
	saleKeys  = map[string]bool{"name": true, "amount": true, "price": true}
)

// DecodePayload reads one JSON object from r. Numbers are kept as
// json.Number so integers and floats can be told apart.
func DecodePayload(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrMalformedInput)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedInput)
	}
	return obj, nil
}

// ValidateStockPayload checks a stock-add payload and returns the request it
// describes.
func ValidateStockPayload(p map[string]any) (StockInput, error) {
	in := StockInput{Amount: 1}
	if err := checkKeys(p, stockKeys); err != nil {
		return in, err
	}
	name, err := nameField(p)
	if err != nil {
		return in, err
	}
	in.Name = name
	if v := p["amount"]; truthy(v) {
		n, ok := asInt(v)
		if !ok || n <= 0 {
			return in, fmt.Errorf("%w: amount must be a positive integer", ErrValidation)
		}
		in.Amount = n
	}
	return in, nil
}

// ValidateSalePayload checks a sale payload and returns the request it
// describes.
func ValidateSalePayload(p map[string]any) (SaleInput, error) {
	in := SaleInput{Amount: 1}
	if err := checkKeys(p, saleKeys); err != nil {
		return in, err
	}
	name, err := nameField(p)
	if err != nil {
		return in, err
	}
	in.Name = name
	if v := p["amount"]; truthy(v) {
		n, ok := asInt(v)
		if !ok || n <= 0 {
			return in, fmt.Errorf("%w: amount must be a positive integer", ErrValidation)
		}
		in.Amount = n
	}
	if v := p["price"]; truthy(v) {
		f, ok := asFloat(v)
		if !ok || f <= 0 {
			return in, fmt.Errorf("%w: price must be a positive number", ErrValidation)
		}
		in.Price = f
	}
	return in, nil
}

func checkKeys(p map[string]any, allowed map[string]bool) error {
	for k := range p {
		if !allowed[k] {
			return fmt.Errorf("%w: unexpected key %q", ErrValidation, k)
		}
	}
	return nil
}

func nameField(p map[string]any) (string, error) {
	v := p["name"]
	if !truthy(v) {
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	}
	name, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: name must be a string", ErrValidation)
	}
	return name, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

// asInt accepts integer literals only; 3.0 and 1e2 are not integers.
func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		if err != nil || int64(int(n)) != n {
			return 0, false
		}
		return int(n), true
	case int:
		return x, true
	case int64:
		return int(x), int64(int(x)) == x
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
