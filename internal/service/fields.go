package service

import (
	"fmt"
	"strconv"
	"strings"

	"academix-api/internal/errdefs"
)

// pickFields keeps only the allow-listed keys of fields
func pickFields(fields map[string]interface{}, allowed []string) map[string]interface{} {
	out := make(map[string]interface{}, len(allowed))
	for _, k := range allowed {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

// normalizePrice accepts numeric or numeric-string prices
func normalizePrice(fields map[string]interface{}) error {
	raw, ok := fields["price"]
	if !ok {
		return nil
	}

	var price float64
	switch v := raw.(type) {
	case float64:
		price = v
	case int:
		price = float64(v)
	case int64:
		price = float64(v)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("price %q: %w", v, errdefs.ErrInvalidArgument)
		}
		price = p
	default:
		return fmt.Errorf("price of type %T: %w", raw, errdefs.ErrInvalidArgument)
	}

	if price < 0 {
		return fmt.Errorf("negative price: %w", errdefs.ErrInvalidArgument)
	}
	fields["price"] = price
	return nil
}
