package kubernetes

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// quantitySuffixes are the kubernetes resource quantity suffixes the limit
// scaler understands, longest first so Mi matches before m would.
var quantitySuffixes = []string{"Ki", "Mi", "Gi", "Ti", "k", "M", "G", "T", "m"}

// scaleQuantity increases a kubernetes quantity string by the given percent,
// keeping the original unit suffix. "512Mi" at 50% becomes "768Mi"; "500m"
// becomes "750m". Fractional results round up so the new limit is never
// below the requested increase.
func scaleQuantity(quantity string, percent int) (string, error) {
	quantity = strings.TrimSpace(quantity)
	if quantity == "" {
		return "", fmt.Errorf("empty quantity")
	}

	suffix := ""
	number := quantity
	for _, s := range quantitySuffixes {
		if strings.HasSuffix(quantity, s) {
			suffix = s
			number = strings.TrimSuffix(quantity, s)
			break
		}
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return "", fmt.Errorf("parse quantity %q: %w", quantity, err)
	}
	if value <= 0 {
		return "", fmt.Errorf("quantity %q is not positive", quantity)
	}

	scaled := math.Ceil(value * float64(100+percent) / 100)
	return strconv.FormatInt(int64(scaled), 10) + suffix, nil
}
