package assign

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidZip is returned for ZIP codes that are not five digits (optionally followed by +4).
var ErrInvalidZip = errors.New("invalid ZIP code")

// DistanceEstimator estimates the distance in miles between two ZIP codes.
type DistanceEstimator interface {
	EstimateMiles(fromZip, toZip string) (float64, error)
}

// ZipPrefixEstimator approximates distance from the length of the shared ZIP prefix. ZIP codes are
// assigned geographically, so a longer shared prefix means a closer location.
type ZipPrefixEstimator struct{}

// Prefix-length distance table, indexed by the number of leading digits shared.
var prefixMiles = [...]float64{50, 50, 20, 8, 3, 0.5}

func (ZipPrefixEstimator) EstimateMiles(fromZip, toZip string) (float64, error) {
	a, err := normalizeZip(fromZip)
	if err != nil {
		return 0, err
	}
	b, err := normalizeZip(toZip)
	if err != nil {
		return 0, err
	}
	shared := 0
	for shared < len(a) && a[shared] == b[shared] {
		shared++
	}
	return prefixMiles[shared], nil
}

func normalizeZip(zip string) (string, error) {
	z := strings.TrimSpace(zip)
	if i := strings.IndexByte(z, '-'); i >= 0 {
		z = z[:i]
	}
	if len(z) != 5 {
		return "", fmt.Errorf("%w: %q", ErrInvalidZip, zip)
	}
	for _, r := range z {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidZip, zip)
		}
	}
	return z, nil
}
