package domain

import (
	"fmt"
	"strings"
)

// Industry is a market sector that predictions are made against.
type Industry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NormalizeIndustryName trims the name and rejects empty values.
func NormalizeIndustryName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", fmt.Errorf("industry name must not be empty: %w", ErrInvalidInput)
	}
	return n, nil
}
