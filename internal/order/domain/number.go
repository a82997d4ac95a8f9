package domain

import (
	"fmt"
	"math/rand"
	"regexp"
	"time"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{8}-\d{4}$`)

// FormatOrderNumber renders ORD-YYYYMMDD-NNNN using the UTC date of at.
func FormatOrderNumber(at time.Time, suffix int) string {
	return fmt.Sprintf("ORD-%s-%04d", at.UTC().Format("20060102"), suffix%10000)
}

func NewOrderNumber(at time.Time) string {
	return FormatOrderNumber(at, rand.Intn(10000))
}

func ValidOrderNumber(s string) bool {
	return orderNumberPattern.MatchString(s)
}
