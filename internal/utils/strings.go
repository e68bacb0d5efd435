package utils

import "strconv"

// IntToString converts an integer to string
func IntToString(i int) string {
	return strconv.Itoa(i)
}

// FloatToString formats a float with two decimal places for log lines
func FloatToString(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
