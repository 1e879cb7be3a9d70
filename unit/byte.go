package unit

import "fmt"

const (
	// https://en.wikipedia.org/wiki/Kilobyte
	Byte     = 1
	Kilobyte = 1000 * Byte
	Megabyte = 1000 * Kilobyte
	Gigabyte = 1000 * Megabyte
)

func FormatBytes(n int64) string {
	switch {
	case n >= Gigabyte:
		return fmt.Sprintf("%.2fGB", float64(n)/Gigabyte)
	case n >= Megabyte:
		return fmt.Sprintf("%.2fMB", float64(n)/Megabyte)
	case n >= Kilobyte:
		return fmt.Sprintf("%.2fKB", float64(n)/Kilobyte)
	default:
		return fmt.Sprintf("%dB", n)
	}
}
