package wallet

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

var titleTiers = []struct {
	minAge time.Duration
	title  string
}{
	{365 * day, "Ascended"},
	{100 * day, "Immortal"},
	{30 * day, "Elder"},
	{7 * day, "Survivor"},
	{0, "Newborn"},
}

// Title ranks a wallet by age. Tiers run from 1 (Newborn) to 5 (Ascended).
func Title(age time.Duration) (string, int) {
	for i, t := range titleTiers {
		if age >= t.minAge {
			return t.title, len(titleTiers) - i
		}
	}
	return "Newborn", 1
}

// FormatAge renders an age as "3d 4h", "4h 12m" or "12m".
func FormatAge(age time.Duration) string {
	if age < 0 {
		age = 0
	}
	days := int64(age / day)
	hours := int64(age%day) / int64(time.Hour)
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	minutes := int64(age%time.Hour) / int64(time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
