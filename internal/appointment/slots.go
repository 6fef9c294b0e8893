package appointment

import "fmt"

const (
	firstHour = 9
	lastHour  = 16
)

// Grid returns the bookable half-hour labels of a day, 9:00-9:30 through 16:30-17:00.
// Labels are compared as opaque strings everywhere, so the format must not change.
func Grid() []string {
	slots := make([]string, 0, (lastHour-firstHour+1)*2)
	for hour := firstHour; hour <= lastHour; hour++ {
		slots = append(slots,
			fmt.Sprintf("%d:00-%d:30", hour, hour),
			fmt.Sprintf("%d:30-%d:00", hour, hour+1),
		)
	}
	return slots
}

func IsValidSlot(label string) bool {
	for _, s := range Grid() {
		if s == label {
			return true
		}
	}
	return false
}
