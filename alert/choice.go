package alert

import (
	"fmt"
	"strings"
)

// Choice selects the alert sound.
type Choice int

const (
	HighBeep Choice = iota + 1
	MediumBeep
	LowBeep
	CustomSound
)

// ParseChoice accepts a name (high, medium, low, custom) or the menu
// numbers 1 to 4.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "1":
		return HighBeep, nil
	case "medium", "2":
		return MediumBeep, nil
	case "low", "3":
		return LowBeep, nil
	case "custom", "4":
		return CustomSound, nil
	}
	return 0, fmt.Errorf("unknown alert sound %q", s)
}

// Frequency is the tone in Hz; 0 for CustomSound.
func (c Choice) Frequency() int {
	switch c {
	case HighBeep:
		return 2000
	case MediumBeep:
		return 1000
	case LowBeep:
		return 500
	}
	return 0
}

// Label is the text shown in the overlay.
func (c Choice) Label() string {
	switch c {
	case HighBeep:
		return "High Beep (2000Hz)"
	case MediumBeep:
		return "Medium Beep (1000Hz)"
	case LowBeep:
		return "Low Beep (500Hz)"
	case CustomSound:
		return "Custom Sound"
	}
	return "Unknown"
}

func (c Choice) String() string {
	switch c {
	case HighBeep:
		return "high"
	case MediumBeep:
		return "medium"
	case LowBeep:
		return "low"
	case CustomSound:
		return "custom"
	}
	return fmt.Sprintf("Choice(%d)", int(c))
}
