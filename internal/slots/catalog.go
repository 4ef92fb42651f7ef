package slots

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Catalog is the fixed ordered sequence of time-of-day slots offered every day.
type Catalog []string

// DefaultCatalog is the office schedule from 15:00 to 18:00 in 30 minute steps.
var DefaultCatalog = Catalog{"15:00", "15:30", "16:00", "16:30", "17:00", "17:30"}

// NewCatalog returns the explicit slot list when one is configured, otherwise it
// generates the slots of the schedule window.
func NewCatalog(explicit []string, start, end string, stepMinutes int) (Catalog, error) {
	if len(explicit) == 0 {
		return GenerateCatalog(start, end, stepMinutes)
	}

	seen := make(map[string]struct{}, len(explicit))
	catalog := make(Catalog, 0, len(explicit))
	for _, s := range explicit {
		h, m, err := parseClock(s)
		if err != nil {
			return nil, err
		}
		slot := fmt.Sprintf("%02d:%02d", h, m)
		if _, dup := seen[slot]; dup {
			return nil, fmt.Errorf("duplicate time slot %s", slot)
		}
		seen[slot] = struct{}{}
		catalog = append(catalog, slot)
	}
	return catalog, nil
}

// GenerateCatalog builds the slots starting at start, every stepMinutes, that
// end no later than end.
func GenerateCatalog(start, end string, stepMinutes int) (Catalog, error) {
	if stepMinutes <= 0 {
		stepMinutes = 30
	}

	sh, sm, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	eh, em, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}

	from, to := sh*60+sm, eh*60+em
	if to <= from {
		return nil, errors.New("schedule end must be after start")
	}

	var catalog Catalog
	for cursor := from; cursor+stepMinutes <= to; cursor += stepMinutes {
		catalog = append(catalog, fmt.Sprintf("%02d:%02d", cursor/60, cursor%60))
	}
	if len(catalog) == 0 {
		return nil, errors.New("schedule window shorter than one slot")
	}
	return catalog, nil
}

// Pick returns the slot at a 1-based display index.
func (c Catalog) Pick(input string) (string, bool) {
	idx, ok := ParseIndex(input, len(c))
	if !ok {
		return "", false
	}
	return c[idx-1], true
}

// ParseIndex parses a 1-based menu index in [1, size].
func ParseIndex(input string, size int) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || idx < 1 || idx > size {
		return 0, false
	}
	return idx, true
}
