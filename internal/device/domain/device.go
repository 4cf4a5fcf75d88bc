package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// OnlineWindow is how recent the last inform must be for a device to count as online.
const OnlineWindow = 5 * time.Minute

// Record is one device document as returned by the device directory: a schema-less tree whose
// leaves are objects carrying a "_value" field. Root fields prefixed with "_" (_id, _tags,
// _lastInform) are plain values.
type Record map[string]any

// ID returns the device identifier.
func (r Record) ID() string {
	s, _ := r["_id"].(string)
	return s
}

// Tags returns the device tags, skipping non-string entries.
func (r Record) Tags() []string {
	raw, _ := r["_tags"].([]any)
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// HasTag reports whether tag is one of the device tags.
func (r Record) HasTag(tag string) bool {
	for _, t := range r.Tags() {
		if t == tag {
			return true
		}
	}
	return false
}

// LastInform returns the last inform time, or the zero time if absent or unparsable.
func (r Record) LastInform() time.Time {
	s, _ := r["_lastInform"].(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsOnline reports whether lastInform is within OnlineWindow of now. A zero lastInform is
// offline.
func IsOnline(lastInform, now time.Time) bool {
	if lastInform.IsZero() {
		return false
	}
	return now.Sub(lastInform) <= OnlineWindow
}

// Status is the display form of the online flag.
type Status struct {
	Online bool   `json:"online"`
	Name   string `json:"status"`
	Label  string `json:"statusLabel"`
	Color  string `json:"statusColor"`
}

// StatusOf returns the display status for online.
func StatusOf(online bool) Status {
	if online {
		return Status{Online: true, Name: "online", Label: "Online", Color: "#33ff33"}
	}
	return Status{Online: false, Name: "offline", Label: "Offline", Color: "#ff0000"}
}

// RxPowerClass buckets an optical receive power reading in dBm.
type RxPowerClass string

const (
	RxPowerUnknown  RxPowerClass = ""
	RxPowerGood     RxPowerClass = "good"
	RxPowerWarning  RxPowerClass = "warning"
	RxPowerCritical RxPowerClass = "critical"
)

// ClassifyRxPower classifies a textual reading such as "-23.5" or "-23.5 dBm".
// Readings above -25 are good, above -27 warning, anything lower critical.
func ClassifyRxPower(raw string) RxPowerClass {
	power, ok := leadingFloat(raw)
	if !ok {
		return RxPowerUnknown
	}
	switch {
	case power > -25:
		return RxPowerGood
	case power > -27:
		return RxPowerWarning
	default:
		return RxPowerCritical
	}
}

func leadingFloat(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	end := 0
	for end < len(s) && strings.ContainsRune("+-.0123456789eE", rune(s[end])) {
		end++
	}
	for end > 0 {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil && !math.IsNaN(f) {
			return f, true
		}
		end--
	}
	return 0, false
}
