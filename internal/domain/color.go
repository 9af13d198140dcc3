package domain

import "strings"

// Default display colors.
const (
	ColorExpired       = 0x505050
	ColorDefault       = 0xffffff
	ColorNoInstruction = 0x009933
)

// ColorEntry maps an event-name substring to its watch and warning colors.
type ColorEntry struct {
	Match   string
	Watch   int
	Warning int
}

// ColorTable is kept as a slice because the first matching entry wins.
type ColorTable []ColorEntry

// DefaultColorTable mirrors the stock configuration.
func DefaultColorTable() ColorTable {
	return ColorTable{
		{Match: "Tornado", Watch: 0xc60101, Warning: 0xff00ff},
		{Match: "Thunderstorm", Watch: 0xe8e800, Warning: 0xe89804},
		{Match: "Flash Flood", Watch: 0x03c03c, Warning: 0x028228},
		{Match: "Winter Storm", Watch: 0x435882, Warning: 0x2360db},
	}
}

// ResolveColor picks the display color for an alert. The first table entry
// whose Match is a substring of the event name wins, using its watch color
// when the event name contains "Watch". Unmatched alerts get expired when
// they carry no instruction text and def otherwise.
func ResolveColor(alert Alert, table ColorTable, expired, def int) int {
	for _, entry := range table {
		if !strings.Contains(alert.Event, entry.Match) {
			continue
		}
		if alert.IsWatch() {
			return entry.Watch
		}
		return entry.Warning
	}
	if alert.Instruction == "" {
		return expired
	}
	return def
}
