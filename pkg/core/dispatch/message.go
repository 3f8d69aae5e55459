package dispatch

import (
	"fmt"
	"strings"

	"github.com/whoseonfirst/oncall/pkg/db"
)

// maxMessageLength keeps messages inside one SMS segment
const maxMessageLength = 160

// ComposeMessage builds the shift-start notification text for an
// assignment, truncated to a single transport segment
func ComposeMessage(assignment db.ShiftAssignment) string {
	endTime := assignment.EndAt.Format("Mon 03:04 PM")

	message := fmt.Sprintf(
		"WhoseOnFirst: %s, your on-call shift has started.\nDuration: %dh (until %s)\nQuestions? Contact admin.",
		assignment.ParticipantName,
		assignment.DurationHours,
		endTime,
	)

	if len(message) > maxMessageLength {
		message = message[:maxMessageLength-3] + "..."
	}

	return message
}

// MaskPhone masks a phone number for logging, keeping only the leading
// digits visible (e.g. +1555123XXXX)
func MaskPhone(phone string) string {
	if len(phone) < 4 {
		return strings.Repeat("X", len(phone))
	}
	return phone[:len(phone)-4] + "XXXX"
}
