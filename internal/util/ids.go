// Package util holds small helpers shared across CareCircle components: record IDs and
// environment parsing.
package util

import (
	"math/rand/v2"
	"strings"
)

// Record ID prefixes. The prefix makes an ID's kind obvious in logs and API payloads.
const (
	AlertIDPrefix  = "alert_"
	TaskIDPrefix   = "task_"
	MemberIDPrefix = "mem_"
	JobIDPrefix    = "job_"
	OutboxIDPrefix = "outbox_"
)

const idHexLength = 24

// GenerateRandomID returns prefix followed by hexLength random lowercase hex characters.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex returns a random lowercase hex string. It is not suitable for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	const hexChars = "0123456789abcdef"
	var b strings.Builder
	b.Grow(length)
	for range length {
		b.WriteByte(hexChars[rand.IntN(len(hexChars))])
	}
	return b.String()
}

func NewAlertID() string  { return GenerateRandomID(AlertIDPrefix, idHexLength) }
func NewTaskID() string   { return GenerateRandomID(TaskIDPrefix, idHexLength) }
func NewMemberID() string { return GenerateRandomID(MemberIDPrefix, idHexLength) }
func NewJobID() string    { return GenerateRandomID(JobIDPrefix, idHexLength) }
func NewOutboxID() string { return GenerateRandomID(OutboxIDPrefix, idHexLength) }

// HasIDPrefix reports whether id looks like one generated with prefix.
func HasIDPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || rest == "" {
		return false
	}
	for _, c := range rest {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
