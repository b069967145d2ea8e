package domain

import (
	"fmt"
	"time"
)

type TaskAction string

const (
	ActionSendEmail      TaskAction = "send_email"
	ActionProcessImage   TaskAction = "process_image"
	ActionGenerateReport TaskAction = "generate_report"
	ActionBackupData     TaskAction = "backup_data"
)

// ActionSpec describes the simulated side effect for one task action:
// how long it takes and what the success message looks like.
type ActionSpec struct {
	Latency  time.Duration
	Describe func(data map[string]string) string
}

// DefaultLatency applies to actions outside the closed set.
const DefaultLatency = 1000 * time.Millisecond

var actionTable = map[TaskAction]ActionSpec{
	ActionSendEmail: {
		Latency:  2000 * time.Millisecond,
		Describe: describeField("Email sent to %s", "recipient"),
	},
	ActionProcessImage: {
		Latency:  3000 * time.Millisecond,
		Describe: describeField("Image processed: %s", "filename"),
	},
	ActionGenerateReport: {
		Latency:  4000 * time.Millisecond,
		Describe: describeField("Report generated for %s", "reportType"),
	},
	ActionBackupData: {
		Latency:  2500 * time.Millisecond,
		Describe: describeField("Backup completed for %s", "dataType"),
	},
}

func describeField(format, field string) func(map[string]string) string {
	return func(data map[string]string) string {
		v := data[field]
		if v == "" {
			v = "unknown"
		}
		return fmt.Sprintf(format, v)
	}
}

// ValidAction reports whether a belongs to the closed action set.
func ValidAction(a TaskAction) bool {
	_, ok := actionTable[a]
	return ok
}

// SpecFor returns the action's spec. Unknown actions fall back to the
// default latency and a generic message, matching the worker contract.
func SpecFor(a TaskAction) ActionSpec {
	if spec, ok := actionTable[a]; ok {
		return spec
	}
	return ActionSpec{
		Latency: DefaultLatency,
		Describe: func(map[string]string) string {
			return fmt.Sprintf("Processed action: %s", a)
		},
	}
}

// Actions returns the closed action set.
func Actions() []TaskAction {
	out := make([]TaskAction, 0, len(actionTable))
	for a := range actionTable {
		out = append(out, a)
	}
	return out
}
