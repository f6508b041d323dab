package logger

import "strings"

const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// statusAliases folds the spellings used across call sites into one value.
var statusAliases = map[string]string{
	"ok":           "ok",
	"success":      "ok",
	"fail":         "fail",
	"failed":       "fail",
	"error":        "error",
	"skip":         "skip",
	"retry":        "retry",
	"rate_limited": "rate_limited",
	"cancelled":    "cancelled",
	"canceled":     "cancelled",
}

// redactedKeys hold applicant input. Their values are masked unless tracing
// is forced on.
var redactedKeys = map[string]struct{}{
	"text":    {},
	"name":    {},
	"address": {},
	"phone":   {},
	"comment": {},
	"answer":  {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if mapped, ok := statusAliases[status]; ok {
		return mapped
	}
	return status
}

// normalizeOutcome keeps snake_case tokens and rejects free text.
func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	if outcome == "" || len(outcome) > 32 {
		return "", false
	}
	for _, r := range outcome {
		if (r < 'a' || r > 'z') && r != '_' {
			return "", false
		}
	}
	return outcome, true
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"conversation_id",
	"step",
	"language",
	"kind",
	"record_id",
	"handler",
	"command",
	"action",
	"op",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"attachments",
	"mode",
	"listen",
	"public_url",
	"driver",
	"db",
	"host",
	"port",
	"count",
	"removed",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"collapsed",
	"repeats",
	"pending_count",
}
