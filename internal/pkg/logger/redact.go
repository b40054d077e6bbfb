package logger

// RedactUserID masks a player identifier for safe logging.
// "player_839412" → "pl***12"
// Short IDs (≤4 chars) are fully masked: "ab1" → "***"
func RedactUserID(id string) string {
	if len(id) <= 4 {
		return "***"
	}
	return id[:2] + "***" + id[len(id)-2:]
}
