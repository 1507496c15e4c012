package stream

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/craftlabs/forma/internal/models"
)

// framePrefix marks lines that carry a status update. All other lines
// (keep-alives, comments) are ignored.
const framePrefix = "data:"

// ParseUpdate parses one decoded frame into a StatusUpdate. Lines without
// the data marker, and marked lines that fail JSON decoding, are skipped;
// decode failures are logged so a misbehaving server is visible without
// killing the stream. Unknown status kinds pass through untouched; only
// "complete" and "error" are terminal, so new phases degrade to generic
// in-progress updates.
func ParseUpdate(logger *slog.Logger, line string) (models.StatusUpdate, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, framePrefix) {
		return models.StatusUpdate{}, false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(line, framePrefix))
	if raw == "" {
		return models.StatusUpdate{}, false
	}

	var update models.StatusUpdate
	if err := json.Unmarshal([]byte(raw), &update); err != nil {
		logger.Warn("discarding malformed status frame", "error", err)
		return models.StatusUpdate{}, false
	}
	if update.Status == "" {
		logger.Warn("discarding status frame without status field")
		return models.StatusUpdate{}, false
	}
	return update, true
}
