package store

import (
	"encoding/json"
	"log/slog"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// marshalStateData encodes state data for storage. Empty maps are stored as an empty string.
func marshalStateData(data map[models.DataKey]string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// unmarshalStateData decodes stored state data. Corrupt data yields an empty map
// so that a single bad row does not block the subject.
func unmarshalStateData(raw, participantID string) map[models.DataKey]string {
	data := make(map[models.DataKey]string)
	if raw == "" {
		return data
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.Error("Store unmarshalStateData failed", "error", err, "participantID", participantID)
		return make(map[models.DataKey]string)
	}
	return data
}
