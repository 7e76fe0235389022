package types

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// EncodeEmbedding stores a vector as a jsonb array. A nil vector encodes
// to nil so the column stays NULL when embedding failed.
func EncodeEmbedding(vec []float32) datatypes.JSON {
	if len(vec) == 0 {
		return nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// DecodeEmbedding parses a jsonb-stored vector. Returns nil for empty,
// null or malformed payloads.
func DecodeEmbedding(raw datatypes.JSON) []float32 {
	if len(raw) == 0 {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil
	}
	if len(vec) == 0 {
		return nil
	}
	return vec
}
