package plot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// persistedState — формат сохранения реестра:
//
//	{"skyblockPos":{"spacing":..,"layer":..,"x":..,"y":..,"z":..},
//	 "skyblocks":{"<uuid>":{"name":..,"spawnX":..,"spawnY":..,"spawnZ":..}}}
type persistedState struct {
	Cursor Cursor            `json:"skyblockPos"`
	Plots  map[string]Record `json:"skyblocks"`
}

func encodeState(cursor Cursor, plots map[uuid.UUID]*Plot) ([]byte, error) {
	state := persistedState{
		Cursor: cursor,
		Plots:  make(map[string]Record, len(plots)),
	}
	for owner, p := range plots {
		state.Plots[owner.String()] = p.Record()
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("error encoding registry state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte) (Cursor, map[uuid.UUID]*Plot, error) {
	var state persistedState
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&state); err != nil {
		return Cursor{}, nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if err := state.Cursor.Valid(); err != nil {
		return Cursor{}, nil, err
	}

	plots := make(map[uuid.UUID]*Plot, len(state.Plots))
	for key, rec := range state.Plots {
		owner, err := uuid.Parse(key)
		if err != nil {
			return Cursor{}, nil, fmt.Errorf("%w: owner %q: %v", ErrCorruptState, key, err)
		}
		plots[owner] = FromRecord(owner, rec)
	}
	return state.Cursor, plots, nil
}
