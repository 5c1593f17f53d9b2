package farm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"HodlFarm/internal/model"
)

// LoadState reads a farm snapshot from a JSON file. A missing file yields an
// uninitialized state.
func LoadState(filePath string) (*model.FarmState, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.FarmState{}, nil
		}
		return nil, err
	}
	var state model.FarmState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return &state, nil
}

// SaveState writes the snapshot through a temporary file so a crash never
// leaves a truncated state file behind.
func SaveState(filePath string, state *model.FarmState) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}

// Snapshot captures the whole farm while no call is in flight.
func (f *Farm) Snapshot() *model.FarmState {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	balances, supply := f.ledger.Snapshot()
	return &model.FarmState{
		Initialized: f.initialized,
		Address:     f.address,
		RewardRate:  f.rate,
		Balances:    balances,
		Supply:      supply,
		Positions:   f.registry.Snapshot(),
	}
}

// Save writes a snapshot to the configured state file.
func (f *Farm) Save() error {
	if f.statePath == "" {
		return nil
	}
	f.saveMu.Lock()
	defer f.saveMu.Unlock()
	return SaveState(f.statePath, f.Snapshot())
}

func (f *Farm) restore(state *model.FarmState) {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()
	f.ledger.Restore(state.Balances, state.Supply)
	for a, p := range state.Positions {
		f.registry.Restore(a, p)
	}
	f.initialized = state.Initialized
}
