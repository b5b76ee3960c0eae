package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// FileState is the per-path record kept in the state file: content hash,
// size, and modification time as of the last successful index of that path.
type FileState struct {
	Hash  string    `json:"hash"`
	Size  int64     `json:"size"`
	MTime time.Time `json:"mtime"`
}

// State is the full contents of <data_dir>/<collection>.json: every
// tracked file's last-indexed fingerprint plus the gitignore hash the
// last run reconciled against.
type State struct {
	Files         map[string]FileState `json:"-"`
	GitignoreHash string               `json:"-"`
}

// stateFileWire is the on-disk JSON shape: per-path records live at the top
// level, with reserved keys for the non-file fields alongside them.
type stateFileWire map[string]json.RawMessage

const stateGitignoreHashKey = "_gitignore_hash"

// StatePath returns the path to the state file for collection under dataDir.
func StatePath(dataDir, collection string) string {
	return filepath.Join(dataDir, collection+".json")
}

// LoadState reads the state file at path. A missing or malformed file is
// treated as empty state (full-run semantics), never an error.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return emptyState(), nil
	}
	var wire stateFileWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return emptyState(), nil
	}
	state := emptyState()
	for k, raw := range wire {
		if k == stateGitignoreHashKey {
			_ = json.Unmarshal(raw, &state.GitignoreHash)
			continue
		}
		var fs FileState
		if err := json.Unmarshal(raw, &fs); err == nil {
			state.Files[k] = fs
		}
	}
	return state, nil
}

func emptyState() *State {
	return &State{Files: make(map[string]FileState)}
}

// Exists reports whether a state file is present at path (used to decide
// full vs incremental mode).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Save atomically writes state to path: write "<path>.tmp", then rename so
// concurrent readers always see either the old or the new state, never a
// partial one.
func (s *State) Save(path string) error {
	wire := make(stateFileWire, len(s.Files)+1)
	for k, fs := range s.Files {
		raw, err := json.Marshal(fs)
		if err != nil {
			return err
		}
		wire[k] = raw
	}
	if s.GitignoreHash != "" {
		raw, err := json.Marshal(s.GitignoreHash)
		if err != nil {
			return err
		}
		wire[stateGitignoreHashKey] = raw
	}
	data, err := json.MarshalIndent(wire, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// diff computes modified/deleted/new sets: modified = hash changed;
// deleted = in state but not on disk; added = on disk but not in state.
func diffFileStates(prev map[string]FileState, current map[string]FileState) (modified, deleted, added []string) {
	for path, cur := range current {
		if old, ok := prev[path]; ok {
			if old.Hash != cur.Hash {
				modified = append(modified, path)
			}
		} else {
			added = append(added, path)
		}
	}
	for path := range prev {
		if _, ok := current[path]; !ok {
			deleted = append(deleted, path)
		}
	}
	return modified, deleted, added
}
