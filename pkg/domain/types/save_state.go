package types

// SaveState is the state of an assessment autosave session
type SaveState string

const (
	// SaveStateIdle means there is no unsaved draft
	SaveStateIdle SaveState = "idle"
	// SaveStateEditing means the draft is dirty and no save is scheduled
	SaveStateEditing SaveState = "editing"
	// SaveStateScheduled means the debounce timer is pending
	SaveStateScheduled SaveState = "scheduled"
	// SaveStateSaving means an update request is in flight
	SaveStateSaving SaveState = "saving"
	// SaveStateConflict means the last save was rejected for a stale version
	SaveStateConflict SaveState = "conflict"
	// SaveStateSaved means the last save succeeded and the draft is clean
	SaveStateSaved SaveState = "saved"
)

func (s SaveState) String() string {
	return string(s)
}
