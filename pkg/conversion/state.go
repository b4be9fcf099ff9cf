package conversion

// State is a step of the per-student conversion state machine
type State int

const (
	StateValidate State = iota
	StateResolveIdentity
	StateUpsertDestination
	StateSyncDependents
	StateBuildDataset
	StateTriggerDocumentGeneration
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValidate:
		return "validate"
	case StateResolveIdentity:
		return "resolve_identity"
	case StateUpsertDestination:
		return "upsert_destination"
	case StateSyncDependents:
		return "sync_dependents"
	case StateBuildDataset:
		return "build_dataset"
	case StateTriggerDocumentGeneration:
		return "trigger_document_generation"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// next returns the state that follows s on a successful step
func (s State) next(graduated bool) State {
	switch s {
	case StateValidate:
		return StateResolveIdentity
	case StateResolveIdentity:
		return StateUpsertDestination
	case StateUpsertDestination:
		return StateSyncDependents
	case StateSyncDependents:
		if graduated {
			return StateBuildDataset
		}
		return StateDone
	case StateBuildDataset:
		return StateTriggerDocumentGeneration
	case StateTriggerDocumentGeneration:
		return StateDone
	default:
		return s
	}
}
