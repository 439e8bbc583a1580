package ingestion

// State is a step of the run state machine.
type State string

const (
	StateInit              State = "init"
	StateResolvingConfig   State = "resolving_config"
	StateFetchingFiles     State = "fetching_files"
	StateValidating        State = "validating"
	StateRouting           State = "routing"
	StateLoading           State = "loading"
	StateRecordingMetadata State = "recording_metadata"
	StateDone              State = "done"
	StateFailed            State = "failed"
)
