package exitcode

const (
	Success          = 0
	UsageError       = 1
	ValidationError  = 2
	DBConnError      = 3
	SourceError      = 4
	TrainingError    = 5
	PartialSuccess   = 6
	PersistenceError = 7
	NotTrained       = 8
	InsufficientData = 9
	NotFound         = 10
)
