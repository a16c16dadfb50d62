package pipeline

// Stage is a step of a job.
type Stage string

// Stages in the order a job can pass them.
const (
	StageValidating  Stage = "validating"
	StagePacking     Stage = "packing"
	StageEnciphering Stage = "enciphering"
	StageDeciphering Stage = "deciphering"
	StageUnpacking   Stage = "unpacking"
	StageCommitting  Stage = "committing"
	StageCleanup     Stage = "cleanup"
)
