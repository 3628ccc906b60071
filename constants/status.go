package constants

// JobStatus is the canonical status for rows in po_jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusQueued     JobStatus = "QUEUED"     // accepted, waiting for a worker
	JobStatusRunning    JobStatus = "RUNNING"    // in progress
	JobStatusTextOK     JobStatus = "TEXT_OK"    // stage 1 completed (text extracted)
	JobStatusLLMOK      JobStatus = "LLM_OK"     // stage 2 completed (refined JSON returned)
	JobStatusReconciled JobStatus = "RECONCILED" // stage 3 completed (canonical records stored)
	JobStatusFailed     JobStatus = "FAILED"     // terminal failure
)
