package config

const (
	// DefaultPriority is applied when neither the enqueue call nor the job
	// type specifies one. Lower values are claimed first.
	DefaultPriority = 100

	// NotifyChannel is the Postgres NOTIFY channel pinged after each insert
	// so idle workers wake up without waiting out their poll interval.
	NotifyChannel = "que_jobs"
)
