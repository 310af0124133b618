// Package job defines the unit of work and the two queues the pool drains.
package job

import "fmt"

type Origin int

const (
	FreshFromQueue Origin = iota
	Retried
)

func (o Origin) String() string {
	switch o {
	case Retried:
		return "retried"
	default:
		return "fresh"
	}
}

// Job is one account to process. Key is the external identity; Row is the
// position token used for status write-back only.
type Job struct {
	Key     string
	Row     int
	Payload map[string]string
	Origin  Origin
	Attempt int
}

// Identity is what a result sink needs to record an outcome.
type Identity struct {
	Key string `json:"key"`
	Row int    `json:"row"`
}

func (j Job) Identity() Identity { return Identity{Key: j.Key, Row: j.Row} }

// Retry returns the job prepared for its next attempt.
func (j Job) Retry() Job {
	j.Origin = Retried
	return j
}

func (j Job) String() string {
	return fmt.Sprintf("%s#%d(%s,row=%d)", j.Key, j.Attempt, j.Origin, j.Row)
}
