package compute

import (
	"strconv"
	"time"
)

// Profile names the resource profile a job was routed to.
type Profile string

// Resource profiles.
const (
	// Reserved runs on the reserved nodes through their reservation.
	Reserved Profile = "reserved"
	// Shared runs on the shared partition while the reservation is overloaded.
	Shared Profile = "shared"
	// Pool runs on the unrestricted cluster pool, with explicit limits.
	Pool Profile = "pool"
)

// JobDescription is everything needed to render and submit one job script.
// It is built by Router.Route and submitted once.
type JobDescription struct {
	Name        string
	Profile     Profile
	Partition   string
	Reservation string
	Nodes       int
	// Limits, zero when unset.
	Time     time.Duration
	MemoryMB int64
	Nice     int

	Setup    []string
	Commands []string

	// Paths of the job script and its output streams.
	Script string
	Output string
	Error  string
}

// TimeLimit formats Time for sbatch, "H:MM:SS", or "" when unset.
func (jd *JobDescription) TimeLimit() string {
	if jd.Time <= 0 {
		return ""
	}
	t := jd.Time.Round(time.Second)
	h := int(t / time.Hour)
	m := int(t%time.Hour) / int(time.Minute)
	s := int(t%time.Minute) / int(time.Second)
	return strconv.Itoa(h) + ":" + pad(m) + ":" + pad(s)
}

// Memory formats MemoryMB for sbatch, or "" when unset.
func (jd *JobDescription) Memory() string {
	if jd.MemoryMB <= 0 {
		return ""
	}
	return strconv.FormatInt(jd.MemoryMB, 10)
}

func pad(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
