package core

// JobSet holds the PIDs of background jobs that haven't been reaped.
// The order of PIDs isn't meaningful, removal swaps in the last element.
type JobSet struct {
	pids []int
}

// Add tracks a new background PID.
func (j *JobSet) Add(pid int) {
	j.pids = append(j.pids, pid)
}

// Len returns the number of tracked jobs.
func (j *JobSet) Len() int {
	return len(j.pids)
}

// PIDs returns a copy of the tracked PIDs.
func (j *JobSet) PIDs() []int {
	return append([]int(nil), j.pids...)
}

// Contains checks whether pid is tracked.
func (j *JobSet) Contains(pid int) bool {
	for _, p := range j.pids {
		if p == pid {
			return true
		}
	}
	return false
}

// removeAt drops the PID at index i by moving the last PID into its place.
func (j *JobSet) removeAt(i int) {
	last := len(j.pids) - 1
	j.pids[i] = j.pids[last]
	j.pids = j.pids[:last]
}

// Clear forgets every tracked PID.
func (j *JobSet) Clear() {
	j.pids = nil
}
