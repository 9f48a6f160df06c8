package dispatch

import "github.com/mattjoyce/portmark/internal/protocol"

// Observed holds the status fields last seen from the controller.
type Observed struct {
	CurrentTask    int  `json:"current_task"`
	TaskActive     bool `json:"task_active"`
	TaskDone       bool `json:"task_done"`
	Homed          bool `json:"homed"`
	Printing       bool `json:"printing"`
	ProgramRunning bool `json:"program_running"`

	seen bool
}

// Change is one status field that moved between snapshots. From is nil on
// the first snapshot.
type Change struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// ChangeSet is the result of folding a snapshot into Observed.
type ChangeSet struct {
	Next    Observed
	Changes []Change
}

// Ingest compares snap against prev. It has no side effects.
func Ingest(prev Observed, snap protocol.Snapshot) ChangeSet {
	next := Observed{
		CurrentTask:    snap.CurrentTask,
		TaskActive:     snap.TaskActive,
		TaskDone:       snap.TaskDone,
		Homed:          snap.Homed,
		Printing:       snap.Printing,
		ProgramRunning: snap.ProgramRunning,
		seen:           true,
	}

	var changes []Change
	add := func(field string, from, to any, differ bool) {
		if !prev.seen {
			changes = append(changes, Change{Field: field, To: to})
			return
		}
		if differ {
			changes = append(changes, Change{Field: field, From: from, To: to})
		}
	}

	add("current_task", prev.CurrentTask, next.CurrentTask, prev.CurrentTask != next.CurrentTask)
	add("task_active", prev.TaskActive, next.TaskActive, prev.TaskActive != next.TaskActive)
	add("task_done", prev.TaskDone, next.TaskDone, prev.TaskDone != next.TaskDone)
	add("homed", prev.Homed, next.Homed, prev.Homed != next.Homed)
	add("printing", prev.Printing, next.Printing, prev.Printing != next.Printing)
	add("program_running", prev.ProgramRunning, next.ProgramRunning, prev.ProgramRunning != next.ProgramRunning)

	return ChangeSet{Next: next, Changes: changes}
}
