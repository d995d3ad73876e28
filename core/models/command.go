package models

// RemoteCommand is a unit of work handed to the remote executor.
// It is never mutated after dispatch.
type RemoteCommand struct {
	Target   string   // Executor instance that runs the command
	Document string   // e.g. "AWS-RunShellScript"
	Commands []string // Shell lines executed in order
	Comment  string
}

// Dispatch is the executor's acknowledgement of a sent command.
type Dispatch struct {
	CommandID string
	Target    string
}
