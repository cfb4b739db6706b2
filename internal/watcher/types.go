package watcher

import "time"

// Operation is the kind of change observed for a path.
type Operation int

const (
	// OpCreate is a new file or directory.
	OpCreate Operation = iota
	// OpModify is a write to an existing file.
	OpModify
	// OpDelete is a removal, or the old name of a rename.
	OpDelete
	// OpIgnoreChange is a write to a .gitignore; files under its directory
	// may have become visible or hidden.
	OpIgnoreChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpIgnoreChange:
		return "IGNORE_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one debounced change.
type FileEvent struct {
	// Path is absolute.
	Path string

	// Root is the watched root Path falls under.
	Root string

	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Filter decides which paths are worth reporting. *scanner.Scanner
// implements it.
type Filter interface {
	AcceptDir(root, dir string) bool
	AcceptFile(root, path string) bool
	Invalidate(root, dir string)
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a path must stay quiet before it is emitted.
	// Default: 500ms
	Debounce time.Duration

	// BatchBuffer is the capacity of the Batches channel.
	// Default: 16
	BatchBuffer int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:    500 * time.Millisecond,
		BatchBuffer: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.BatchBuffer <= 0 {
		o.BatchBuffer = defaults.BatchBuffer
	}
	return o
}
