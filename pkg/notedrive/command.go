package notedrive

// Command is one discrete application operation with its specific options.
//
// Parsing, validation, and execution are kept separate: [Parse] turns
// command-line arguments into a Command plus the shared [Config], and
// [Main] routes the Command to the matching method on [App]. Each
// implementation carries only the options that belong to its operation.
//
// Current command implementations:
//   - [RunCommand]: HTTP server startup and operation
//   - [MigrateCommand]: database schema migration
type Command interface {
	// Name returns the command identifier used for routing. It matches
	// the CLI sub-command name.
	Name() string
}

// RunCommand starts the HTTP server that exposes the access-control API:
// session and token endpoints, user, drive, membership, and page CRUD,
// permission grants and revocations, batch access resolution, and the
// activity log with rollback checks.
//
// The server runs until its context is cancelled, then drains in-flight
// requests before exiting. All configuration comes from [Config]; the
// struct is empty until a run-specific option exists.
type RunCommand struct{}

// Name returns "run" to match CLI argument parsing.
func (c *RunCommand) Name() string {
	return "run"
}

// MigrateCommand initializes or updates the database schema to match the
// current data model. It is safe to run repeatedly: only missing schema
// elements are created and existing data is preserved.
//
// The PostgreSQL store migrates through GORM AutoMigrate; the in-memory
// store has no schema and treats migration as a no-op.
type MigrateCommand struct{}

// Name returns "migrate" to match CLI argument parsing.
func (c *MigrateCommand) Name() string {
	return "migrate"
}
