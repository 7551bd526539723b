package notedrive

import (
	"context"
	"fmt"
)

// Main is the entry point for the notedrive application. It parses args,
// builds the [App], and executes the selected command. Tests call it
// directly with a cancellable context instead of building the binary.
//
// # Command Line Usage
//
//	notedrive run                        # Serve the API on :8080 against PostgreSQL
//	notedrive -store memory run          # Development mode, nothing persisted
//	notedrive migrate                    # Create or update the schema
//
// # Environment Variables
//
//	POSTGRES_DSN    - PostgreSQL connection string
//	REDIS_ADDR      - Redis address for the shared permission cache tier;
//	                  unset runs the cache in process-local mode
//	REDIS_PASSWORD  - Redis password, if the server requires one
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	app, err := New(config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	switch c := cmd.(type) {
	case *MigrateCommand:
		if err := app.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}

	return nil
}
