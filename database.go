package typedb

import (
	"context"

	"github.com/typedb/typedb-driver-sub001/internal/server"
)

// DatabaseManager is the driver's thin view onto database-management
// requests: every call is a single strongly-consistent round trip to the
// primary, never a transaction.
type DatabaseManager struct {
	driver *Driver
}

// All lists every database the cluster knows about.
func (dm *DatabaseManager) All(ctx context.Context) ([]string, error) {
	result, err := dm.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		resp, err := conn.DatabasesAll(ctx)
		if err != nil {
			return nil, err
		}
		return resp.Names, nil
	})
	if err != nil {
		return nil, asError(err)
	}
	return result.([]string), nil
}

// Contains reports whether a database named name exists.
func (dm *DatabaseManager) Contains(ctx context.Context, name string) (bool, error) {
	names, err := dm.All(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Create creates a new database named name.
func (dm *DatabaseManager) Create(ctx context.Context, name string) error {
	_, err := dm.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		return nil, conn.DatabaseCreate(ctx, name)
	})
	return asErrorOrNil(err)
}

// Delete deletes the database named name.
func (dm *DatabaseManager) Delete(ctx context.Context, name string) error {
	_, err := dm.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		return nil, conn.DatabaseDelete(ctx, name)
	})
	return asErrorOrNil(err)
}

// Schema returns the full type-and-data schema definition of a database.
func (dm *DatabaseManager) Schema(ctx context.Context, name string) (string, error) {
	result, err := dm.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		resp, err := conn.DatabaseSchema(ctx, name)
		if err != nil {
			return nil, err
		}
		return resp.Text, nil
	})
	if err != nil {
		return "", asError(err)
	}
	return result.(string), nil
}

// TypeSchema returns just the type-definition subset of a database's
// schema, omitting rules and stored data.
func (dm *DatabaseManager) TypeSchema(ctx context.Context, name string) (string, error) {
	result, err := dm.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		resp, err := conn.DatabaseTypeSchema(ctx, name)
		if err != nil {
			return nil, err
		}
		return resp.Text, nil
	})
	if err != nil {
		return "", asError(err)
	}
	return result.(string), nil
}

// Export streams a full schema-and-data export of database name, invoking
// onChunk with each chunk of the export in order.
func (dm *DatabaseManager) Export(ctx context.Context, name string, onChunk func([]byte) error) error {
	_, err := dm.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		return nil, conn.DatabaseExport(ctx, name, onChunk)
	})
	return asErrorOrNil(err)
}

// Import recreates a database named name from a schema definition
// previously produced by Export.
func (dm *DatabaseManager) Import(ctx context.Context, name, schema string) error {
	_, err := dm.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		return nil, conn.DatabaseImport(ctx, name, schema)
	})
	return asErrorOrNil(err)
}

func asErrorOrNil(err error) error {
	if err == nil {
		return nil
	}
	return asError(err)
}
