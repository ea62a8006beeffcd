package typedb

import (
	"context"

	"github.com/typedb/typedb-driver-sub001/internal/server"
)

// UserManager is the driver's thin view onto user-management requests,
// mirroring DatabaseManager: each call is one strongly-consistent round
// trip to the primary.
type UserManager struct {
	driver *Driver
}

// All lists every username the cluster knows about.
func (um *UserManager) All(ctx context.Context) ([]string, error) {
	result, err := um.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		resp, err := conn.UsersAll(ctx)
		if err != nil {
			return nil, err
		}
		return resp.Usernames, nil
	})
	if err != nil {
		return nil, asError(err)
	}
	return result.([]string), nil
}

// Contains reports whether a user named username exists.
func (um *UserManager) Contains(ctx context.Context, username string) (bool, error) {
	names, err := um.All(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == username {
			return true, nil
		}
	}
	return false, nil
}

// Create creates a new user with the given username and password.
func (um *UserManager) Create(ctx context.Context, username, password string) error {
	_, err := um.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		return nil, conn.UserCreate(ctx, username, password)
	})
	return asErrorOrNil(err)
}

// UpdatePassword changes the password of an existing user.
func (um *UserManager) UpdatePassword(ctx context.Context, username, password string) error {
	_, err := um.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		return nil, conn.UserUpdatePassword(ctx, username, password)
	})
	return asErrorOrNil(err)
}

// Delete deletes the user named username.
func (um *UserManager) Delete(ctx context.Context, username string) error {
	_, err := um.driver.manager.Execute(ctx, StrongConsistency(), func(ctx context.Context, conn *server.Connection) (any, error) {
		return nil, conn.UserDelete(ctx, username)
	})
	return asErrorOrNil(err)
}
