package transcript

import (
	"context"
	"errors"
)

// Store persists finalized entries per session.
type Store interface {
	Append(ctx context.Context, sessionID string, entries []Entry) error
	Close() error
}

// Stores fans entries out to several stores.
type Stores []Store

func (s Stores) Append(ctx context.Context, sessionID string, entries []Entry) error {
	var errs []error
	for _, store := range s {
		if err := store.Append(ctx, sessionID, entries); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s Stores) Close() error {
	var errs []error
	for _, store := range s {
		if err := store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
