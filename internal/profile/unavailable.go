package profile

import "context"

// UnavailableBackend stands in for durable storage that could not be opened.
// Loads and saves fail with a StorageError, so the store starts empty and
// registrations are reported as not saved.
type UnavailableBackend struct {
	Target string
	Err    error
}

// Load always fails.
func (b UnavailableBackend) Load(ctx context.Context) ([]Profile, error) {
	return nil, &StorageError{Op: "open", Path: b.Target, Err: b.Err}
}

// Save always fails.
func (b UnavailableBackend) Save(ctx context.Context, _ []Profile, _ Profile) error {
	return &StorageError{Op: "open", Path: b.Target, Err: b.Err}
}
