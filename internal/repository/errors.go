package repository

import "fmt"

type bucketCountError struct {
	name string
	got  int
}

func (e *bucketCountError) Error() string {
	return fmt.Sprintf("profile %q has %d buckets", e.name, e.got)
}
