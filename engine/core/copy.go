package core

import (
	"fmt"

	"github.com/mohae/deepcopy"
)

// DeepCopy returns a deep copy of v. Nested maps, slices and pointers are
// copied too. On failure the zero value of T and an error are returned.
func DeepCopy[T any](v T) (T, error) {
	var zero T
	copied, ok := deepcopy.Copy(v).(T)
	if !ok {
		return zero, fmt.Errorf("failed to copy value of type %T", v)
	}
	return copied, nil
}

// CloneMap returns a deep copy of src so callers never share nested values
// with the original. A nil map stays nil.
func CloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	copied, err := DeepCopy(src)
	if err != nil {
		return CopyMaps(src)
	}
	return copied
}
