package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// StoreUsageBytes returns the bytes on disk used by a snapshot store.
// Backing files that do not exist yet count as zero.
func StoreUsageBytes(s SnapshotStore) (int64, error) {
	return fileBytes(s.Paths()...)
}

func fileBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if info.IsDir() {
			return 0, fmt.Errorf("%s is a directory", p)
		}
		total += info.Size()
	}
	return total, nil
}
