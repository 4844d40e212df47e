package storage

import (
	"os"
	"path/filepath"
)

// Usage reports on-disk sizes of the record database and each collection's indices.
type Usage struct {
	DatabaseBytes int64            `json:"database_bytes"`
	IndexBytes    map[string]int64 `json:"index_bytes"`
}

// Total returns the sum of all reported sizes.
func (u Usage) Total() int64 {
	total := u.DatabaseBytes
	for _, n := range u.IndexBytes {
		total += n
	}
	return total
}

// DiskUsage measures dbPath and, per collection, the listed index paths. The SQLite
// WAL and shared-memory files are counted with the database. Missing paths count as 0.
func DiskUsage(dbPath string, indexPaths map[string][]string) (Usage, error) {
	u := Usage{IndexBytes: make(map[string]int64, len(indexPaths))}
	n, err := pathsSize(dbPath, dbPath+"-wal", dbPath+"-shm")
	if err != nil {
		return u, err
	}
	u.DatabaseBytes = n
	for collection, paths := range indexPaths {
		n, err := pathsSize(paths...)
		if err != nil {
			return u, err
		}
		u.IndexBytes[collection] = n
	}
	return u, nil
}

func pathsSize(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		err = filepath.Walk(p, func(_ string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				total += fi.Size()
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
