package app

import (
	"path/filepath"
	"syscall"
)

// diskUsage returns usage stats for the filesystem holding path, or nil
// on error. Statfs wants an existing path, so a not-yet-created store
// file falls back to its directory.
func diskUsage(path string) map[string]any {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		if err = syscall.Statfs(filepath.Dir(path), &stat); err != nil {
			return nil
		}
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return map[string]any{
		"total_bytes":     total,
		"used_bytes":      total - stat.Bfree*uint64(stat.Bsize),
		"available_bytes": free,
	}
}
