package prefs

import "fmt"

// Open returns the backend named kind ("file", "sqlite" or "memory") at path.
func Open(kind, path string) (Backend, error) {
	switch kind {
	case "file", "":
		if path == "" {
			return nil, fmt.Errorf("file preferences need a path")
		}
		return NewFileBackend(path), nil
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite preferences need a path")
		}
		return OpenSQLite(path)
	case "memory":
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown preferences backend %q", kind)
	}
}
