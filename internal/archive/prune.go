package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// archived is one exchange file found on disk.
type archived struct {
	user string
	name string
	time time.Time
}

// scan lists every timestamp-named exchange file, grouped by user directory.
// Files that don't carry the timestamp prefix are skipped.
func (s *FileStore) scan() (map[string][]archived, error) {
	users, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	out := make(map[string][]archived)
	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.dir, u.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", u.Name(), err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") || len(e.Name()) < len(timestampLayout) {
				continue
			}
			t, err := time.Parse(timestampLayout, e.Name()[:len(timestampLayout)])
			if err != nil {
				continue
			}
			out[u.Name()] = append(out[u.Name()], archived{user: u.Name(), name: e.Name(), time: t})
		}
	}
	for _, files := range out {
		sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	}
	return out, nil
}

// remove deletes files unless dryRun is set and returns their relative paths.
func (s *FileStore) remove(files []archived, dryRun bool) ([]string, error) {
	var pruned []string
	for _, f := range files {
		rel := filepath.Join(f.user, f.name)
		if !dryRun {
			if err := os.Remove(filepath.Join(s.dir, rel)); err != nil {
				return pruned, fmt.Errorf("removing %s: %w", rel, err)
			}
		}
		pruned = append(pruned, rel)
	}
	return pruned, nil
}

// PruneByAge removes exchanges older than maxAge. If dryRun is true, nothing
// is deleted; the function only returns the files that would be removed.
func (s *FileStore) PruneByAge(maxAge time.Duration, dryRun bool) ([]string, error) {
	all, err := s.scan()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge)
	var old []archived
	for _, files := range all {
		for _, f := range files {
			if f.time.Before(cutoff) {
				old = append(old, f)
			}
		}
	}
	sort.Slice(old, func(i, j int) bool { return old[i].time.Before(old[j].time) })
	return s.remove(old, dryRun)
}

// PruneKeepRecent keeps only the newest keep exchanges of every user.
// If dryRun is true, nothing is deleted.
func (s *FileStore) PruneKeepRecent(keep int, dryRun bool) ([]string, error) {
	all, err := s.scan()
	if err != nil {
		return nil, err
	}

	users := make([]string, 0, len(all))
	for u := range all {
		users = append(users, u)
	}
	sort.Strings(users)

	var drop []archived
	for _, u := range users {
		files := all[u]
		if len(files) > keep {
			drop = append(drop, files[:len(files)-keep]...)
		}
	}
	return s.remove(drop, dryRun)
}
