package worker

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfmark/shelfmark/pkg/models"
)

// CandidateFile is one eligible file discovered under a library path. It
// lives for a single pipeline pass and is never persisted.
type CandidateFile struct {
	Path    string
	Size    int64
	ModTime time.Time
	Ext     string
}

// Container formats get their mime type verified, since files can carry any
// extension. Text and Kindle formats sniff too unreliably to gate on.
var extensionMimeTypes = map[string][]string{
	".epub": {"application/epub+zip", "application/zip"},
}

// walkRoot enumerates candidate files under one library path. A candidate
// (an entry with an accepted extension) that cannot be read goes through
// onError and the traversal keeps going; unreadable directories are logged
// and skipped. Only an inaccessible root itself is returned as an error,
// which fails the scan.
func walkRoot(log logger.Logger, root *models.LibraryPath, visit func(CandidateFile), onError func(path string, err error)) error {
	realRoot, err := filepath.EvalSymlinks(root.Filepath)
	if err != nil {
		return errors.Wrapf(err, "library path %q is not accessible", root.Filepath)
	}
	if info, err := os.Stat(realRoot); err != nil {
		return errors.WithStack(err)
	} else if !info.IsDir() {
		return errors.Errorf("library path %q is not a directory", root.Filepath)
	}

	// Directories are tracked by resolved path so symlink cycles terminate.
	visited := map[string]struct{}{realRoot: {}}

	var walk func(dir string)
	walk = func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Warn("skipping unreadable directory", logger.Data{"path": dir, "err": err.Error()})
			return
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			info, err := os.Stat(path)
			if err != nil {
				// Dangling symlink or an entry we can't stat. If it wears an
				// accepted extension it would have been a candidate, so it
				// counts against the scan.
				if root.AcceptsExtension(strings.ToLower(filepath.Ext(path))) {
					onError(path, err)
				} else {
					log.Warn("skipping unreadable entry", logger.Data{"path": path, "err": err.Error()})
				}
				continue
			}

			if info.IsDir() {
				if !root.Recursive {
					continue
				}
				realDir, err := filepath.EvalSymlinks(path)
				if err != nil {
					log.Warn("skipping unresolvable directory", logger.Data{"path": path, "err": err.Error()})
					continue
				}
				if _, ok := visited[realDir]; ok {
					log.Warn("skipping already visited directory", logger.Data{"path": path, "resolved": realDir})
					continue
				}
				visited[realDir] = struct{}{}
				walk(path)
				continue
			}

			ext := strings.ToLower(filepath.Ext(path))
			if !root.AcceptsExtension(ext) {
				continue
			}

			if expected, ok := extensionMimeTypes[ext]; ok {
				mtype, err := mimetype.DetectFile(path)
				if err != nil {
					onError(path, err)
					continue
				}
				matched := false
				for _, want := range expected {
					if mtype.Is(want) {
						matched = true
						break
					}
				}
				if !matched {
					log.Warn("mime type is not expected for extension", logger.Data{"path": path, "mimetype": mtype.String()})
					continue
				}
			}

			visit(CandidateFile{
				Path:    path,
				Size:    info.Size(),
				ModTime: info.ModTime(),
				Ext:     ext,
			})
		}
	}
	walk(realRoot)

	return nil
}
