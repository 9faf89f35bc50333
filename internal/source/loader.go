package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"contractaid/internal/contextutil"
	"contractaid/internal/document"
)

// IOError reports that the session root could not be read.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error on %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// LoadWarning records a file or directory that was skipped during loading.
type LoadWarning struct {
	Path string
	Err  error
}

func (w LoadWarning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// skippedDirs are never descended into.
var skippedDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
}

// Loader reads source files of one language from a directory tree.
type Loader struct {
	lang     document.LanguageSpec
	readFile func(name string) ([]byte, error)
}

// NewLoader creates a loader filtering by the language's extensions.
func NewLoader(lang document.LanguageSpec) *Loader {
	return &Loader{lang: lang, readFile: os.ReadFile}
}

type scannedFile struct {
	relPath string
	absPath string
}

// Load walks root recursively and returns one Document per matching file,
// ordered by directory and then by file name. Files that cannot be read are
// reported as warnings; only an unreadable root is an error.
func (l *Loader) Load(ctx context.Context, root string) ([]document.Document, []LoadWarning, error) {
	logger := contextutil.LoggerFromContext(ctx)

	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, &IOError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, nil, &IOError{Path: root, Err: errors.New("not a directory")}
	}

	var (
		files    []scannedFile
		warnings []LoadWarning
	)

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			if p == root {
				return &IOError{Path: root, Err: walkErr}
			}
			warnings = append(warnings, LoadWarning{Path: p, Err: walkErr})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if _, skip := skippedDirs[d.Name()]; skip && p != root {
				return filepath.SkipDir
			}
			return nil
		}

		if !l.lang.Matches(d.Name()) {
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks to regular files are loaded like the file itself.
			if err := regularTarget(p, d); err != nil {
				logger.WarnContext(ctx, "skipping source file", "path", p, "error", err)
				warnings = append(warnings, LoadWarning{Path: p, Err: err})
				return nil
			}
		}

		relPath, err := filepath.Rel(root, p)
		if err != nil {
			warnings = append(warnings, LoadWarning{Path: p, Err: err})
			return nil
		}
		files = append(files, scannedFile{relPath: filepath.ToSlash(relPath), absPath: p})
		return nil
	})
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			return nil, nil, ioErr
		}
		return nil, nil, err
	}

	sortFiles(files)

	docs := make([]document.Document, 0, len(files))
	for _, f := range files {
		content, err := l.readFile(f.absPath)
		if err != nil {
			logger.WarnContext(ctx, "skipping unreadable file", "path", f.relPath, "error", err)
			warnings = append(warnings, LoadWarning{Path: f.relPath, Err: err})
			continue
		}
		docs = append(docs, document.Document{SourcePath: f.relPath, RawText: string(content)})
	}

	logger.InfoContext(ctx, "loaded source files",
		"root", root,
		"language", string(l.lang.Tag),
		"documents", len(docs),
		"warnings", len(warnings),
	)
	return docs, warnings, nil
}

// regularTarget returns nil when d is a symlink resolving to a regular file.
func regularTarget(p string, d fs.DirEntry) error {
	if d.Type()&fs.ModeSymlink == 0 {
		return fmt.Errorf("not a regular file (%s)", d.Type())
	}
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("broken symlink: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("symlink target is not a regular file (%s)", info.Mode().Type())
	}
	return nil
}

// sortFiles orders files by containing directory, then by base name.
func sortFiles(files []scannedFile) {
	sort.SliceStable(files, func(i, j int) bool {
		di, dj := path.Dir(files[i].relPath), path.Dir(files[j].relPath)
		if di != dj {
			return di < dj
		}
		return path.Base(files[i].relPath) < path.Base(files[j].relPath)
	})
}
