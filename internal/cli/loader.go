package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// StdinName is the query name used for queries read from standard input.
const StdinName = "-"

// Query is one query source loaded from a file or standard input.
type Query struct {
	Name string // file path, or "-" for stdin
	Text string
}

// LoadError represents an error that occurred while loading query files.
type LoadError struct {
	Code    string
	Message string
	Path    string // file path if available
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadQuery reads the query named by args: the first argument, or standard
// input when there is none or it is "-".
func LoadQuery(cmd *cobra.Command, args []string) (Query, error) {
	name := StdinName
	if len(args) > 0 {
		name = args[0]
	}
	return loadQueryFile(cmd.InOrStdin(), name)
}

// LoadQueries reads every named query file in order. A directory expands
// to its .overpassql and .op files.
func LoadQueries(cmd *cobra.Command, paths []string) ([]Query, error) {
	var queries []Query
	for _, path := range paths {
		files, err := expandQueryPath(path)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			q, err := loadQueryFile(cmd.InOrStdin(), f)
			if err != nil {
				return nil, err
			}
			queries = append(queries, q)
		}
	}
	return queries, nil
}

func loadQueryFile(stdin io.Reader, name string) (Query, error) {
	if name == StdinName {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return Query{}, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading stdin: %v", err)}
		}
		return Query{Name: name, Text: string(data)}, nil
	}

	data, err := os.ReadFile(name)
	if os.IsNotExist(err) {
		return Query{}, &LoadError{Code: ErrCodeNotFound, Message: "query file not found", Path: name}
	}
	if err != nil {
		return Query{}, &LoadError{Code: ErrCodeReadFailed, Message: err.Error(), Path: name}
	}
	return Query{Name: name, Text: string(data)}, nil
}

// expandQueryPath returns path itself, or the query files directly inside
// it when it is a directory.
func expandQueryPath(path string) ([]string, error) {
	if path == StdinName {
		return []string{path}, nil
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "query file not found", Path: path}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: err.Error(), Path: path}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err), Path: path}
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".overpassql", ".op":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no query files found", Path: path}
	}
	return files, nil
}

// Error code constants - unified across all CLI commands. Query errors
// use the bridge codes (PARSING_ERROR, UNSUPPORTED_DIALECT, ...) instead.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No query files found
	ErrCodeReadFailed  = "E004" // Query read failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeConfig      = "E006" // Invalid configuration
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeCache       = "E008" // Compile cache error
	ErrCodeDatabase    = "E009" // Database connection or EXPLAIN error
	ErrCodeInvalidFlag = "E010" // Malformed flag value
)
