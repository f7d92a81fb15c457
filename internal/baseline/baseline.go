// Package baseline provides the original content of documents whose
// tracking starts without an explicit baseline.
package baseline

import (
	"errors"
	"os"

	pkgerrors "github.com/pkg/errors"
)

// ErrNoBaseline is returned by sources that know nothing about a document.
var ErrNoBaseline = errors.New("no baseline")

type Source interface {
	// Baseline returns the original content of the document at path.
	Baseline(path string) (string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(path string) (string, error)

func (f SourceFunc) Baseline(path string) (string, error) {
	return f(path)
}

// Disk uses the content of the file as it is on disk. A file that does
// not exist is a new document, whose baseline is empty.
type Disk struct{}

func (Disk) Baseline(path string) (string, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.WithStack(err)
	}
	return string(b), nil
}
