package storage

import "fmt"

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/difftrack/internal/storage."+typeMethod+": "+format, a...)
}
