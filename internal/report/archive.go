package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Archiver writes finished run reports as newline-delimited JSON.
type Archiver struct {
	enc *json.Encoder
}

func NewArchiver(w io.Writer) *Archiver {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	return &Archiver{enc: enc}
}

func (a *Archiver) Append(r Report) error {
	return a.enc.Encode(r)
}

// AppendFile appends one report line to the archive at path, creating
// the file on first use.
func AppendFile(path string, r Report) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	if err := NewArchiver(f).Append(r); err != nil {
		f.Close()
		return fmt.Errorf("append report: %w", err)
	}
	return f.Close()
}
