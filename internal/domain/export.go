package domain

import (
	"strings"
	"unicode"
)

// ExportDocument is the downloadable snapshot of a project and its tasks.
type ExportDocument struct {
	Project
	Tasks []Task `json:"tasks"`
}

// NewExportDocument copies the task slice so later board changes do not leak
// into an export in progress.
func NewExportDocument(p Project, tasks []Task) ExportDocument {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	return ExportDocument{Project: p, Tasks: out}
}

// ExportFileName returns "<slug>-export.json" where the slug is the lower-cased
// project name with whitespace runs replaced by a single dash.
func ExportFileName(projectName string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range projectName {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String() + "-export.json"
}
