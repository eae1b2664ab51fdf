package river

import "strings"

// OutputInfo holds the naming fields an output advertises. Each arrives
// independently from the compositor; the empty string means "not seen".
type OutputInfo struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
}

// Label resolves the best-effort human label for the output.
//
// Precedence: name, then description, then "make model" trimmed when either
// part is set. ok is false when none of the fields is set.
func (i OutputInfo) Label() (label string, ok bool) {
	if i.Name != "" {
		return i.Name, true
	}
	if i.Description != "" {
		return i.Description, true
	}
	if label := strings.TrimSpace(i.Make + " " + i.Model); label != "" {
		return label, true
	}
	return "", false
}

// Merge overlays the non-empty fields of update onto i.
func (i OutputInfo) Merge(update OutputInfo) OutputInfo {
	if update.Name != "" {
		i.Name = update.Name
	}
	if update.Description != "" {
		i.Description = update.Description
	}
	if update.Make != "" {
		i.Make = update.Make
	}
	if update.Model != "" {
		i.Model = update.Model
	}
	return i
}
