package queue

import "strings"

// Location identifies which queue directory holds a file.
type Location int

const (
	LocUnknown Location = iota
	LocApproved
	LocPendingApproval
	LocNewWork
	LocDone
)

func (l Location) String() string {
	switch l {
	case LocApproved:
		return "approved"
	case LocPendingApproval:
		return "pending-approval"
	case LocNewWork:
		return "new-work"
	case LocDone:
		return "done"
	default:
		return "unknown"
	}
}

// Index is a point-in-time lookup from item identity to queue location.
// The state machine consults it instead of globbing directories directly,
// so stage determination is a pure function of one consistent snapshot.
type Index struct {
	dirs  Dirs
	names map[Location][]string
}

// NewIndex creates an index over the given layout. Call Refresh before the
// first lookup.
func NewIndex(dirs Dirs) *Index {
	return &Index{
		dirs:  dirs,
		names: map[Location][]string{},
	}
}

// Refresh rescans the tracked queue directories.
func (ix *Index) Refresh() error {
	for loc, dir := range map[Location]string{
		LocApproved:        ix.dirs.Approved,
		LocPendingApproval: ix.dirs.PendingApproval,
		LocNewWork:         ix.dirs.NewWork,
		LocDone:            ix.dirs.Done,
	} {
		files, err := Scan(dir)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(files))
		for _, f := range files {
			names = append(names, Stem(f))
		}
		ix.names[loc] = names
	}
	return nil
}

// Match reports whether any file at loc references the given stem. Matching
// is by substring: drafts and approvals embed the source item's stem in
// their own names.
func (ix *Index) Match(loc Location, stem string) bool {
	if stem == "" {
		return false
	}
	for _, name := range ix.names[loc] {
		if strings.Contains(name, stem) {
			return true
		}
	}
	return false
}

// Lookup returns the location currently holding stem, searched in pipeline
// priority order. LocUnknown means the item is not in any tracked queue.
func (ix *Index) Lookup(stem string) Location {
	for _, loc := range []Location{LocApproved, LocPendingApproval, LocNewWork, LocDone} {
		for _, name := range ix.names[loc] {
			if name == stem {
				return loc
			}
		}
	}
	return LocUnknown
}
