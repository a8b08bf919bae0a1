package manifest

import "sort"

// DeltaPlan is the minimal set of file operations that transforms one
// installation state into another. Add and Update carry the remote
// manifest's entries (the content to fetch); Remove carries the local
// entries to delete. A path appears in at most one of the three lists.
type DeltaPlan struct {
	Add    []FileEntry
	Update []FileEntry
	Remove []FileEntry
}

// Empty reports whether the plan contains no operations.
func (p *DeltaPlan) Empty() bool {
	return len(p.Add) == 0 && len(p.Update) == 0 && len(p.Remove) == 0
}

// TransferSize returns the total bytes that must be downloaded to apply
// the plan (the sizes of all Add and Update entries).
func (p *DeltaPlan) TransferSize() int64 {
	var total int64
	for _, e := range p.Add {
		total += e.Size
	}
	for _, e := range p.Update {
		total += e.Size
	}
	return total
}

// FileCount returns how many files the plan touches.
func (p *DeltaPlan) FileCount() int {
	return len(p.Add) + len(p.Update) + len(p.Remove)
}

// Fetched returns the Add and Update entries, the files the fetcher must
// download and verify.
func (p *DeltaPlan) Fetched() []FileEntry {
	out := make([]FileEntry, 0, len(p.Add)+len(p.Update))
	out = append(out, p.Add...)
	out = append(out, p.Update...)
	return out
}

// Diff computes the delta from local to remote. It is a pure function of
// the two manifests: disk state is never consulted, so a file present on
// disk but absent from local is still treated as an addition and simply
// overwritten when the plan is applied. Output lists are sorted by path.
func Diff(local, remote *Manifest) *DeltaPlan {
	plan := &DeltaPlan{}

	localByPath := make(map[string]FileEntry, len(local.Files))
	for _, e := range local.Files {
		localByPath[e.Path] = e
	}

	remotePaths := make(map[string]bool, len(remote.Files))
	for _, re := range remote.Files {
		remotePaths[re.Path] = true
		le, ok := localByPath[re.Path]
		switch {
		case !ok:
			plan.Add = append(plan.Add, re)
		case !le.SameContent(re):
			plan.Update = append(plan.Update, re)
		}
	}

	for _, le := range local.Files {
		if !remotePaths[le.Path] {
			plan.Remove = append(plan.Remove, le)
		}
	}

	for _, s := range [][]FileEntry{plan.Add, plan.Update, plan.Remove} {
		sort.Slice(s, func(i, j int) bool { return s[i].Path < s[j].Path })
	}
	return plan
}
