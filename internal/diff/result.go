package diff

// Result lists the entries that differ between a local tree and a remote tree.
// Entries are repository-relative keys; folder-only entries end in "/".
type Result struct {
	NewFiles      []string `json:"new" yaml:"new"`
	ModifiedFiles []string `json:"modified" yaml:"modified"`
	DeletedFiles  []string `json:"deleted" yaml:"deleted"`
}

func (r Result) IsEmpty() bool {
	return r.Len() == 0
}

func (r Result) Len() int {
	return len(r.NewFiles) + len(r.ModifiedFiles) + len(r.DeletedFiles)
}

// Merge returns r with other's entries appended to each category.
func (r Result) Merge(other Result) Result {
	r.NewFiles = append(r.NewFiles, other.NewFiles...)
	r.ModifiedFiles = append(r.ModifiedFiles, other.ModifiedFiles...)
	r.DeletedFiles = append(r.DeletedFiles, other.DeletedFiles...)
	return r
}
