package syncer

import "github.com/openmined/bucketsync/internal/hierarchy"

// FindEmptyDirectories returns the paths of folders below root that have no
// children at all. Reporting only the deepest ones is enough: a marker for
// "a/b/" also materializes "a/".
func FindEmptyDirectories(root *hierarchy.Node) []string {
	var dirs []string
	_ = hierarchy.Walk(root, func(n *hierarchy.Node, depth int) error {
		if depth > 0 && n.Type == hierarchy.Folder && len(n.Children) == 0 {
			dirs = append(dirs, n.Path)
		}
		return nil
	})
	return dirs
}
