// Package hierarchy builds in-memory trees of a local directory or a remote bucket
// so the two sides can be compared level by level.
package hierarchy

import (
	"errors"
	"fmt"
	"sort"
)

type NodeType int

const (
	File NodeType = iota
	Folder
)

func (t NodeType) String() string {
	if t == Folder {
		return "folder"
	}
	return "file"
}

func (t NodeType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *NodeType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "file":
		*t = File
	case "folder":
		*t = Folder
	default:
		return fmt.Errorf("unknown node type %q", b)
	}
	return nil
}

// Node is one file-system entry or remote key segment.
//
// Path is the absolute local path for local trees and the object key for remote
// trees. Remote folders carry their prefix without the trailing slash.
// Children keep discovery order and have unique names; files have none.
type Node struct {
	Name     string   `json:"name" yaml:"name"`
	Path     string   `json:"path" yaml:"path"`
	Type     NodeType `json:"type" yaml:"type"`
	Children []*Node  `json:"children,omitempty" yaml:"children,omitempty"`
}

func NewFolder(name, path string) *Node {
	return &Node{Name: name, Path: path, Type: Folder, Children: []*Node{}}
}

func NewFile(name, path string) *Node {
	return &Node{Name: name, Path: path, Type: File}
}

func (n *Node) IsFolder() bool {
	return n.Type == Folder
}

// ChildIndex maps child names to nodes for constant time lookups.
func (n *Node) ChildIndex() map[string]*Node {
	idx := make(map[string]*Node, len(n.Children))
	for _, c := range n.Children {
		idx[c.Name] = c
	}
	return idx
}

// SkipChildren returned from a WalkFunc skips the current folder's children.
var SkipChildren = errors.New("skip children")

type WalkFunc func(n *Node, depth int) error

// Walk visits n and its descendants depth-first in child order.
func Walk(n *Node, fn WalkFunc) error {
	err := walk(n, 0, fn)
	if errors.Is(err, SkipChildren) {
		return nil
	}
	return err
}

func walk(n *Node, depth int, fn WalkFunc) error {
	if err := fn(n, depth); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := walk(c, depth+1, fn); err != nil && !errors.Is(err, SkipChildren) {
			return err
		}
	}
	return nil
}

// Find returns the node whose Path equals path, or nil.
func Find(root *Node, path string) *Node {
	var found *Node
	_ = walk(root, 0, func(n *Node, _ int) error {
		if found != nil {
			return SkipChildren
		}
		if n.Path == path {
			found = n
			return SkipChildren
		}
		return nil
	})
	return found
}

// FindFileByName returns the first file named name in depth-first order.
// Different folders may hold files with the same name, so prefer Find.
func FindFileByName(root *Node, name string) *Node {
	var found *Node
	_ = walk(root, 0, func(n *Node, _ int) error {
		if found != nil {
			return SkipChildren
		}
		if n.Type == File && n.Name == name {
			found = n
		}
		return nil
	})
	return found
}

func CountFiles(root *Node) int {
	count := 0
	_ = Walk(root, func(n *Node, _ int) error {
		if n.Type == File {
			count++
		}
		return nil
	})
	return count
}

// Files flattens the tree into the paths of its file nodes.
func Files(root *Node) []string {
	var paths []string
	_ = Walk(root, func(n *Node, _ int) error {
		if n.Type == File {
			paths = append(paths, n.Path)
		}
		return nil
	})
	return paths
}

// SortChildren orders every folder recursively, folders before files, then by name.
func SortChildren(n *Node) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.Type != b.Type {
			return a.Type == Folder
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		SortChildren(c)
	}
}
