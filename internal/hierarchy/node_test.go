package hierarchy

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sample builds root → [docs → [img → [logo.png], readme.md], notes → [readme.md], a.txt]
func sample() *Node {
	root := NewFolder("repo", "")
	docs := NewFolder("docs", "docs")
	img := NewFolder("img", "docs/img")
	img.Children = append(img.Children, NewFile("logo.png", "docs/img/logo.png"))
	docs.Children = append(docs.Children, img, NewFile("readme.md", "docs/readme.md"))
	notes := NewFolder("notes", "notes")
	notes.Children = append(notes.Children, NewFile("readme.md", "notes/readme.md"))
	root.Children = append(root.Children, NewFile("a.txt", "a.txt"), docs, notes)
	return root
}

func TestFind(t *testing.T) {
	root := sample()

	n := Find(root, "notes/readme.md")
	require.NotNil(t, n)
	assert.Equal(t, "readme.md", n.Name)

	assert.Nil(t, Find(root, "missing"))
	assert.Equal(t, root, Find(root, ""))
}

func TestFindFileByName_FirstDepthFirst(t *testing.T) {
	n := FindFileByName(sample(), "readme.md")
	require.NotNil(t, n)
	assert.Equal(t, "docs/readme.md", n.Path)
	assert.Nil(t, FindFileByName(sample(), "img"))
}

func TestCountAndFiles(t *testing.T) {
	root := sample()
	assert.Equal(t, 4, CountFiles(root))
	assert.Equal(t, []string{"a.txt", "docs/img/logo.png", "docs/readme.md", "notes/readme.md"}, Files(root))
}

func TestSortChildren(t *testing.T) {
	root := sample()
	SortChildren(root)

	names := make([]string, 0, len(root.Children))
	for _, c := range root.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"docs", "notes", "a.txt"}, names)
}

func TestWalk_Depth(t *testing.T) {
	depths := map[string]int{}
	require.NoError(t, Walk(sample(), func(n *Node, depth int) error {
		depths[n.Path] = depth
		return nil
	}))
	assert.Equal(t, 0, depths[""])
	assert.Equal(t, 3, depths["docs/img/logo.png"])
}

func TestNodeType_JSON(t *testing.T) {
	data, err := json.Marshal(NewFolder("docs", "docs"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"docs","path":"docs","type":"folder"}`, string(data))

	var n Node
	require.NoError(t, json.Unmarshal([]byte(`{"name":"a","path":"a","type":"file"}`), &n))
	assert.Equal(t, File, n.Type)
}
