package source

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func siteFs(t *testing.T) afero.Fs {
	t.Helper()
	memFs := afero.NewMemMapFs()
	files := map[string]string{
		// id falls back to the file name.
		"site/models/page.toml": `
[[fields]]
name = "title"
`,
		"site/models/post.toml": `
id = "post"

[[fields]]
name = "title"

[[fields]]
name = "tags"
type = "strings"
tags = true

[[fields]]
name = "body"
type = "flow"
block_types = ["text"]
`,
		"site/flowblocks/text.toml": `
id = "text"

[[fields]]
name = "content"

[[fields]]
name = "tag"
inline = "1"
`,
		"site/content/record.toml": `
_model = "page"
title = "Home"
`,
		"site/content/blog/record.toml": `
_model = "page"
title = "Blog"
`,
		"site/content/blog/first/record.toml": `
_model = "post"
title = "First"
tags = ["go", "web"]

[[body]]
_flowblock = "text"
content = "intro"
tag = "Really Awesome"

[[body]]
_flowblock = "text"
content = "more"
`,
		"site/content/blog/first/photo.jpg": "jpeg bytes",
		"site/content/notes/deep/record.toml": `
_model = "page"
title = "Deep"
`,
	}
	for path, content := range files {
		if err := afero.WriteFile(memFs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return memFs
}

func TestLoad(t *testing.T) {
	tree, err := Load(siteFs(t), "site")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	models := tree.Models()
	if _, ok := models["page"]; !ok {
		t.Error("model page missing; the id should fall back to the file name")
	}
	post, ok := models["post"]
	if !ok {
		t.Fatal("model post missing")
	}
	tags, ok := post.Field("tags")
	if !ok || !tags.Flagged("tags") {
		t.Errorf("tags field = %+v, want a tags-flagged strings field", tags)
	}
	body, ok := post.Field("body")
	if !ok || !body.IsFlow() || !body.AllowsBlock("text") || body.AllowsBlock("video") {
		t.Errorf("body field = %+v, want a flow field restricted to text blocks", body)
	}
	if _, ok := tree.FlowModels()["text"]; !ok {
		t.Error("flow model text missing")
	}

	root := tree.Get("/")
	if root == nil || root.Get("title") != "Home" {
		t.Fatalf("root = %v, want the Home record", root)
	}

	first := tree.Get("/blog/first")
	if first == nil {
		t.Fatal("record /blog/first missing")
	}
	if first.ModelID() != "post" {
		t.Errorf("model = %q, want post", first.ModelID())
	}
	gotTags, ok := first.Get("tags").([]string)
	if !ok || len(gotTags) != 2 || gotTags[0] != "go" || gotTags[1] != "web" {
		t.Errorf("tags = %v, want [go web] as []string", first.Get("tags"))
	}
	srcs := first.SourceFilenames()
	if len(srcs) != 1 || srcs[0] != "site/content/blog/first/record.toml" {
		t.Errorf("source filenames = %v, want the record.toml path", srcs)
	}
}

func TestLoadFlowField(t *testing.T) {
	tree, err := Load(siteFs(t), "site")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	flow, ok := tree.Get("/blog/first").Get("body").(*Flow)
	if !ok {
		t.Fatalf("body = %T, want *Flow", tree.Get("/blog/first").Get("body"))
	}
	if len(flow.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(flow.Blocks))
	}

	b := flow.Blocks[0]
	if b.Type() != "text" {
		t.Errorf("block type = %q, want text", b.Type())
	}
	if got := b.Get("tag"); got != "Really Awesome" {
		t.Errorf("tag = %v, want Really Awesome", got)
	}
	// Keys follow the flow model's declaration order.
	keys := b.Keys()
	if len(keys) != 2 || keys[0] != "content" || keys[1] != "tag" {
		t.Errorf("keys = %v, want [content tag]", keys)
	}
	if got := flow.Blocks[1].Get("tag"); got != nil {
		t.Errorf("second block tag = %v, want nil", got)
	}
}

func TestLoadAttachments(t *testing.T) {
	tree, err := Load(siteFs(t), "site")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	at := tree.Get("/blog/first/photo.jpg")
	if at == nil {
		t.Fatal("attachment record missing")
	}
	mem, ok := at.(*MemRecord)
	if !ok || !mem.IsAttachment() {
		t.Errorf("record %v not loaded as an attachment", at)
	}
	srcs := at.SourceFilenames()
	if len(srcs) != 1 || srcs[0] != "site/content/blog/first/photo.jpg" {
		t.Errorf("source filenames = %v, want the attachment file", srcs)
	}
}

func TestLoadPassThroughDirectory(t *testing.T) {
	tree, err := Load(siteFs(t), "site")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// notes/ has no record.toml but still appears, keeping the deep
	// record reachable.
	notes := tree.Get("/notes")
	if notes == nil {
		t.Fatal("pass-through record /notes missing")
	}
	if notes.ModelID() != "" || notes.Get("title") != nil {
		t.Errorf("pass-through record has model %q fields %v", notes.ModelID(), notes.Get("title"))
	}
	if deep := tree.Get("/notes/deep"); deep == nil || deep.Get("title") != "Deep" {
		t.Errorf("deep record = %v, want the Deep record", deep)
	}
}

func TestLoadMissingContentDir(t *testing.T) {
	memFs := afero.NewMemMapFs()
	if _, err := Load(memFs, "site"); err == nil {
		t.Error("Load of an empty filesystem should fail")
	}
}

func TestLoadBadModelFile(t *testing.T) {
	memFs := siteFs(t)
	if err := afero.WriteFile(memFs, "site/models/broken.toml", []byte("id = ["), 0o644); err != nil {
		t.Fatalf("writing broken model: %v", err)
	}

	_, err := Load(memFs, "site")
	if err == nil {
		t.Fatal("Load should fail on a broken model file")
	}
	if !strings.Contains(err.Error(), "broken.toml") {
		t.Errorf("error %q does not name the broken file", err)
	}
}
