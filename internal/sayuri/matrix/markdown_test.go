package matrix_test

import (
	"strings"
	"testing"

	"github.com/bdobrica/Sayuri/internal/sayuri/matrix"
)

func TestRenderMarkdownBold(t *testing.T) {
	got := matrix.RenderMarkdown("Removed: **42** accounts")
	if !strings.Contains(got, "<strong>42</strong>") {
		t.Errorf("bold not rendered: %q", got)
	}
}

func TestRenderMarkdownItalicAndCode(t *testing.T) {
	got := matrix.RenderMarkdown("send _stop_ or `progress`")
	if !strings.Contains(got, "<em>stop</em>") {
		t.Errorf("italic not rendered: %q", got)
	}
	if !strings.Contains(got, "<code>progress</code>") {
		t.Errorf("inline code not rendered: %q", got)
	}
}

func TestRenderMarkdownNewlines(t *testing.T) {
	got := matrix.RenderMarkdown("line one\nline two")
	if !strings.Contains(got, "line one<br/>line two") {
		t.Errorf("newline not converted: %q", got)
	}
}

func TestRenderMarkdownCodeBlockEscapesHTML(t *testing.T) {
	got := matrix.RenderMarkdown("```\n<script>alert(1)</script>\n```")
	if !strings.Contains(got, "<pre><code>") || !strings.Contains(got, "</code></pre>") {
		t.Fatalf("code block not rendered: %q", got)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("HTML inside a code block must be escaped: %q", got)
	}
}

func TestRenderMarkdownUnmatchedDelimiter(t *testing.T) {
	in := "a lonely ** marker"
	got := matrix.RenderMarkdown(in)
	if strings.Contains(got, "<strong>") {
		t.Errorf("unmatched delimiter must be left alone: %q", got)
	}
}
