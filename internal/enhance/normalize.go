package enhance

import (
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"
)

// Default hosts for the Feishu in-app link preview and the diagram viewer.
const (
	DefaultPreviewHost = "applink.feishu.cn"
	DefaultViewerHost  = "yourmermaidparser.com"
)

var (
	diagramFencePattern  = regexp.MustCompile("(?s)```mermaid\\s*(.*?)\\s*```")
	markdownFencePattern = regexp.MustCompile("(?s)```markdown\\s*(.*?)\\s*```")
	imagePattern         = regexp.MustCompile(`(?s)!\[(.*?)\]\((.*?)\)`)
)

// NormalizerConfig configures link targets and labels of a Normalizer.
type NormalizerConfig struct {
	PreviewHost string
	ViewerHost  string
	Phrases     Phrases
}

// Normalizer rewrites agent replies so Feishu renders them as intended.
type Normalizer struct {
	previewBase string
	viewerBase  string
	phrases     Phrases
}

func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	previewHost := strings.TrimSpace(cfg.PreviewHost)
	if previewHost == "" {
		previewHost = DefaultPreviewHost
	}
	viewerHost := strings.TrimSpace(cfg.ViewerHost)
	if viewerHost == "" {
		viewerHost = DefaultViewerHost
	}
	return &Normalizer{
		previewBase: hostBaseURL(previewHost),
		viewerBase:  hostBaseURL(viewerHost),
		phrases:     PhrasesFor("").Merge(cfg.Phrases),
	}
}

func hostBaseURL(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}

// Normalize runs the rewrite pipeline over a reply. It reports false when the
// input is blank or nothing is left after normalization.
func (n *Normalizer) Normalize(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	// mermaid fences may sit inside markdown fences, convert them before unwrapping
	out := n.ConvertDiagrams(text)
	out = StripMarkdownFences(out)
	out = n.ConvertImages(out)
	out = StripTags(out)
	if strings.TrimSpace(out) == "" {
		return "", false
	}
	return out, true
}

// PreviewURL wraps target in the Feishu sidebar link-preview URL.
func (n *Normalizer) PreviewURL(target string) string {
	return n.previewBase + "/client/web_url/open?mode=sidebar-semi&max_width=800&reload=false&url=" + url.QueryEscape(target)
}

// DiagramURL returns the viewer URL rendering the given mermaid source.
func (n *Normalizer) DiagramURL(source string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(strings.TrimSpace(source)))
	return n.viewerBase + "/mermaid/?base64=" + url.QueryEscape(encoded)
}

// ConvertDiagrams replaces mermaid fences with a preview link to the rendered diagram.
func (n *Normalizer) ConvertDiagrams(text string) string {
	return replaceSubmatches(diagramFencePattern, text, func(groups []string) string {
		return "\n[" + n.phrases.DiagramLabel + "](" + n.PreviewURL(n.DiagramURL(groups[1])) + ")\n"
	})
}

// StripMarkdownFences unwraps ```markdown fences; other languages are untouched.
func StripMarkdownFences(text string) string {
	return replaceSubmatches(markdownFencePattern, text, func(groups []string) string {
		return "\n" + strings.TrimSpace(groups[1]) + "\n"
	})
}

// ConvertImages turns ![alt](url) into a preview link. Feishu treats image
// syntax as an image_key reference, which breaks for plain URLs.
func (n *Normalizer) ConvertImages(text string) string {
	return replaceSubmatches(imagePattern, text, func(groups []string) string {
		label := groups[1]
		if label == "" {
			label = n.phrases.ImageLabel
		}
		return "[" + label + "](" + n.PreviewURL(groups[2]) + ")"
	})
}

func replaceSubmatches(re *regexp.Regexp, text string, fn func(groups []string) string) string {
	matches := re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		groups := make([]string, len(m)/2)
		for i := range groups {
			if m[2*i] >= 0 {
				groups[i] = text[m[2*i]:m[2*i+1]]
			}
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(fn(groups))
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
