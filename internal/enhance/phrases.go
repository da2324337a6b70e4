package enhance

import "strings"

// Phrases holds the fixed user-facing strings emitted by the enhancer.
type Phrases struct {
	DefaultGreeting   string
	UnsupportedNotice string
	DiagramLabel      string
	ImageLabel        string
}

var localePhrases = map[string]Phrases{
	"en": {
		DefaultGreeting:   "How can I help you?",
		UnsupportedNotice: "I can't process images, voice messages or files yet. Please send me a text message.",
		DiagramLabel:      "diagram",
		ImageLabel:        "reference image",
	},
	"zh": {
		DefaultGreeting:   "请问有什么可以帮助你？",
		UnsupportedNotice: "我暂时还无法处理图片、语音、文件等非文本消息， 请使用文本消息与我交流",
		DiagramLabel:      "流程图",
		ImageLabel:        "参考图",
	},
}

// PhrasesFor returns the built-in phrases for locale ("en", "zh", "zh-CN", ...).
// Unknown locales fall back to English.
func PhrasesFor(locale string) Phrases {
	key := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(key, "-_"); i > 0 {
		key = key[:i]
	}
	if p, ok := localePhrases[key]; ok {
		return p
	}
	return localePhrases["en"]
}

// Merge returns p with every non-blank field of override applied.
func (p Phrases) Merge(override Phrases) Phrases {
	if v := strings.TrimSpace(override.DefaultGreeting); v != "" {
		p.DefaultGreeting = v
	}
	if v := strings.TrimSpace(override.UnsupportedNotice); v != "" {
		p.UnsupportedNotice = v
	}
	if v := strings.TrimSpace(override.DiagramLabel); v != "" {
		p.DiagramLabel = v
	}
	if v := strings.TrimSpace(override.ImageLabel); v != "" {
		p.ImageLabel = v
	}
	return p
}
