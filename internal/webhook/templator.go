package webhook

import (
	"regexp"
	"strings"
)

var razorBlockRe = regexp.MustCompile("```razor\\n([\\s\\S]*?)\\n```")

// CodeReply is a templator reply split around its first razor code block.
type CodeReply struct {
	Before  string `json:"before,omitempty"`
	Code    string `json:"code,omitempty"`
	After   string `json:"after,omitempty"`
	HasCode bool   `json:"has_code"`
}

// SplitCodeBlock splits text around the first ```razor fenced block. Without
// a block the whole text is returned in Before.
func SplitCodeBlock(text string) CodeReply {
	loc := razorBlockRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return CodeReply{Before: text}
	}
	return CodeReply{
		Before:  text[:loc[0]],
		Code:    text[loc[2]:loc[3]],
		After:   text[loc[1]:],
		HasCode: true,
	}
}

// TemplatorPrompt builds the instruction sent to the templator webhook.
// When a base template is supplied the model is asked to adapt it.
func TemplatorPrompt(request, baseTemplate string) string {
	request = strings.TrimSpace(request)
	if strings.TrimSpace(baseTemplate) != "" {
		return "Here is the Razor template to use as a base:\n\n" + baseTemplate +
			"\n\nNow, generate a check based on the following request: " + request
	}
	return "Imagine that you are a C# developer. Generate a Razor template for a check based on the following request: " + request
}
