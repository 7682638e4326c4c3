package hfhub

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var modelHrefPattern = regexp.MustCompile(`/models/([^/?#]+/[^/?#]+)`)

// ExtractTrainedModels scans a dataset page for models trained or
// fine-tuned on the dataset. Two sources feed the result: anchor links
// under a heading that mentions trained/fine-tuned models, and embedded
// application/json script blocks carrying a models list. Absent or
// malformed sections contribute nothing; the page never errors.
func ExtractTrainedModels(pageHTML string) []string {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "h2", "h3", "h4":
			if !trainedModelsHeading(textContent(n)) {
				return
			}
			container := nextSiblingElement(n, "div", "section", "ul", "ol")
			if container == nil {
				container = n.Parent
			}
			if container == nil {
				return
			}
			walk(container, func(c *html.Node) {
				if c.Type == html.ElementNode && c.Data == "a" {
					if m := modelHrefPattern.FindStringSubmatch(attr(c, "href")); m != nil {
						add(m[1])
					}
				}
			})
		case "script":
			if attr(n, "type") != "application/json" {
				return
			}
			for _, id := range modelsFromJSONBlock(textContent(n)) {
				add(id)
			}
		}
	})
	return out
}

// trainedModelsHeading matches headings like "Models trained or fine-tuned
// on squad".
func trainedModelsHeading(text string) bool {
	t := strings.ToLower(text)
	if !strings.Contains(t, "model") {
		return false
	}
	return strings.Contains(t, "train") ||
		strings.Contains(t, "fine-tun") ||
		strings.Contains(t, "finetun")
}

func modelsFromJSONBlock(raw string) []string {
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	models, ok := data["models"].([]any)
	if !ok {
		return nil
	}
	var ids []string
	for _, m := range models {
		obj, ok := m.(map[string]any)
		if !ok {
			continue
		}
		if id, ok := obj["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// nextSiblingElement returns the first following sibling whose element name
// is one of names, skipping anything else in between.
func nextSiblingElement(n *html.Node, names ...string) *html.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type != html.ElementNode {
			continue
		}
		for _, name := range names {
			if s.Data == name {
				return s
			}
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
