// Package markup turns annotated text into an HTML fragment that translation
// providers pass through untouched, and rebuilds annotations from the
// translated fragment.
package markup

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"horse.fit/translationtower/internal/model"
)

const idAttr = "id"

// CheckText reports characters the HTML parser would drop or rewrite on the
// way back: NUL, carriage returns and other control characters except tab and
// newline. Either would shift every later annotation offset.
func CheckText(text string) error {
	offset := 0
	for _, r := range text {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return fmt.Errorf("control character %U at offset %d cannot carry annotations", r, offset)
		}
		offset++
	}
	return nil
}

// Encode wraps every run of annotated characters in a <b id="N"> element.
//
// Whitespace never belongs to a run, so two annotated words are always split
// into separate elements even when they carry the same annotations. Decode
// only restores text that passes CheckText.
func Encode(text string, annotations []model.Annotation) (string, *model.Sidecar) {
	sidecar := model.NewSidecar()
	for id, annotation := range annotations {
		sidecar.Labels[id] = annotation.Label
	}

	runes := []rune(text)
	classes := classify(runes, annotations)

	root := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
	elementID := 0
	for start := 0; start < len(runes); {
		end := start + 1
		for end < len(runes) && slices.Equal(classes[end], classes[start]) {
			end++
		}
		part := string(runes[start:end])

		if len(classes[start]) == 0 {
			root.AppendChild(&html.Node{Type: html.TextNode, Data: part})
		} else {
			id := strconv.Itoa(elementID)
			element := &html.Node{
				Type:     html.ElementNode,
				Data:     "b",
				DataAtom: atom.B,
				Attr:     []html.Attribute{{Key: idAttr, Val: id}},
			}
			element.AppendChild(&html.Node{Type: html.TextNode, Data: part})
			root.AppendChild(element)
			sidecar.Elements[id] = slices.Clone(classes[start])
			elementID++
		}
		start = end
	}

	var buf bytes.Buffer
	// Rendering an in-memory tree only fails on writer errors; bytes.Buffer has none.
	_ = html.Render(&buf, root)
	return buf.String(), sidecar
}

func classify(runes []rune, annotations []model.Annotation) [][]int {
	classes := make([][]int, len(runes))
	for i, r := range runes {
		if unicode.IsSpace(r) {
			continue
		}
		for id, annotation := range annotations {
			if annotation.Start <= i && i < annotation.Stop {
				classes[i] = append(classes[i], id)
			}
		}
	}
	return classes
}

type taggedChar struct {
	index int
	ids   map[int]struct{}
}

// Decode parses markup produced by Encode (possibly translated since) and
// returns the plain text with annotations rebuilt from the sidecar.
func Decode(markup string, sidecar *model.Sidecar) (string, []model.Annotation, error) {
	if sidecar == nil {
		sidecar = model.NewSidecar()
	}

	parent := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return "", nil, fmt.Errorf("parse markup: %w", err)
	}

	var (
		text     strings.Builder
		chars    []taggedChar
		observed = map[int]struct{}{}
		offset   int
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			ids := ancestorAnnotations(n, sidecar)
			for id := range ids {
				observed[id] = struct{}{}
			}
			for _, r := range n.Data {
				if !unicode.IsSpace(r) {
					chars = append(chars, taggedChar{index: offset, ids: ids})
				}
				text.WriteRune(r)
				offset++
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	ids := make([]int, 0, len(observed))
	for id := range observed {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	annotations := make([]model.Annotation, 0, len(ids))
	for _, id := range ids {
		label := sidecar.Labels[id]
		runStart, runLast := -1, -1
		for _, c := range chars {
			if _, ok := c.ids[id]; ok {
				if runStart < 0 {
					runStart = c.index
				}
				runLast = c.index
				continue
			}
			if runStart >= 0 {
				annotations = append(annotations, newAnnotation(label, runStart, runLast+1, id))
				runStart = -1
			}
		}
		if runStart >= 0 {
			annotations = append(annotations, newAnnotation(label, runStart, runLast+1, id))
		}
	}

	return text.String(), annotations, nil
}

// ancestorAnnotations unions the annotation ids of every element above a text
// node. Text inside an element therefore carries that element's ids while text
// following it (its tail) does not.
func ancestorAnnotations(n *html.Node, sidecar *model.Sidecar) map[int]struct{} {
	ids := map[int]struct{}{}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		for _, attr := range p.Attr {
			if attr.Key != idAttr {
				continue
			}
			for _, id := range sidecar.Elements[attr.Val] {
				ids[id] = struct{}{}
			}
		}
	}
	return ids
}

func newAnnotation(label string, start, stop, origin int) model.Annotation {
	o := origin
	return model.Annotation{Label: label, Start: start, Stop: stop, Origin: &o}
}
