package parse

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Minimal XML tree. Names are local names only, so namespace
// prefixes and URIs never take part in matching.
type element struct {
	name     string
	attrs    map[string]string
	children []*element

	// Direct text and children in document order. Text is held
	// only by the element it appears in.
	content []segment
}

// Either a run of character data or a child element.
type segment struct {
	text  string
	child *element
}

func (e *element) attr(name string) string {
	return e.attrs[name]
}

// All character data of the element and its descendants, in
// document order.
func (e *element) innerText() string {
	b := strings.Builder{}
	e.writeText(&b)
	return b.String()
}

func (e *element) writeText(b *strings.Builder) {
	for _, seg := range e.content {
		if seg.child != nil {
			seg.child.writeText(b)
		} else {
			b.WriteString(seg.text)
		}
	}
}

func parseTree(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	var root *element
	stack := []*element{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{
				name:  t.Name.Local,
				attrs: make(map[string]string, len(t.Attr)),
			}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				el.attrs[a.Name.Local] = a.Value
			}

			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
				parent.content = append(parent.content, segment{child: el})
			}
			stack = append(stack, el)

		case xml.EndElement:
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) > 0 {
				el := stack[len(stack)-1]
				el.content = append(el.content, segment{text: string(t)})
			}
		}
	}

	if root == nil {
		return nil, errors.New("no root element")
	}

	return root, nil
}
