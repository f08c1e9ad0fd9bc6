package codec

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/hengadev/serializers/primitive"
)

// HTMLRenderer writes mappings as two-column tables and sequences as
// unordered lists. Text that is a URL becomes a link.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(w io.Writer, data any, _ Options) error {
	bw := bufio.NewWriter(w)
	if err := writeHTML(bw, data); err != nil {
		return err
	}
	return bw.Flush()
}

func writeHTML(w *bufio.Writer, v any) error {
	switch val := v.(type) {
	case *primitive.Map:
		w.WriteString("<table>\n")
		for _, key := range val.Keys() {
			fmt.Fprintf(w, "<tr><td>%s</td><td>", html.EscapeString(key))
			item, _ := val.Get(key)
			if err := writeHTML(w, item); err != nil {
				return err
			}
			w.WriteString("</td></tr>\n")
		}
		w.WriteString("</table>\n")
		return nil
	case []any:
		w.WriteString("<ul>\n")
		for _, item := range val {
			w.WriteString("<li>")
			if err := writeHTML(w, item); err != nil {
				return err
			}
			w.WriteString("</li>")
		}
		w.WriteString("</ul>\n")
		return nil
	}
	if !primitive.IsScalar(v) {
		return fmt.Errorf("html: %T is not a primitive value", v)
	}
	w.WriteString(urlize(primitive.Text(v)))
	return nil
}

func urlize(text string) string {
	escaped := html.EscapeString(text)
	if !strings.ContainsAny(text, " \t\n") && (strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://")) {
		return fmt.Sprintf(`<a href="%s">%s</a>`, escaped, escaped)
	}
	return escaped
}
