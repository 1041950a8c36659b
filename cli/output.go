package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// render writes v as indented JSON, or calls text for the text format.
func render(w io.Writer, format string, v interface{}, text func(tw *tabwriter.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func line(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}
