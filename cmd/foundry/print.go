package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dshills/foundry/internal/script"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printScripts(w io.Writer, root string, scripts []script.Script) {
	if len(scripts) == 0 {
		fmt.Fprintf(w, "no scripts in %s\n", root)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCRIPT\tKIND\tWEB APP")
	for _, s := range scripts {
		web := ""
		if s.WebApp {
			web = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.RelPath(root), s.Kind, web)
	}
	_ = tw.Flush()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
