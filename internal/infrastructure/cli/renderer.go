package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/doeshing/qw/internal/domain"
)

// Render writes the stage results in the requested mode.
//
// plain: every text, each stage after the first preceded by "--- <stage> ---".
// quiet: only the last produced text.
// json:  one line holding an object of stage name to text, in execution order.
func Render(out io.Writer, mode domain.OutputMode, results domain.StageResults) error {
	w := bufio.NewWriter(out)
	switch mode {
	case domain.OutputQuiet:
		if last, ok := results.Last(); ok {
			fmt.Fprintln(w, last.Text)
		}
	case domain.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(results); err != nil {
			return err
		}
	default:
		for i, res := range results {
			if i > 0 {
				fmt.Fprintf(w, "--- %s ---\n", res.Stage)
			}
			fmt.Fprintln(w, res.Text)
		}
	}
	return w.Flush()
}
