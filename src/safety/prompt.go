// Package safety gates destructive CLI actions behind --dry-run and an
// interactive confirmation.
package safety

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks question on out and reads the answer from in.
//   - DryRun declines without prompting and without error.
//   - Yes accepts without prompting.
//
// Only "y" and "yes" (any case) accept.
func Confirm(opts Options, in io.Reader, out io.Writer, question string) (bool, error) {
	if opts.DryRun {
		return false, nil
	}
	if opts.Yes {
		return true, nil
	}
	if out != nil {
		fmt.Fprintf(out, "%s [y/N]: ", strings.TrimSpace(question))
	}
	if in == nil {
		return false, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	ans := strings.ToLower(strings.TrimSpace(line))
	return ans == "y" || ans == "yes", nil
}

// Plan prints the steps a dry run would take, one per line.
func Plan(out io.Writer, action string, steps ...string) {
	if out == nil {
		return
	}
	fmt.Fprintf(out, "[dry-run] %s\n", action)
	for _, s := range steps {
		fmt.Fprintf(out, "  - %s\n", s)
	}
}
