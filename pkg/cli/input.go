package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readSQL returns the statement from the arguments, or from stdin when no
// arguments are given and stdin is not a terminal.
func readSQL(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("no SQL given: pass it as an argument or pipe it on stdin")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	sql := strings.TrimSpace(string(data))
	if sql == "" {
		return "", errors.New("no SQL given: pass it as an argument or pipe it on stdin")
	}
	return sql, nil
}

// parseBindings types --bind values: integers become int64, True/False
// booleans, None nil, and anything else stays a string.
func parseBindings(raw map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(raw))
	for name, v := range raw {
		switch {
		case v == "None":
			out[name] = nil
		case v == "True" || v == "False":
			out[name] = v == "True"
		default:
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				out[name] = n
			} else {
				out[name] = v
			}
		}
	}
	return out
}
