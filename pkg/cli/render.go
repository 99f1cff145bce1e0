package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"rawsql/internal/domain"
	"rawsql/internal/executor"
	"rawsql/internal/history"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderRewrite(w io.Writer, res *domain.RewriteResult) {
	_, _ = fmt.Fprintln(w, res.SQL)
	if len(res.Tables) == 0 {
		return
	}

	urls := make([]string, 0, len(res.Tables))
	for u := range res.Tables {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Resource"})
	for _, u := range urls {
		t.AppendRow(table.Row{res.Tables[u], u})
	}
	t.Render()
}

func renderResult(w io.Writer, res *executor.Result) {
	if len(res.Rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(res.Columns))
	for i, col := range res.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, values := range res.Rows {
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}
	t.Render()

	if res.Truncated {
		_, _ = fmt.Fprintf(w, "(%d rows, truncated)\n", len(res.Rows))
		return
	}
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
}

func renderHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "(no history)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "When", "Status", "Resources", "ms", "SQL"})
	for _, e := range entries {
		status := "ok"
		if e.ErrorKind != "" {
			status = e.ErrorKind
		}
		t.AppendRow(table.Row{e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04:05"), status, e.Resources, e.DurationMs, e.InputSQL})
	}
	t.Render()
}

func formatValue(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
