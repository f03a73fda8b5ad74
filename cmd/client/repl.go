package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tuannm99/novaquery/sqlclient"
	"github.com/tuannm99/novaquery/sqlrequest"
)

const helpText = `meta commands:
  \q | quit | exit       quit
  \tz [zone]             show or set the time zone (e.g. \tz Europe/Paris)
  \next                  fetch the next page of the last query
  \history               print history
  \help                  show help

sql:
  end statement with ';'
  multiline is supported (CLI will wait until ';')`

type querier interface {
	Query(ctx context.Context, req *sqlrequest.Request) (*sqlclient.Page, error)
	Next(ctx context.Context, prev *sqlrequest.Request, cursor string) (*sqlclient.Page, error)
}

// session is the REPL state: the zone new statements run in and the last
// statement with its open cursor.
type session struct {
	cli     querier
	out     io.Writer
	tz      *time.Location
	last    *sqlrequest.Request
	cursor  string
	timeout time.Duration
}

func newSession(cli querier, out io.Writer, tz *time.Location) *session {
	return &session{cli: cli, out: out, tz: tz, timeout: 30 * time.Second}
}

func (s *session) exec(stmt string) {
	req := sqlrequest.NewQuery(stmt).SetTimeZone(s.tz)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	page, err := s.cli.Query(ctx, req)
	if err != nil {
		s.printError(err)
		return
	}
	s.last = req
	s.cursor = page.Cursor
	printPage(s.out, page)
}

func (s *session) next() {
	if s.last == nil || s.cursor == "" {
		fmt.Fprintln(s.out, "no open cursor")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	page, err := s.cli.Next(ctx, s.last, s.cursor)
	if err != nil {
		s.cursor = ""
		s.printError(err)
		return
	}
	s.cursor = page.Cursor
	printPage(s.out, page)
}

func (s *session) setZone(arg string) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		fmt.Fprintf(s.out, "time zone: %s\n", s.tz)
		return
	}
	loc, err := sqlrequest.ParseTimeZone(arg)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	s.tz = loc
	fmt.Fprintf(s.out, "time zone: %s\n", s.tz)
}

func (s *session) printError(err error) {
	var se *sqlclient.ServerError
	if errors.As(err, &se) && len(se.Failures) > 0 {
		for _, f := range se.Failures {
			fmt.Fprintf(s.out, "error: %s\n", f)
		}
		return
	}
	var ve *sqlrequest.ValidationError
	if errors.As(err, &ve) {
		for _, f := range ve.Failures {
			fmt.Fprintf(s.out, "error: %s\n", f)
		}
		return
	}
	fmt.Fprintf(s.out, "error: %v\n", err)
}

// statementComplete checks if we have a terminating ';' outside single quotes.
func statementComplete(buf string) bool {
	inQuote := false
	escaped := false

	for _, r := range buf {
		if escaped {
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		if r == '\'' {
			inQuote = !inQuote
			continue
		}
		if r == ';' && !inQuote {
			return true
		}
	}
	return false
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\") ||
		line == "quit" || line == "exit"
}

func printPage(w io.Writer, page *sqlclient.Page) {
	cols := page.Columns
	if len(cols) == 0 {
		fmt.Fprintln(w, "OK")
		return
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	for _, row := range page.Rows {
		for i := range cols {
			if i < len(row) && len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	printRow := func(values []string) {
		for i := range cols {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			v := ""
			if i < len(values) {
				v = values[i]
			}
			fmt.Fprint(w, padRight(v, widths[i]))
		}
		fmt.Fprintln(w)
	}

	printRow(cols)
	for i := range cols {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)
	for _, row := range page.Rows {
		printRow(row)
	}

	if page.Cursor != "" {
		fmt.Fprintf(w, "(%d rows, more available: \\next)\n", len(page.Rows))
		return
	}
	fmt.Fprintf(w, "(%d rows)\n", len(page.Rows))
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
