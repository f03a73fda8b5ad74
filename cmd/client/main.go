package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tuannm99/novaquery/sqlclient"
	"github.com/tuannm99/novaquery/sqlrequest"
)

type options struct {
	addr       string
	timeout    time.Duration
	retryFor   time.Duration
	zone       string
	histPath   string
	histMax    int
	oneShotSQL string
}

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:          "novaquery",
		Short:        "Interactive client for a novaquery server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&opts.addr, "addr", "127.0.0.1:8866", "server address")
	f.DurationVar(&opts.timeout, "timeout", 3*time.Second, "dial timeout")
	f.DurationVar(&opts.retryFor, "retry-for", 0, "keep retrying the dial for this long")
	f.StringVar(&opts.zone, "tz", "UTC", "time zone statements run in")
	f.StringVar(&opts.histPath, "history", defaultHistoryPath(), "history file path")
	f.IntVar(&opts.histMax, "history-max", 2000, "max history lines loaded into memory")
	f.StringVarP(&opts.oneShotSQL, "command", "c", "", "execute one SQL statement and exit")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, opts options) error {
	tz, err := sqlrequest.ParseTimeZone(opts.zone)
	if err != nil {
		return err
	}

	var cli *sqlclient.Client
	if opts.retryFor > 0 {
		cli, err = sqlclient.DialWithRetry(cmd.Context(), opts.addr, opts.timeout, opts.retryFor)
	} else {
		cli, err = sqlclient.Dial(opts.addr, opts.timeout)
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = cli.Close() }()

	sess := newSession(cli, os.Stdout, tz)

	if strings.TrimSpace(opts.oneShotSQL) != "" {
		sess.exec(strings.TrimSpace(opts.oneShotSQL))
		return nil
	}

	h := NewHistory(opts.histPath)
	_ = h.Load(opts.histMax)

	return repl(sess, h, opts.addr)
}

func repl(sess *session, h *History, addr string) error {
	const prompt = "novaquery> "

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range h.Lines() {
		_ = rl.SaveHistory(line)
	}

	var buf strings.Builder

	fmt.Printf("connected to %s (time zone %s)\n", addr, sess.tz)
	fmt.Println("type \\help for help")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			// Ctrl+C clears current buffer
			if buf.Len() > 0 {
				buf.Reset()
				rl.SetPrompt(prompt)
				continue
			}
			fmt.Println("^C")
			continue
		}
		if err != nil {
			// EOF
			fmt.Println()
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && isMetaCommand(line) {
			cmd, arg, _ := strings.Cut(line, " ")
			switch cmd {
			case "\\q", "quit", "exit":
				return nil
			case "\\help":
				fmt.Println(helpText)
			case "\\history":
				h.Print(os.Stdout, 50)
			case "\\tz":
				sess.setZone(arg)
			case "\\next":
				sess.next()
			default:
				fmt.Printf("unknown command: %s\n", line)
			}
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)

		if !statementComplete(buf.String()) {
			rl.SetPrompt("...> ")
			continue
		}

		stmt := strings.TrimSpace(buf.String())
		buf.Reset()
		rl.SetPrompt(prompt)

		_ = h.Append(stmt)
		_ = rl.SaveHistory(compactOneLine(stmt))

		sess.exec(stmt)
	}
}
