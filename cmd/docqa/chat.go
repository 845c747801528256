package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/w-h-a/docqa"
	"github.com/w-h-a/docqa/errs"
)

const help = `Commands:
  /upload <path>            index a PDF, starts a new conversation
  /provider <name> [model]  switch provider, re-embeds the loaded document
  /websearch on|off         search the web when the document has no answer
  /resume <collection>      attach to an index from an earlier run
  /clear                    forget the conversation
  /reset                    forget the document and the conversation
  /history                  print the conversation
  /quit                     leave
Anything else is a question about the document.`

type ChatCmd struct {
	File    string `arg:"" optional:"" help:"PDF to upload before the first question" type:"existingfile"`
	Session string `help:"Optional fixed session identifier" env:"DOCQA_SESSION"`
}

func (c *ChatCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := g.Assistant(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	id, err := a.NewSession(ctx, c.Session, g.ProviderConfig(g.Provider, g.Model), g.WebSearch)
	if err != nil {
		return err
	}

	r := &repl{
		assistant: a,
		session:   id,
		globals:   g,
		out:       os.Stdout,
	}

	fmt.Fprintf(r.out, "Session %s using %s. Type /help for commands.\n", id, g.Provider)

	if len(c.File) > 0 {
		r.upload(ctx, c.File)
	}

	return r.run(ctx, os.Stdin)
}

type repl struct {
	assistant *docqa.Assistant
	session   string
	globals   *Globals
	out       io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(r.out, "> ")

		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			r.ask(ctx, line)
			continue
		}

		if quit := r.command(ctx, line); quit {
			return nil
		}
	}
}

func (r *repl) command(ctx context.Context, line string) bool {
	name, args := splitCommand(line)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(r.out, help)
	case "/upload":
		if len(args) == 0 {
			fmt.Fprintln(r.out, "usage: /upload <path>")
			return false
		}
		r.upload(ctx, args)
	case "/provider":
		fields := strings.Fields(args)
		if len(fields) == 0 {
			fmt.Fprintln(r.out, "usage: /provider <name> [model]")
			return false
		}
		model := ""
		if len(fields) > 1 {
			model = fields[1]
		}
		if err := r.assistant.SwitchProvider(ctx, r.session, r.globals.ProviderConfig(fields[0], model)); err != nil {
			r.fail(err)
			return false
		}
		status, err := r.assistant.Status(ctx, r.session)
		if err != nil {
			r.fail(err)
			return false
		}
		fmt.Fprintf(r.out, "Now using %s (%s).\n", status.Provider.Name, status.Provider.Model)
	case "/websearch":
		enabled, err := parseSwitch(args)
		if err != nil {
			fmt.Fprintln(r.out, "usage: /websearch on|off")
			return false
		}
		if err := r.assistant.SetWebSearch(ctx, r.session, enabled); err != nil {
			r.fail(err)
			return false
		}
		fmt.Fprintf(r.out, "Web search %s.\n", args)
	case "/resume":
		desc, err := r.assistant.Resume(ctx, r.session, args)
		if err != nil {
			r.fail(err)
			return false
		}
		fmt.Fprintf(r.out, "Resumed %s with %d chunks.\n", desc.Name, desc.Count)
	case "/clear":
		if err := r.assistant.ClearChat(ctx, r.session); err != nil {
			r.fail(err)
			return false
		}
		fmt.Fprintln(r.out, "Conversation cleared.")
	case "/reset":
		if err := r.assistant.Reset(ctx, r.session); err != nil {
			r.fail(err)
			return false
		}
		fmt.Fprintln(r.out, "Document and conversation cleared.")
	case "/history":
		turns, err := r.assistant.History(ctx, r.session)
		if err != nil {
			r.fail(err)
			return false
		}
		if len(turns) == 0 {
			fmt.Fprintln(r.out, "No messages yet.")
		}
		for _, t := range turns {
			fmt.Fprintf(r.out, "You: %s\nAssistant: %s\n", t.Question, t.Answer)
		}
	default:
		fmt.Fprintf(r.out, "unknown command %s, try /help\n", name)
	}

	return false
}

func (r *repl) upload(ctx context.Context, path string) {
	fmt.Fprintf(r.out, "Indexing %s...\n", path)

	meta, err := r.assistant.UploadFile(ctx, r.session, path)
	if err != nil {
		r.fail(err)
		return
	}

	fmt.Fprintf(r.out, "Loaded %s: %d pages, %d chunks.\n", meta.Filename, meta.PageCount, meta.ChunkCount)
}

func (r *repl) ask(ctx context.Context, question string) {
	stream, err := r.assistant.Stream(ctx, r.session, question)
	if err != nil {
		r.fail(err)
		return
	}
	defer stream.Close()

	for stream.Next() {
		fmt.Fprint(r.out, stream.Current())
	}
	fmt.Fprintln(r.out)

	if err := stream.Err(); err != nil {
		r.fail(err)
		return
	}

	res, _ := stream.Result()

	if len(res.Sources) > 0 {
		pages := make([]string, 0, len(res.Sources))
		for _, m := range res.Sources {
			pages = append(pages, strconv.Itoa(m.Chunk.Page))
		}
		fmt.Fprintf(r.out, "(pages %s)\n", strings.Join(pages, ", "))
	}

	if res.FallbackUsed {
		fmt.Fprintf(r.out, "\nFrom the web:\n%s\n", res.WebResults)
	}
}

func (r *repl) fail(err error) {
	switch {
	case errors.Is(err, errs.ErrAuth):
		fmt.Fprintf(r.out, "error: %v\nCheck the API key for this provider.\n", err)
	case errs.IsRetryable(err):
		fmt.Fprintf(r.out, "error: %v\nNothing was saved, ask again.\n", err)
	default:
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
}

func splitCommand(payload string) (name string, args string) {
	parts := strings.Fields(payload)
	if len(parts) == 0 {
		return "", ""
	}

	name = strings.ToLower(parts[0])
	if len(payload) > len(parts[0]) {
		args = strings.TrimSpace(payload[strings.Index(payload, parts[0])+len(parts[0]):])
	}

	return name, args
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return strconv.ParseBool(s)
	}
}
