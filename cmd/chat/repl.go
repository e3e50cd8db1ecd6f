package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/upb/chat-gateway/services/chat"
	"github.com/upb/chat-gateway/services/prompt"
	"github.com/upb/chat-gateway/services/routing"
)

const maxLineBytes = 1 << 20

type repl struct {
	session   *chat.Session
	experts   *prompt.Catalog
	expert    prompt.Expert
	providers []string
	styles    styles

	in  io.Reader
	out io.Writer
}

// run reads lines until an exit command, end of input or ctx is done
func (r *repl) run(ctx context.Context) error {
	r.banner()

	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for {
		fmt.Fprint(r.out, r.styles.user.Render("You: "))
		if !sc.Scan() {
			fmt.Fprintln(r.out, "\n\nBye.")
			return sc.Err()
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if r.command(line) {
			return nil
		}
		if strings.HasPrefix(line, "/") {
			continue
		}

		r.ask(ctx, line)
		if ctx.Err() != nil {
			fmt.Fprintln(r.out, "\nBye.")
			return nil
		}
	}
}

// command handles slash commands and reports whether the session should end.
// Lines that start with "/" never reach the providers.
func (r *repl) command(line string) (quit bool) {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "/salir", "salir", "quit", "exit", "/quit", "/exit":
		if len(fields) > 1 {
			return false
		}
		fmt.Fprintln(r.out, "Bye.")
		return true

	case "/reset", "/clear":
		if err := r.session.Reset(); err != nil {
			r.fail(err)
			return false
		}
		r.notice("Conversation cleared.")

	case "/help":
		r.help()

	case "/expert":
		if len(fields) == 1 {
			r.listExperts()
			return false
		}
		expert, err := r.experts.Lookup(fields[1])
		if err != nil {
			r.fail(err)
			return false
		}
		if err := r.session.SetSystemPrompt(expert.System); err != nil {
			r.fail(err)
			return false
		}
		r.expert = expert
		r.notice(fmt.Sprintf("Switched to %s. Conversation cleared.", expert.Label))

	default:
		if strings.HasPrefix(line, "/") {
			r.fail(fmt.Errorf("unknown command %s, try /help", fields[0]))
		}
	}
	return false
}

// ask runs one streamed turn, printing fragments as they arrive
func (r *repl) ask(ctx context.Context, line string) {
	started := false
	_, err := r.session.Turn(ctx, line, chat.Callbacks{
		OnProvider: func(name string, switched bool) {
			if switched {
				r.notice(fmt.Sprintf("[switched to %s]", name))
			}
			fmt.Fprint(r.out, r.styles.bot.Render("Bot: "))
			started = true
		},
		OnFragment: func(fragment string) error {
			_, err := io.WriteString(r.out, fragment)
			return err
		},
	})
	if started {
		fmt.Fprintln(r.out)
	}
	if err != nil && ctx.Err() == nil {
		r.fail(err)
		var exhausted *routing.ExhaustedError
		if errors.As(err, &exhausted) {
			fmt.Fprintln(r.out, r.styles.muted.Render("Check the provider credentials and your connection, then try again."))
		}
	}
	fmt.Fprintln(r.out)
}

func (r *repl) banner() {
	fmt.Fprintln(r.out, r.styles.title.Render("Chat"))
	fmt.Fprintln(r.out, r.styles.muted.Render(fmt.Sprintf("expert: %s  providers: %s",
		r.expert.Label, strings.Join(r.providers, " > "))))
	fmt.Fprintln(r.out, r.styles.muted.Render("Type /help for commands."))
	fmt.Fprintln(r.out)
}

func (r *repl) help() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  /salir, quit, exit   leave")
	fmt.Fprintln(r.out, "  /reset, /clear       forget the conversation")
	fmt.Fprintln(r.out, "  /expert [key]        list experts or switch to one")
	fmt.Fprintln(r.out, "  /help                show this help")
	fmt.Fprintln(r.out)
}

func (r *repl) listExperts() {
	for _, e := range r.experts.Experts() {
		marker := " "
		if e.Key == r.expert.Key {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %-12s %s\n", marker, e.Key, e.Label)
	}
	fmt.Fprintln(r.out)
}

func (r *repl) notice(msg string) {
	fmt.Fprintln(r.out, r.styles.notice.Render(msg))
}

func (r *repl) fail(err error) {
	fmt.Fprintln(r.out, r.styles.err.Render("Error: "+err.Error()))
}
