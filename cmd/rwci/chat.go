package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/heyitswither/rwci/internal/core"
)

func newChatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively from the terminal",
		Long: `Reads lines from stdin and posts them to the current channel.

Commands:
  /dm <user> <text>   send a direct message
  /channel [name]     post to name from now on; no name means the default channel
  /typing             tell others you are typing
  /users              list online users
  /channels           list channels
  /quit               disconnect`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, err := setup(flags)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), a.Client(), a.Run, os.Stdin, cmd.OutOrStdout())
		},
	}
}

type inputKind int

const (
	inputEmpty inputKind = iota
	inputMessage
	inputDirect
	inputChannel
	inputTyping
	inputUsers
	inputChannels
	inputQuit
)

type input struct {
	kind   inputKind
	target string
	text   string
}

var errUsage = errors.New("usage")

func parseInput(line string) (input, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return input{kind: inputEmpty}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return input{kind: inputMessage, text: line}, nil
	}

	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch cmd {
	case "/dm":
		user, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if user == "" || text == "" {
			return input{}, fmt.Errorf("%w: /dm <user> <text>", errUsage)
		}
		return input{kind: inputDirect, target: user, text: text}, nil
	case "/channel":
		if strings.ContainsRune(rest, ' ') {
			return input{}, fmt.Errorf("%w: /channel [name]", errUsage)
		}
		return input{kind: inputChannel, target: strings.TrimPrefix(rest, "#")}, nil
	case "/typing":
		return input{kind: inputTyping}, nil
	case "/users":
		return input{kind: inputUsers}, nil
	case "/channels":
		return input{kind: inputChannels}, nil
	case "/quit", "/exit":
		return input{kind: inputQuit}, nil
	}
	return input{}, fmt.Errorf("unknown command %s", cmd)
}

// printer serializes output from the dispatch loop and the input loop.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func formatMessage(m core.Message) string {
	switch {
	case m.System():
		return "* " + m.Content
	case m.Direct:
		return fmt.Sprintf("[dm] %s: %s", m.Author, m.Content)
	case m.Channel != "":
		return fmt.Sprintf("[#%s] %s: %s", m.Channel, m.Author, m.Content)
	default:
		return fmt.Sprintf("%s: %s", m.Author, m.Content)
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func registerPrinters(c *core.Client, p *printer) {
	c.OnReady(func(context.Context) {
		p.printf("Connected as %s. Type /quit to leave.", c.Session().Username())
	})
	c.OnMessage(func(_ context.Context, m core.Message) { p.printf("%s", formatMessage(m)) })
	c.OnDirectMessage(func(_ context.Context, m core.Message) { p.printf("%s", formatMessage(m)) })
	c.OnJoin(func(_ context.Context, user string) { p.printf("--> %s joined", user) })
	c.OnQuit(func(_ context.Context, user string) { p.printf("<-- %s left", user) })
	c.OnTyping(func(_ context.Context, user string) { p.printf("... %s is typing", user) })
	c.OnBroadcast(func(_ context.Context, text string) { p.printf("[broadcast] %s", text) })
	c.OnUserList(func(_ context.Context, users []string) { p.printf("Online users: %s", listOrNone(users)) })
	c.OnChannelList(func(_ context.Context, chans []string) { p.printf("Channels: %s", listOrNone(chans)) })
	c.OnChannelCreate(func(_ context.Context, ch string) { p.printf("+ #%s", ch) })
	c.OnChannelDelete(func(_ context.Context, ch string) { p.printf("- #%s", ch) })
	c.OnDefaultChannel(func(_ context.Context, ch string) { p.printf("Default channel is now #%s", ch) })
}

// runChat runs the session with run and feeds it lines from in until in is
// exhausted, /quit is typed, or the session ends.
func runChat(ctx context.Context, c *core.Client, run func(context.Context) error, in io.Reader, out io.Writer) error {
	p := &printer{w: out}
	registerPrinters(c, p)

	sessionErr := make(chan error, 1)
	go func() { sessionErr <- run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-c.Done():
				return
			}
		}
	}()

	var channel string
	for {
		select {
		case err := <-sessionErr:
			return err
		case line, ok := <-lines:
			if !ok {
				_ = c.Close()
				return <-sessionErr
			}
			req, err := parseInput(line)
			if err != nil {
				p.printf("! %v", err)
				continue
			}
			if req.kind == inputQuit {
				_ = c.Close()
				return <-sessionErr
			}
			if err := handleInput(ctx, c, p, req, &channel); err != nil {
				p.printf("! %v", err)
			}
		}
	}
}

func handleInput(ctx context.Context, c *core.Client, p *printer, in input, channel *string) error {
	switch in.kind {
	case inputMessage:
		return c.Send(ctx, in.text, *channel)
	case inputDirect:
		return c.SendDirect(ctx, in.text, in.target)
	case inputTyping:
		return c.SendTyping(ctx)
	case inputChannel:
		*channel = in.target
		if in.target == "" {
			p.printf("Posting to the default channel")
		} else {
			p.printf("Posting to #%s", in.target)
		}
	case inputUsers:
		p.printf("Online users: %s", listOrNone(c.Session().Users()))
	case inputChannels:
		chans := c.Session().Channels()
		if def, ok := c.Session().DefaultChannel(); ok {
			p.printf("Channels: %s (default #%s)", listOrNone(chans), def)
		} else {
			p.printf("Channels: %s", listOrNone(chans))
		}
	}
	return nil
}
