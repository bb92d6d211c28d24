package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/heyitswither/rwci/internal/core"
)

const (
	sayTrigger = "!say"
	sayPrompt  = "What should I say?"
)

func newEchoCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run a bot that repeats the next message after " + sayTrigger,
		Long: `Answers "` + sayTrigger + `" with "` + sayPrompt + `" and echoes the next message
written by someone else.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, err := setup(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			bot := newEchoBot(ctx, a.Client(), timeout, logger)
			defer bot.wait()
			return a.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "how long to wait for the text to repeat")
	return cmd
}

type echoBot struct {
	ctx     context.Context
	client  *core.Client
	timeout time.Duration
	log     *zerolog.Logger
	wg      sync.WaitGroup
}

// newEchoBot registers the bot's handlers on c. Replies are awaited on ctx
// outside the dispatch loop.
func newEchoBot(ctx context.Context, c *core.Client, timeout time.Duration, logger *zerolog.Logger) *echoBot {
	b := &echoBot{ctx: ctx, client: c, timeout: timeout, log: logger}
	c.OnReady(func(context.Context) {
		b.log.Info().Str("username", c.Session().Username()).Msg("echo bot online")
	})
	c.OnMessage(b.onMessage)
	return b
}

func (b *echoBot) onMessage(ctx context.Context, m core.Message) {
	self := b.client.Session().Username()
	if m.Content != sayTrigger || m.Author == self {
		return
	}

	// Claim the next message before the loop moves on.
	pending, err := b.client.Expect(core.FromOthers(self))
	if err != nil {
		return
	}
	b.wg.Add(1)
	if err := b.client.Send(ctx, sayPrompt, m.Channel); err != nil {
		pending.Cancel()
		b.wg.Done()
		b.log.Warn().Err(err).Msg("send prompt")
		return
	}

	go func() {
		defer b.wg.Done()
		b.repeat(pending, m.Channel)
	}()
}

func (b *echoBot) repeat(pending *core.Pending, channel string) {
	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()

	env, err := pending.Wait(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		b.log.Debug().Msg("nobody answered")
		return
	case err != nil:
		b.log.Debug().Err(err).Msg("wait for message")
		return
	}
	reply := core.MessageFromEnvelope(env)
	if err := b.client.Send(ctx, reply.Content, channel); err != nil {
		b.log.Warn().Err(err).Msg("send echo")
	}
}

func (b *echoBot) wait() { b.wg.Wait() }
