package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ampora-ai/ampora-web/internal/chat"
	"github.com/ampora-ai/ampora-web/internal/models"
	"github.com/spf13/cobra"
)

var authToken string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the configured gateway from the terminal",
	Long: `Start an interactive chat in the terminal.

Type a message and press enter to send it. While a reply is pending or being
revealed, type /cancel or press Ctrl+C to interrupt it. Type /quit or press
Ctrl+C while idle to leave.`,
	RunE: runChat,
}

const (
	cancelCommand = "/cancel"
	quitCommand   = "/quit"

	idlePollInterval = 50 * time.Millisecond
)

func init() {
	chatCmd.Flags().StringVar(&authToken, "token", "", "auth token forwarded to the gateway")
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, logger, gateway, release, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer release()

	loop, stopLoop := startLoop()
	defer stopLoop()

	ctl := chat.NewController(loop, gateway, logger,
		chat.WithToken(authToken),
		chat.WithDelay(cfg.revealDelay()),
	)
	defer ctl.Close()

	out := cmd.OutOrStdout()
	unsubscribe := ctl.Subscribe(&terminalObserver{out: out})
	defer unsubscribe()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	fmt.Fprintln(out, "Chat with Ampora AI. /cancel interrupts a reply, /quit exits.")

	return runREPL(cmd.Context(), ctl, cmd.InOrStdin(), out, interrupts)
}

// runREPL feeds the lines of in to ctl until in is exhausted, the user quits or ctx is done. An
// interrupt cancels the live turn, or quits when there is none.
func runREPL(ctx context.Context, ctl *chat.Controller, in io.Reader, out io.Writer, interrupts <-chan os.Signal) error {
	lines := make(chan string)
	scanErrs := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErrs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-interrupts:
			if !ctl.InputLocked() {
				return nil
			}
			ctl.Cancel()

		case line, ok := <-lines:
			if !ok {
				waitIdle(ctx, ctl)
				return <-scanErrs
			}

			switch strings.TrimSpace(line) {
			case cancelCommand:
				ctl.Cancel()
				continue
			case quitCommand:
				return nil
			}

			err := ctl.Submit(line)
			switch {
			case err == nil, errors.Is(err, chat.ErrEmptyInput):
			case errors.Is(err, chat.ErrTurnInProgress):
				fmt.Fprintf(out, "(still replying, %s to interrupt)\n", cancelCommand)
			default:
				return err
			}
		}
	}
}

// waitIdle blocks until the live turn of ctl, if any, has finished.
func waitIdle(ctx context.Context, ctl *chat.Controller) {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for ctl.InputLocked() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// terminalObserver prints revealed text as it grows. Its callbacks run on the event loop.
type terminalObserver struct {
	out     io.Writer
	printed string
}

func (t *terminalObserver) OnProcessing(processing bool) {
	if processing {
		t.printed = ""
		fmt.Fprintln(t.out, "...")
	}
}

func (t *terminalObserver) OnArtifact(url string) {
	fmt.Fprintf(t.out, "[video] %s\n", url)
}

func (t *terminalObserver) OnReveal(_ string, prefix string) {
	if strings.HasPrefix(prefix, t.printed) {
		fmt.Fprint(t.out, prefix[len(t.printed):])
	}
	t.printed = prefix
}

func (t *terminalObserver) OnMessage(msg models.Message) {
	if msg.Sender != models.SenderAssistant {
		return
	}
	if strings.HasPrefix(msg.Text, t.printed) {
		fmt.Fprint(t.out, msg.Text[len(t.printed):])
	}
	fmt.Fprintln(t.out)
	t.printed = ""
}

// OnInputLocked ends a line left open by a reveal that was canceled without a message.
func (t *terminalObserver) OnInputLocked(locked bool) {
	if locked || t.printed == "" {
		return
	}
	fmt.Fprintln(t.out)
	t.printed = ""
}
