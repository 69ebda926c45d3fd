// Command supportctl is a terminal client for the support desk. It keeps
// live mirrors of the caller's tickets and threads and writes through them
// optimistically.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/Abdin71/supportflow-ai/internal/config"
	"github.com/Abdin71/supportflow-ai/internal/domain"
	"github.com/Abdin71/supportflow-ai/internal/observability"
	"github.com/Abdin71/supportflow-ai/internal/persistence"
	"github.com/Abdin71/supportflow-ai/internal/repository"
	"github.com/Abdin71/supportflow-ai/internal/service"
	"github.com/Abdin71/supportflow-ai/internal/syncstore"
)

type options struct {
	email       string
	password    string
	subject     string
	description string
	aiDraft     bool
	follow      bool
	verbose     bool
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string, out io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("supportctl", pflag.ContinueOnError)
	flagSet.StringVar(&opts.email, "email", os.Getenv("SUPPORTCTL_EMAIL"), "account email (env SUPPORTCTL_EMAIL)")
	flagSet.StringVar(&opts.password, "password", os.Getenv("SUPPORTCTL_PASSWORD"), "account password (env SUPPORTCTL_PASSWORD)")
	flagSet.StringVar(&opts.subject, "subject", "", "ticket subject for create")
	flagSet.StringVar(&opts.description, "description", "", "ticket description for create")
	flagSet.BoolVar(&opts.aiDraft, "ai", false, "mark a reply as an accepted AI suggestion")
	flagSet.BoolVarP(&opts.follow, "follow", "f", false, "keep printing updates until interrupted")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return errors.New("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Logger.Level = "warn"
	cfg.Logger.Output = "stderr"
	if opts.verbose {
		cfg.Logger.Level = "debug"
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := persistence.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	users := repository.NewUserRepository(backend.Store)
	authService := service.NewAuthService(cfg.Auth, service.AuthDependencies{UserRepo: users, Logger: logger})
	session, err := authService.Login(ctx, opts.email, opts.password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	identity := domain.IdentityOf(session.User)

	c := &client{
		out:      out,
		identity: identity,
		tickets:  syncstore.NewTicketStore(repository.NewTicketRepository(backend.Store), syncstore.WithLogger(logger)),
		messages: syncstore.NewMessageStore(repository.NewMessageRepository(backend.Store), identity, syncstore.WithLogger(logger)),
	}
	defer c.tickets.Cleanup()
	defer c.messages.CleanupAll()

	switch args[0] {
	case "tickets":
		return c.listTickets(ctx, opts.follow)
	case "create":
		return c.createTicket(ctx, opts.subject, opts.description)
	case "status":
		if len(args) != 3 {
			return errors.New("usage: supportctl status <ticket-id> <status>")
		}
		return c.updateStatus(ctx, args[1], domain.TicketStatus(args[2]))
	case "thread":
		if len(args) != 2 {
			return errors.New("usage: supportctl thread <ticket-id>")
		}
		return c.showThread(ctx, args[1], opts.follow)
	case "reply":
		if len(args) != 3 {
			return errors.New("usage: supportctl reply <ticket-id> <text>")
		}
		return c.reply(ctx, args[1], args[2], opts.aiDraft)
	case "edit":
		if len(args) != 4 {
			return errors.New("usage: supportctl edit <ticket-id> <message-id> <text>")
		}
		return c.edit(ctx, args[1], args[2], args[3])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

type client struct {
	out      io.Writer
	identity domain.Identity
	tickets  *syncstore.TicketStore
	messages *syncstore.MessageStore
}

func (c *client) listTickets(ctx context.Context, follow bool) error {
	if !follow {
		if err := c.tickets.Initialize(c.identity); err != nil {
			return err
		}
		printTickets(c.out, c.tickets.Tickets())
		return c.tickets.Err()
	}
	cancel := c.tickets.Listen(func(state syncstore.TicketState) {
		if state.Loading {
			return
		}
		fmt.Fprintf(c.out, "--- %s\n", time.Now().Format(time.Kitchen))
		printTickets(c.out, state.Tickets)
	})
	defer cancel()
	if err := c.tickets.Initialize(c.identity); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (c *client) createTicket(ctx context.Context, subject, description string) error {
	if err := c.tickets.Initialize(c.identity); err != nil {
		return err
	}
	id, err := c.tickets.CreateTicket(ctx, syncstore.TicketDraft{Subject: subject, Description: description})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "created ticket %s\n", id)
	return nil
}

func (c *client) updateStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error {
	if err := c.tickets.Initialize(c.identity); err != nil {
		return err
	}
	if err := c.tickets.UpdateStatus(ctx, ticketID, status); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "ticket %s is now %s\n", ticketID, status)
	return nil
}

func (c *client) showThread(ctx context.Context, ticketID string, follow bool) error {
	if follow {
		cancel := c.messages.Listen(func(id string) {
			if id != ticketID || c.messages.Loading(id) {
				return
			}
			fmt.Fprintf(c.out, "--- %s\n", time.Now().Format(time.Kitchen))
			printThread(c.out, c.messages.Messages(id), c.messages)
		})
		defer cancel()
	}
	if err := c.messages.InitializeTicket(ticketID); err != nil {
		return err
	}
	if !follow {
		printThread(c.out, c.messages.Messages(ticketID), c.messages)
		return c.messages.Err()
	}
	<-ctx.Done()
	return nil
}

func (c *client) reply(ctx context.Context, ticketID, text string, aiDraft bool) error {
	if err := c.messages.InitializeTicket(ticketID); err != nil {
		return err
	}
	id, err := c.messages.AddMessage(ctx, syncstore.MessageDraft{TicketID: ticketID, Text: text, IsAISuggestion: aiDraft})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "posted message %s\n", id)
	return nil
}

func (c *client) edit(ctx context.Context, ticketID, messageID, text string) error {
	if err := c.messages.InitializeTicket(ticketID); err != nil {
		return err
	}
	if err := c.messages.UpdateMessage(ctx, ticketID, messageID, text); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "edited message %s\n", messageID)
	return nil
}

func printTickets(out io.Writer, tickets []domain.Ticket) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tCATEGORY\tANALYSIS\tMESSAGES\tSUBJECT")
	for _, t := range tickets {
		priority, category := "-", "-"
		if t.Priority != nil {
			priority = string(*t.Priority)
		}
		if t.Category != nil {
			category = *t.Category
		}
		unread := ""
		if t.HasUnreadMessages {
			unread = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d%s\t%s\n",
			t.ID, t.Status, priority, category, t.AIMetadata.ProcessingStatus, t.MessageCount, unread, t.Subject)
	}
	_ = w.Flush()
}

func printThread(out io.Writer, messages []domain.Message, store *syncstore.MessageStore) {
	for _, m := range messages {
		flags := ""
		if m.IsAISuggestion {
			flags += " [ai]"
		}
		if m.IsEdited {
			flags += " [edited]"
		}
		if store.CanEdit(m) {
			flags += " [editable]"
		}
		fmt.Fprintf(out, "%s %s (%s)%s: %s\n  id=%s\n",
			m.CreatedAt.Local().Format("2006-01-02 15:04"), m.AuthorName, m.Role, flags, m.Text, m.ID)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `supportctl: terminal client for the support desk.

Usage:
  supportctl [flags] <command> [args]

Commands:
  tickets                          list your tickets (-f to follow)
  create --subject S --description D
  status <ticket-id> <status>      open, in-progress, resolved or closed
  thread <ticket-id>               show the conversation (-f to follow)
  reply <ticket-id> <text>         post a message (--ai for an accepted draft)
  edit <ticket-id> <message-id> <text>

The document store is selected by STORE_DRIVER as for the API server.

Flags:
`)
	flagSet.PrintDefaults()
}
