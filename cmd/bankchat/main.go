package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/api/dto"
	"github.com/ledgerline/banking-support/internal/chat"
	"github.com/ledgerline/banking-support/internal/client"
	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/tui"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

const cliName = "bankchat"

type options struct {
	apiURL      string
	realtimeURL string
	debug       bool
}

func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           cliName,
		Short:         "Talk to the bank's support desk from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("BANKCHAT_API", "http://localhost:8080"), "HTTP API base URL")
	rootCmd.PersistentFlags().StringVar(&opts.realtimeURL, "realtime", envOr("BANKCHAT_REALTIME", "ws://localhost:8081/ws"), "realtime gateway URL")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log HTTP and websocket activity to stderr")

	rootCmd.AddCommand(
		registerCmd(opts),
		loginCmd(opts),
		logoutCmd(),
		whoamiCmd(opts),
		chatCmd(opts),
		inboxCmd(opts),
		ticketCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", cliName, describe(err))
		os.Exit(1)
	}
}

func (o *options) client() *client.Client {
	logger := zap.NewNop()
	if o.debug {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	return client.New(client.Config{
		BaseURL:     o.apiURL,
		RealtimeURL: o.realtimeURL,
		Timeout:     30 * time.Second,
		Logger:      logger,
	})
}

// signedIn restores the saved session onto a fresh client.
func (o *options) signedIn() (*client.Client, *savedSession, error) {
	saved, err := loadSession()
	if err != nil {
		return nil, nil, err
	}
	c := o.client()
	c.SetSession(saved.Token, saved.Staff)
	return c, saved, nil
}

func registerCmd(opts *options) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a customer account and sign in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			resp, err := c.Register(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			if err := saveSession(savedSession{Token: resp.Auth.Token, ID: resp.User.ID, Name: resp.User.Name}); err != nil {
				return err
			}
			fmt.Printf("Welcome, %s.\n", resp.User.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd(opts *options) *cobra.Command {
	var email, password string
	var staff bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as a customer, or as staff with --staff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.client()
			var saved savedSession
			if staff {
				resp, err := c.LoginStaff(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				saved = savedSession{Token: resp.Auth.Token, ID: resp.Staff.ID, Name: resp.Staff.Name, Staff: true}
			} else {
				resp, err := c.Login(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				saved = savedSession{Token: resp.Auth.Token, ID: resp.User.ID, Name: resp.User.Name}
			}
			if err := saveSession(saved); err != nil {
				return err
			}
			fmt.Printf("Signed in as %s.\n", saved.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().BoolVar(&staff, "staff", false, "sign in to the staff inbox")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		RunE: func(*cobra.Command, []string) error {
			return clearSession()
		},
	}
}

func whoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show who the saved session belongs to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := opts.signedIn()
			if err != nil {
				return err
			}
			session, err := c.Session(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s <%s> (%s)\n", session.Name, session.Email, session.SubjectType)
			return nil
		},
	}
}

func chatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open your support conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, saved, err := opts.signedIn()
			if err != nil {
				return err
			}
			if saved.Staff {
				return apperrors.NewForbidden("staff sessions use bankchat inbox")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conv := chat.NewCustomerConversation(c, saved.ID)
			defer conv.Close()
			_, err = tea.NewProgram(tui.NewChatModel(ctx, conv), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return ignoreInterrupt(err)
		},
	}
}

func inboxCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Open the staff inbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, saved, err := opts.signedIn()
			if err != nil {
				return err
			}
			if !saved.Staff {
				return apperrors.NewForbidden("the inbox is for staff, sign in with bankchat login --staff")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			inbox := chat.NewInbox(c)
			defer inbox.Close()
			_, err = tea.NewProgram(tui.NewInboxModel(ctx, inbox), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return ignoreInterrupt(err)
		},
	}
}

func ticketCmd(opts *options) *cobra.Command {
	var subject, message, priority string
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Submit a support ticket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := opts.signedIn()
			if err != nil {
				return err
			}
			ticket, err := c.SubmitTicket(cmd.Context(), dto.CreateSupportTicketRequest{
				Subject:  subject,
				Message:  message,
				Priority: priority,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Ticket %s submitted (%s).\n", ticket.ID, ticket.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "ticket subject")
	cmd.Flags().StringVar(&message, "message", "", "describe the problem")
	cmd.Flags().StringVar(&priority, "priority", string(domain.TicketPriorityNormal), "normal, high or urgent")
	return cmd
}

// describe renders an error the way the service classified it.
func describe(err error) string {
	domainErr := apperrors.ToDomainError(err)
	if domainErr.Code == apperrors.CodeInternal {
		return err.Error()
	}
	if field, ok := domainErr.Details["field"]; ok {
		return fmt.Sprintf("%s (%v)", domainErr.Message, field)
	}
	return domainErr.Message
}

func ignoreInterrupt(err error) error {
	if err == nil || errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
