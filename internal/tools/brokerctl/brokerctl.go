// Package brokerctl lists and settles pending login requests on a running
// broker over gRPC.
package brokerctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/status"

	entrypoint "github.com/louisbranch/oauthbroker/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/oauthbroker/internal/platform/grpc"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/api/grpc/authrequest"
	"github.com/louisbranch/oauthbroker/internal/services/oauthbroker/broker"
)

// Config holds brokerctl configuration.
type Config struct {
	Addr        string        `env:"OAUTHBROKER_GRPC_ADDR" envDefault:"localhost:8788"`
	Timeout     time.Duration `env:"OAUTHBROKERCTL_TIMEOUT" envDefault:"10m"`
	DialTimeout time.Duration `env:"OAUTHBROKERCTL_DIAL_TIMEOUT" envDefault:"5s"`
	Locale      string        `env:"OAUTHBROKERCTL_LOCALE"`
	JSONOutput  bool

	// Command and Args are the positional arguments: list, watch,
	// trigger <id> or reject <id>.
	Command string
	Args    []string

	// DialOptions replace the default client options.
	DialOptions []gogrpc.DialOption
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	fs.StringVar(&cfg.Addr, "addr", "", "broker gRPC address (default: OAUTHBROKER_GRPC_ADDR or localhost:8788)")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "overall timeout")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", 0, "how long to wait for the broker to serve")
	fs.StringVar(&cfg.Locale, "locale", "", "language of error messages")
	fs.BoolVar(&cfg.JSONOutput, "json", false, "output JSON")
	if err := entrypoint.ParseConfigFromArgs(&cfg, fs, args); err != nil {
		return Config{}, err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return Config{}, errors.New("command is required: list, watch, trigger <id> or reject <id>")
	}
	cfg.Command, cfg.Args = rest[0], rest[1:]
	return cfg, nil
}

// Run executes one brokerctl command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.Locale != "" {
		ctx = authrequest.WithLocale(ctx, cfg.Locale)
	}

	conn, err := platformgrpc.Connect(ctx, cfg.Addr, platformgrpc.ConnectOptions{
		Service:     broker.Ref.ID,
		Timeout:     cfg.DialTimeout,
		DialOptions: cfg.DialOptions,
	})
	if err != nil {
		return err
	}
	defer conn.Close()
	client := authrequest.NewClient(conn)

	switch cfg.Command {
	case "list":
		requests, err := client.ListPending(ctx)
		if err != nil {
			return describe(err)
		}
		return printRequests(out, requests, cfg.JSONOutput)
	case "watch":
		return watch(ctx, client, out, cfg.JSONOutput)
	case "trigger", "reject":
		if len(cfg.Args) != 1 || strings.TrimSpace(cfg.Args[0]) == "" {
			return fmt.Errorf("%s needs exactly one request id", cfg.Command)
		}
		requestID := cfg.Args[0]
		if cfg.Command == "trigger" {
			err = client.Trigger(ctx, requestID)
		} else {
			err = client.Reject(ctx, requestID)
		}
		if err != nil {
			return describe(err)
		}
		done := map[string]string{"trigger": "triggered", "reject": "rejected"}[cfg.Command]
		_, err = fmt.Fprintf(out, "%s %s\n", requestID, done)
		return err
	default:
		return fmt.Errorf("unknown command %q", cfg.Command)
	}
}

func watch(ctx context.Context, client *authrequest.Client, out io.Writer, jsonOutput bool) error {
	watcher, err := client.WatchPending(ctx)
	if err != nil {
		return describe(err)
	}
	for {
		requests, err := watcher.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return describe(err)
		}
		if !jsonOutput {
			fmt.Fprintf(out, "-- %s\n", time.Now().Format(time.TimeOnly))
		}
		if err := printRequests(out, requests, jsonOutput); err != nil {
			return err
		}
	}
}

type requestJSON struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Scopes    []string  `json:"scopes"`
	Waiters   int       `json:"waiters"`
	CreatedAt time.Time `json:"created_at"`
}

func printRequests(out io.Writer, requests []authrequest.Request, jsonOutput bool) error {
	if jsonOutput {
		rows := make([]requestJSON, 0, len(requests))
		for _, request := range requests {
			rows = append(rows, requestJSON{
				ID:        request.ID,
				Provider:  request.Provider.ID,
				Scopes:    request.Scopes.Slice(),
				Waiters:   request.Waiters,
				CreatedAt: request.CreatedAt,
			})
		}
		return json.NewEncoder(out).Encode(rows)
	}
	if len(requests) == 0 {
		_, err := fmt.Fprintln(out, "no pending requests")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tSCOPES\tWAITERS\tAGE")
	for _, request := range requests {
		age := time.Since(request.CreatedAt).Truncate(time.Second)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", request.ID, request.Provider.ID, request.Scopes.String(), request.Waiters, age)
	}
	return tw.Flush()
}

// describe prefers the localized message the broker attached.
func describe(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, detail := range st.Details() {
		if localized, ok := detail.(*errdetails.LocalizedMessage); ok && localized.GetMessage() != "" {
			return fmt.Errorf("%s: %s", st.Code(), localized.GetMessage())
		}
	}
	return fmt.Errorf("%s: %s", st.Code(), st.Message())
}
