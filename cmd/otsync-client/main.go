// Command otsync-client edits one document on an otsync server and prints
// the synced state.
//
//	otsync-client [-config file] profile <owner> [field=value ...]
//	otsync-client [-config file] chat <room> <public-key> [message]
//	otsync-client [-config file] text <document> [text to append]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/sanity-io/litter"

	"github.com/zeusync/otsync/internal/config"
	"github.com/zeusync/otsync/internal/core/observability/log"
	"github.com/zeusync/otsync/sdk/go/client"
)

func main() {
	path := flag.String("config", "", "path to the YAML configuration")
	flag.Parse()

	if err := run(*path, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(path string, args []string) error {
	if len(args) < 2 {
		flag.Usage()
		return fmt.Errorf("expected a document kind and id")
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(cfg.Client, client.WithLogger(log.New(cfg.LogLevel())))
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	kind, id, rest := args[0], args[1], args[2:]
	switch kind {
	case "profile":
		s, err := c.Profile(ctx, id)
		if err != nil {
			return err
		}
		fields := make(map[string]string, len(rest))
		for _, kv := range rest {
			field, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("expected field=value, got %q", kv)
			}
			fields[field] = value
		}
		if len(fields) > 0 {
			if err = s.Service.SetAll(fields); err != nil {
				return err
			}
		}
		if err = s.Doc.Sync(ctx); err != nil {
			return err
		}
		litter.Dump(s.Doc.State().Values())

	case "chat":
		if len(rest) == 0 {
			return fmt.Errorf("expected a public key")
		}
		s, err := c.Chat(ctx, id, rest[0], uuid.NewString())
		if err != nil {
			return err
		}
		if msg := strings.Join(rest[1:], " "); msg != "" {
			if _, err = s.Service.SendMessage(msg); err != nil {
				return err
			}
		}
		if err = s.Doc.Sync(ctx); err != nil {
			return err
		}
		litter.Dump(s.Doc.State().Messages())

	case "text":
		s, err := c.Text(ctx, id, uuid.NewString())
		if err != nil {
			return err
		}
		if text := strings.Join(rest, " "); text != "" {
			if err = s.Service.Insert(s.Doc.State().Len(), text); err != nil {
				return err
			}
		}
		if err = s.Doc.Sync(ctx); err != nil {
			return err
		}
		fmt.Println(s.Service.Text())

	default:
		return fmt.Errorf("unknown document kind %q", kind)
	}
	return nil
}
