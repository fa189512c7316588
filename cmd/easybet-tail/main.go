// Command easybet-tail follows the ledger event stream in Redis and prints
// one line per event, for indexers and operators.
//
//	easybet-tail -config config.toml -from 0 -follow
//	easybet-tail -project 3 -follow
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alanyoungcy/easybet/internal/cache/redis"
	"github.com/alanyoungcy/easybet/internal/config"
	"github.com/alanyoungcy/easybet/internal/domain"
	"github.com/alanyoungcy/easybet/internal/events"
)

type tailOptions struct {
	from    string
	project uint64
	follow  bool
	batch   int
	poll    time.Duration
}

func main() {
	configPath := flag.String("config", "", "configuration file (empty for defaults and environment)")
	var opts tailOptions
	flag.StringVar(&opts.from, "from", "0", "stream ID to resume after")
	flag.Uint64Var(&opts.project, "project", 0, "only print events for this project")
	flag.BoolVar(&opts.follow, "follow", false, "keep waiting for new events")
	flag.IntVar(&opts.batch, "batch", 100, "entries per stream read")
	flag.DurationVar(&opts.poll, "poll", 5*time.Second, "fallback poll interval while following")
	flag.Parse()

	if err := run(*configPath, opts); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "easybet-tail: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, opts tailOptions) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   2,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	return tail(ctx, redis.NewSignalBus(client, cfg.Redis.StreamMaxLen), opts, os.Stdout)
}

// tail prints stream entries after opts.from. When following, it subscribes
// before the first read so nothing published in between is missed, and
// re-reads the stream on every wake-up or poll tick.
func tail(ctx context.Context, bus domain.SignalBus, opts tailOptions, out io.Writer) error {
	if opts.batch <= 0 {
		opts.batch = 100
	}
	if opts.poll <= 0 {
		opts.poll = 5 * time.Second
	}

	var wake <-chan []byte
	if opts.follow {
		channel := events.ChannelLedger
		if opts.project != 0 {
			channel = events.ProjectChannel(opts.project)
		}
		w, err := bus.Subscribe(ctx, channel)
		if err != nil {
			return err
		}
		wake = w
	}
	ticker := time.NewTicker(opts.poll)
	defer ticker.Stop()

	last := opts.from
	for {
		msgs, err := bus.StreamRead(ctx, events.StreamLedger, last, opts.batch)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			last = m.ID
			if opts.project != 0 && projectOf(m.Payload) != opts.project {
				continue
			}
			if _, err := fmt.Fprintf(out, "%s\t%s\n", m.ID, m.Payload); err != nil {
				return err
			}
		}
		if len(msgs) == opts.batch {
			continue
		}
		if !opts.follow {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-wake:
			if !ok {
				// Subscription dropped; fall back to polling.
				wake = nil
			}
		case <-ticker.C:
		}
	}
}

func projectOf(payload []byte) uint64 {
	var e struct {
		ProjectID uint64 `json:"projectId"`
	}
	if json.Unmarshal(payload, &e) != nil {
		return 0
	}
	return e.ProjectID
}
