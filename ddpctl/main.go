package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/exp/slices"
	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"github.com/bringyour/ddp/ddp"
)

const DdpCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)

	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
}

func main() {
	usage := `DDP control.

The default url is ws://localhost:3000/websocket

Usage:
    ddpctl connect [--url=<url>] [--config=<config>] [--timeout=<timeout>]
    ddpctl call [--url=<url>] [--config=<config>] [--timeout=<timeout>]
        <method> [<params>]
    ddpctl sub [--url=<url>] [--config=<config>] [--timeout=<timeout>]
        <name> [<params>]
        [--watch=<collection>...]
        [--event_count=<event_count>]

Options:
    -h --help                      Show this screen.
    --version                      Show version.
    --url=<url>                    Websocket url of the server.
    --config=<config>              TOML config file.
    --timeout=<timeout>            Wait this long for the handshake and results, e.g. 30s.
    --watch=<collection>           Print every change to this collection.
    --event_count=<event_count>    Print this many changes then exit.

<params> is a JSON array, e.g. '[1, "a"]'.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], DdpCtlVersion)
	if err != nil {
		panic(err)
	}

	config, err := loadConfig(opts)
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}
	flag.Set("v", strconv.Itoa(config.Verbosity))

	if connect_, _ := opts.Bool("connect"); connect_ {
		err = connect(config)
	} else if call_, _ := opts.Bool("call"); call_ {
		err = call(opts, config)
	} else if sub_, _ := opts.Bool("sub"); sub_ {
		err = sub(opts, config)
	}
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}
}

func loadConfig(opts docopt.Opts) (*Config, error) {
	var config *Config
	if path, err := opts.String("--config"); err == nil {
		config, err = LoadConfig(path)
		if err != nil {
			return nil, err
		}
	} else {
		config = DefaultConfig()
	}
	if url, err := opts.String("--url"); err == nil {
		config.Url = url
	}
	if timeout, err := opts.String("--timeout"); err == nil {
		config.Timeout = timeout
	}
	return config, nil
}

// `<params>` must be a JSON array
func parseParams(opts docopt.Opts) ([]any, error) {
	paramsJson, err := opts.String("<params>")
	if err != nil {
		return nil, nil
	}
	var params []any
	if err := json.Unmarshal([]byte(paramsJson), &params); err != nil {
		return nil, fmt.Errorf("Invalid params, must be a JSON array (%s).", err)
	}
	return params, nil
}

func printJson(v any) {
	var b []byte
	var err error
	if term.IsTerminal(int(os.Stdout.Fd())) {
		b, err = json.MarshalIndent(v, "", "    ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		Err.Printf("%s\n", err)
		return
	}
	Out.Printf("%s\n", b)
}

// creates a client and waits for the handshake
func newConnectedClient(ctx context.Context, config *Config) (*ddp.Client, *ddp.Handshake, error) {
	clientSettings, wsSettings, err := config.Settings()
	if err != nil {
		return nil, nil, err
	}
	timeout, err := config.TimeoutDuration()
	if err != nil {
		return nil, nil, err
	}

	client := ddp.NewClient(ctx, ddp.WsDialer(config.Url, wsSettings), clientSettings)

	connectCtx, connectCancel := context.WithTimeout(ctx, timeout)
	defer connectCancel()
	handshake, err := client.Connect().Wait(connectCtx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("Could not connect to %s (%w).", config.Url, err)
	}
	return client, handshake, nil
}

func connect(config *Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, handshake, err := newConnectedClient(ctx, config)
	if err != nil {
		return err
	}
	defer client.Close()

	printJson(map[string]any{
		"url":         config.Url,
		"session":     handshake.Session,
		"version":     handshake.Version,
		"instance_id": client.InstanceId().String(),
	})
	return nil
}

// call a method and print the result
func call(opts docopt.Opts, config *Config) error {
	method, _ := opts.String("<method>")
	params, err := parseParams(opts)
	if err != nil {
		return err
	}
	timeout, err := config.TimeoutDuration()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, _, err := newConnectedClient(ctx, config)
	if err != nil {
		return err
	}
	defer client.Close()

	callCtx, callCancel := context.WithTimeout(ctx, timeout)
	defer callCancel()
	result, err := client.Call(method, params...).Wait(callCtx)
	if err != nil {
		var protocolErr *ddp.ProtocolError
		if errors.As(err, &protocolErr) {
			printJson(protocolErr)
		}
		return fmt.Errorf("Call %s failed (%w).", method, err)
	}
	printJson(result)
	return nil
}

type watchEvent struct {
	Collection string       `json:"collection"`
	Event      string       `json:"event"`
	Doc        ddp.Document `json:"doc"`
}

// subscribe and print changes to the watched collections
func sub(opts docopt.Opts, config *Config) error {
	name, _ := opts.String("<name>")
	params, err := parseParams(opts)
	if err != nil {
		return err
	}
	timeout, err := config.TimeoutDuration()
	if err != nil {
		return err
	}
	eventCount := -1
	if eventCount_, err := opts.Int("--event_count"); err == nil {
		eventCount = eventCount_
	}
	var watch []string
	if watch_, ok := opts["--watch"].([]string); ok {
		watch = slices.Clone(watch_)
	}
	slices.Sort(watch)
	watch = slices.Compact(watch)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, _, err := newConnectedClient(ctx, config)
	if err != nil {
		return err
	}
	defer client.Close()

	// observers stop delivering once the printing loop ends,
	// so they cannot hold up the dispatch of the unsubscribe
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	events := make(chan *watchEvent, 1024)
	for _, collectionName := range watch {
		client.Watch(collectionName, watchObserver(watchCtx, collectionName, events))
	}

	readyCtx, readyCancel := context.WithTimeout(ctx, timeout)
	defer readyCancel()
	if _, err := client.Subscribe(name, params...).Wait(readyCtx); err != nil {
		return fmt.Errorf("Subscribe %s failed (%w).", name, err)
	}

	for i := 0; eventCount < 0 || i < eventCount; i += 1 {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return errors.New("Connection closed.")
		case event := <-events:
			printJson(event)
		}
	}

	watchCancel()

	unsubCtx, unsubCancel := context.WithTimeout(ctx, timeout)
	defer unsubCancel()
	if _, err := client.Unsubscribe(name).Wait(unsubCtx); err != nil {
		Err.Printf("Unsubscribe %s failed (%s).\n", name, err)
	}
	return nil
}

// the observer blocks while `events` is full, until `ctx` is done.
// After that, events are dropped
func watchObserver(ctx context.Context, collectionName string, events chan<- *watchEvent) ddp.ObserverFunction {
	return func(doc ddp.Document, event string) {
		select {
		case <-ctx.Done():
		case events <- &watchEvent{
			Collection: collectionName,
			Event:      event,
			Doc:        doc,
		}:
		}
	}
}
