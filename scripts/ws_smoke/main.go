package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/relaychat/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket gateway address")
	alias := flag.String("alias", "tester", "alias to request")
	text := flag.String("text", "hello from smoke test", "message text to broadcast")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	pause := flag.Duration("pause", 100*time.Millisecond, "delay after a command with no reply, so it is not merged with the next one")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(s string) error {
		if err := conn.Write(ctx, websocket.MessageText, []byte(s)); err != nil {
			return fmt.Errorf("send %q: %w", s, err)
		}
		return nil
	}
	expect := func(command string) (proto.Event, error) {
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return proto.Event{}, fmt.Errorf("read: %w", err)
			}
			cmd, arg := proto.Decode(strings.TrimSpace(string(data)))
			fmt.Printf("Received: cmd=%s arg=%q\n", cmd, arg)
			switch cmd {
			case command:
				return proto.Event{Command: cmd, Argument: arg}, nil
			case proto.CmdRefused:
				return proto.Event{}, fmt.Errorf("alias %q refused: %s", *alias, arg)
			case proto.CmdHist:
				if command == proto.CmdOK {
					return proto.Event{Command: cmd, Argument: arg}, nil
				}
			}
		}
	}

	if _, err := expect(proto.CmdWaitFor); err != nil {
		return err
	}
	if err := send(*alias); err != nil {
		return err
	}
	if _, err := expect(proto.CmdOK); err != nil {
		return err
	}

	if err := send(proto.CmdMsg + " " + *text); err != nil {
		return err
	}
	time.Sleep(*pause)
	if err := send(proto.CmdList); err != nil {
		return err
	}
	list, err := expect(proto.CmdList)
	if err != nil {
		return err
	}
	fmt.Printf("Connected aliases: %v\n", proto.SplitList(list.Argument))

	if err := send(proto.CmdExitLower); err != nil {
		return err
	}
	_, err = expect(proto.CmdEnd)
	return err
}
