package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/norasector/rigcore/pkg/command"
	"github.com/norasector/rigcore/pkg/uibridge"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// rigctl sends text commands to a running rigcore:
//
//	rigctl -socket /tmp/rigcore 'SET RX_TUNE_FREQ D 14.074e6' 'GET RX_FE_FREQ'
//
// GETs wait for the matching report and print it. With no arguments it
// reads commands from stdin, one per line. -watch prints every report.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	socket := flag.String("socket", "/tmp/rigcore", "rigcore command socket")
	timeout := flag.Duration("timeout", 2*time.Second, "how long to wait for a GET's report")
	watch := flag.Bool("watch", false, "print every report until interrupted")
	flag.Parse()

	client, err := uibridge.Dial(*socket)
	if err != nil {
		log.Fatal().Err(err).Str("socket", *socket).Msg("failed to connect")
	}
	defer client.Close()

	lines := flag.Args()
	if len(lines) == 0 && !*watch {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			log.Fatal().Err(err).Msg("reading stdin")
		}
	}

	for _, line := range lines {
		cmd, err := command.Parse(line)
		if err != nil {
			log.Fatal().Err(err).Msg("bad command")
		}
		if cmd.Kind != command.Get {
			if err := client.Send(cmd); err != nil {
				log.Fatal().Err(err).Str("cmd", line).Msg("send failed")
			}
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		rep, err := client.Request(ctx, cmd)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("cmd", line).Msg("no report")
		}
		fmt.Println(rep)
	}

	if !*watch {
		return
	}
	for {
		rep, err := client.Recv()
		if err != nil {
			log.Fatal().Err(err).Msg("connection closed")
		}
		fmt.Println(rep)
	}
}
