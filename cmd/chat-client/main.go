package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/ReemKish/chat-program/pkg/client"
	"github.com/ReemKish/chat-program/pkg/protocol"
	"github.com/ReemKish/chat-program/pkg/secure"
)

func main() {
	addr := flag.String("addr", "localhost:8000", "server address")
	name := flag.String("name", "", "member name (required)")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: chat-client -name <name> [-addr host:port]")
		os.Exit(1)
	}

	identity, err := secure.GenerateIdentity()
	if err != nil {
		log.Fatalf("Failed to generate identity: %v", err)
	}

	sess, err := client.Dial(*addr, *name, identity)
	if err != nil {
		var rejection *client.RejectionError
		if errors.As(err, &rejection) {
			fmt.Fprintln(os.Stderr, rejection.Reason)
			os.Exit(1)
		}
		log.Fatalf("Failed to connect: %v", err)
	}
	defer sess.Close()

	// Incoming messages print as they arrive; input is read line by line.
	go func() {
		for {
			payload, err := sess.Receive()
			if err != nil {
				if err == io.EOF {
					fmt.Println("Disconnected.")
					os.Exit(0)
				}
				log.Fatalf("Receive failed: %v", err)
			}
			printPayload(payload)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		payload, err := client.ParseInput(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}
		if err := sess.Send(payload); err != nil {
			log.Fatalf("Send failed: %v", err)
		}
		if cmd, ok := payload.(*protocol.Command); ok && cmd.Kind == protocol.CmdQuit {
			return
		}
	}
}

func printPayload(payload protocol.Payload) {
	switch p := payload.(type) {
	case *protocol.ServerMessage:
		if p.Name == "" {
			fmt.Printf("[%s] %s\n", p.Time().Format("15:04:05"), p.Msg)
		} else {
			fmt.Printf("[%s] %s: %s\n", p.Time().Format("15:04:05"), p.Name, p.Msg)
		}
	case *protocol.FileAttachRecv:
		fmt.Printf("%s shared a file: %s\n", p.SenderName, p.Filename)
	case *protocol.RawBytes:
		fmt.Printf("Received %d bytes\n", len(p.Data))
	}
}
