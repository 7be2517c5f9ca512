package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"mixdeck"
)

func main() {
	var (
		udpAddr   = flag.String("udp", "", "Act as the host mixer: listen for datagrams on this address (e.g. 0.0.0.0:16991)")
		wsURL     = flag.String("ws", "", "Watch the daemon state stream (e.g. ws://127.0.0.1:3002/ws/state)")
		prefix    = flag.String("slider-prefix", mixdeck.DefaultSliderPrefix, "Tag word in front of slider reports")
		primary   = flag.String("primary", mixdeck.DefaultPrimaryName, "Device name of the primary route")
		secondary = flag.String("secondary", mixdeck.DefaultSecondaryName, "Device name of the secondary route")
	)
	flag.Parse()

	if *udpAddr == "" && *wsURL == "" {
		*udpAddr = fmt.Sprintf("0.0.0.0:%d", mixdeck.DefaultControlPort)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	var closers []func()

	if *udpAddr != "" {
		pc, err := net.ListenPacket("udp", *udpAddr)
		if err != nil {
			log.Fatalf("failed to listen on %s: %v", *udpAddr, err)
		}
		closers = append(closers, func() { pc.Close() })
		log.Printf("listening for mixer messages on %s", pc.LocalAddr())

		rx := newReceiver(mixdeck.RouteNames{*primary, *secondary})
		go func() {
			defer close(done)
			serveUDP(pc, *prefix, rx)
		}()
	}

	if *wsURL != "" {
		u, err := url.Parse(*wsURL)
		if err != nil {
			log.Fatalf("invalid websocket URL: %v", err)
		}
		closeWS, wsDone, err := watchState(u)
		if err != nil {
			log.Fatalf("failed to connect: %v", err)
		}
		closers = append(closers, closeWS)
		if *udpAddr == "" {
			done = wsDone
		}
	}

	log.Printf("press Ctrl+C to exit")

	select {
	case <-sigc:
		log.Printf("shutting down...")
	case <-done:
		log.Printf("connection closed")
	}
	for _, c := range closers {
		c()
	}
}

// serveUDP reads datagrams until pc is closed.
func serveUDP(pc net.PacketConn, prefix string, rx *receiver) {
	buf := make([]byte, 2048)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Printf("read failed: %v", err)
			}
			return
		}
		text := string(buf[:n])

		msg, err := mixdeck.ParseMessage(text, prefix)
		if err != nil {
			fmt.Printf("[UNKNOWN] %q from %s: %v\n", text, from, err)
			continue
		}
		changes := rx.apply(msg)
		if len(changes) == 0 {
			continue
		}
		for _, c := range changes {
			fmt.Printf("[%s] %s\n", msg.Kind, c)
		}
		fmt.Printf("         %s\n", rx.summary())
	}
}

// watchState connects to the daemon state stream and prints every envelope.
func watchState(u *url.URL) (func(), chan struct{}, error) {
	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("connected to state stream")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	go func() {
		for range pingTicker.C {
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType == websocket.TextMessage {
				printEnvelope(message)
			}
		}
	}()

	closeFn := func() {
		pingTicker.Stop()
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		conn.Close()
	}
	return closeFn, done, nil
}

type stateEnvelope struct {
	Type string          `json:"type"`
	Ts   *int64          `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func printEnvelope(message []byte) {
	line, err := formatEnvelope(message)
	if err != nil {
		fmt.Printf("[RAW] %s\n", message)
		return
	}
	fmt.Println(line)
}

// formatEnvelope renders one state message as "[type] data".
func formatEnvelope(message []byte) (string, error) {
	var env stateEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return "", err
	}
	if env.Type == "" {
		return "", errors.New("missing type")
	}
	if len(env.Data) == 0 {
		return fmt.Sprintf("[%s]", env.Type), nil
	}
	return fmt.Sprintf("[%s] %s", env.Type, env.Data), nil
}
