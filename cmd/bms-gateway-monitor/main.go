// Command bms-gateway-monitor is a standalone diagnostic companion to
// bms-gateway: it subscribes directly to the MQTT telemetry topic and
// renders each unified-state message in an interactive readline shell,
// in the shape of the teacher's (ryansname-powerctl) debug_worker.go
// REPL, watching one JSON topic instead of many raw ones.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ulukas/bms-gateway/internal/telemetry"
)

// readlineWriter routes log output through the active readline prompt
// so log lines never clobber the input line, mirroring debug_worker.go.
type readlineWriter struct {
	rl *readline.Instance
}

func (w *readlineWriter) Write(p []byte) (int, error) {
	if w.rl != nil {
		w.rl.Clean()
	}
	n, err := os.Stderr.Write(p)
	if w.rl != nil {
		w.rl.Refresh()
	}
	return n, err
}

var rlWriter = &readlineWriter{}

// monitorState tracks the current display filter and the last received
// message, mirroring debug_worker.go's DebugState.
type monitorState struct {
	rl     *readline.Instance
	filter string // "", "soc", "errors", "warnings", "status", "inputs"
	latest *telemetry.Message
}

func (s *monitorState) print(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if s.rl != nil {
		s.rl.Clean()
		fmt.Println(line)
		s.rl.Refresh()
	} else {
		fmt.Println(line)
	}
}

func (s *monitorState) handleCommand(cmd string) bool {
	switch strings.TrimSpace(cmd) {
	case "soc", "errors", "warnings", "status", "inputs":
		s.filter = cmd
		s.print("filtering on: %s", cmd)
	case "all", "":
		s.filter = ""
		s.print("showing full message")
	case "quit", "exit":
		return false
	case "help":
		s.print("commands: soc | errors | warnings | status | inputs | all | quit")
	default:
		s.print("unknown command: %s (try 'help')", cmd)
	}
	return true
}

func (s *monitorState) render(msg telemetry.Message) {
	s.latest = &msg
	ts := time.Unix(0, int64(msg.Timestamp*float64(time.Second))).Format(time.RFC3339)

	switch s.filter {
	case "soc":
		s.print("[%s] gen=%d soc=%.1f%% soh=%.1f%%", ts, msg.Generation, msg.SOC, msg.SOH)
	case "errors":
		s.print("[%s] gen=%d errors=%v", ts, msg.Generation, msg.Errors)
	case "warnings":
		s.print("[%s] gen=%d warnings=%v", ts, msg.Generation, msg.Warnings)
	case "status":
		s.print("[%s] gen=%d status=%v", ts, msg.Generation, msg.Status)
	case "inputs":
		s.print("[%s] gen=%d inputs=%v", ts, msg.Generation, msg.Inputs)
	default:
		payload, _ := json.Marshal(msg)
		s.print("[%s] %s", ts, payload)
	}
}

func getHistoryFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(cacheDir, "bms-gateway-monitor")
	_ = os.MkdirAll(dir, 0o750)
	return filepath.Join(dir, "monitor_history")
}

func main() {
	broker := flag.String("broker", "localhost", "MQTT broker host")
	port := flag.Int("port", 1883, "MQTT broker port")
	topic := flag.String("topic", "tele/bms/state", "telemetry topic to subscribe to")
	flag.Parse()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: getHistoryFilePath(),
	})
	if err != nil {
		log.Fatalf("monitor: readline init failed: %v", err)
	}
	defer rl.Close()

	rlWriter.rl = rl
	log.SetOutput(rlWriter)

	state := &monitorState{rl: rl}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", *broker, *port))
	opts.SetClientID("bms-gateway-monitor")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(1 * time.Second)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("monitor: connected to %s:%d, subscribing to %s", *broker, *port, *topic)
		token := client.Subscribe(*topic, 0, func(_ mqtt.Client, m mqtt.Message) {
			var msg telemetry.Message
			if err := json.Unmarshal(m.Payload(), &msg); err != nil {
				log.Printf("monitor: malformed telemetry message: %v", err)
				return
			}
			state.render(msg)
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("monitor: subscribe failed: %v", token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("monitor: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("monitor: connect failed: %v", token.Error())
	}
	defer client.Disconnect(250)

	log.Println("monitor: type 'help' for commands, 'quit' to exit")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			return
		}
		if !state.handleCommand(line) {
			return
		}
	}
}
