// Command client is a terminal front end for the realtime layer: it opens
// the session channel, routes messages by conversation, and drives calls
// through the signaling state machine. Contact and history backends are
// in-memory stand-ins; the realtime paths are the real ones.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/adapters/media"
	"github.com/arlev/tether/internal/adapters/rtc"
	"github.com/arlev/tether/internal/adapters/ws"
	"github.com/arlev/tether/internal/app"
	"github.com/arlev/tether/internal/app/call"
	"github.com/arlev/tether/internal/config"
	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

// consoleNotifier prints user-facing notices on stdout, separate from the
// zerolog diagnostic stream on stderr.
type consoleNotifier struct{}

func (consoleNotifier) Info(msg string)    { fmt.Println("* " + msg) }
func (consoleNotifier) Success(msg string) { fmt.Println("+ " + msg) }
func (consoleNotifier) Error(msg string)   { fmt.Println("! " + msg) }

// memoryBackend stands in for the contacts/history/upload services that
// live behind the REST API in a full deployment.
type memoryBackend struct{}

func (memoryBackend) DirectHistory(context.Context, domain.UserID) ([]domain.Message, error) {
	return nil, nil
}

func (memoryBackend) GroupHistory(context.Context, domain.GroupID) ([]domain.Message, error) {
	return nil, nil
}

func (memoryBackend) Upload(_ context.Context, name string, r io.Reader) (core.UploadResult, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return core.UploadResult{}, err
	}
	return core.UploadResult{
		FileURL:     "mem://" + uuid.NewString() + "/" + name,
		MessageType: domain.MessageFile,
	}, nil
}

func (memoryBackend) AcceptFriendRequest(context.Context, string) error { return nil }
func (memoryBackend) RefreshContacts(context.Context) error             { return nil }

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: client <userId>")
		os.Exit(2)
	}
	identity, err := domain.ParseUserID(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad userId %q: %v\n", os.Args[1], err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ch := ws.New(cfg)
	if err := ch.Open(ctx, identity); err != nil {
		log.Fatal().Err(err).Msg("cannot reach relay")
	}
	defer ch.Close()

	device, err := media.NewDevice()
	if err != nil {
		log.Fatal().Err(err).Msg("media device init")
	}
	api, err := device.API()
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api init")
	}

	notify := consoleNotifier{}
	backend := memoryBackend{}
	state := app.NewState()
	router := app.NewRouter(ch, state, backend, backend, notify)
	defer router.Close()
	presence := app.NewPresence(ch, state, backend, notify)
	defer presence.Close()

	// Second subscription alongside the router's: the router files the
	// message into history, this one paints it.
	unprint := ch.Subscribe(core.EventReceiveMessage, func(payload json.RawMessage) {
		var m domain.Message
		if err := json.Unmarshal(payload, &m); err != nil {
			return
		}
		body := m.Content
		if m.FileURL != "" {
			body = "(" + string(m.Type) + ") " + m.FileURL
		}
		if m.IsGroup() {
			fmt.Printf("[%s] %s: %s\n", m.GroupID, m.Sender, body)
			return
		}
		fmt.Printf("%s: %s\n", m.Sender, body)
	})
	defer unprint()

	rtcCfg := rtc.Configuration(cfg.ICEServers)
	machine := call.NewMachine(ch, device, func(peer domain.UserID) (core.MediaConnection, error) {
		return rtc.New(api, rtcCfg, peer)
	}, notify, cfg.NegotiationTimeout)
	defer machine.Close()

	fmt.Printf("connected as %s; /help for commands\n", identity)
	go repl(ctx, cancel, router, presence, machine)

	<-ctx.Done()
	fmt.Println("bye")
}

func repl(ctx context.Context, quit context.CancelFunc, router *app.Router, presence *app.Presence, machine *call.Machine) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")

		switch cmd {
		case "/help":
			fmt.Println(`/dm <user> <text>     send a direct message
/group <id> <text>    send to a group
/file <user> <path>   send a file as a direct message
/call <user>          start a video call
/accept               accept the incoming call
/reject               reject the incoming call
/hangup               end the call
/mute /unmute         toggle microphone
/camoff /camon        toggle camera
/accept-friend <id>   accept a pending friend request
/quit`)

		case "/dm":
			peer, text, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("usage: /dm <user> <text>")
				continue
			}
			conv := domain.DirectConversation(domain.UserID(peer))
			if err := router.SendText(conv, text); err != nil {
				fmt.Println("! " + err.Error())
			}

		case "/group":
			grp, text, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("usage: /group <id> <text>")
				continue
			}
			conv := domain.GroupConversation(domain.GroupID(grp))
			if err := router.SendText(conv, text); err != nil {
				fmt.Println("! " + err.Error())
			}

		case "/file":
			peer, path, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("usage: /file <user> <path>")
				continue
			}
			f, err := os.Open(path)
			if err != nil {
				fmt.Println("! " + err.Error())
				continue
			}
			conv := domain.DirectConversation(domain.UserID(peer))
			if err := router.SendFile(ctx, conv, path, f); err != nil {
				fmt.Println("! " + err.Error())
			}
			_ = f.Close()

		case "/call":
			if rest == "" {
				fmt.Println("usage: /call <user>")
				continue
			}
			if err := machine.StartCall(ctx, domain.UserID(rest)); err != nil {
				fmt.Println("! " + err.Error())
			}

		case "/accept":
			if err := machine.Accept(ctx); err != nil {
				fmt.Println("! " + err.Error())
			}

		case "/reject":
			machine.Reject()

		case "/hangup":
			machine.Hangup()

		case "/mute":
			machine.SetAudioEnabled(false)
		case "/unmute":
			machine.SetAudioEnabled(true)
		case "/camoff":
			machine.SetVideoEnabled(false)
		case "/camon":
			machine.SetVideoEnabled(true)

		case "/accept-friend":
			if rest == "" {
				fmt.Println("usage: /accept-friend <id>")
				continue
			}
			if err := presence.Accept(ctx, rest); err != nil {
				fmt.Println("! " + err.Error())
			}

		case "/quit":
			quit()
			return

		default:
			fmt.Println("unknown command, /help for help")
		}
	}
	quit()
}
