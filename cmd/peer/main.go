// Command peer hosts or joins a room from the terminal. The host holds the
// authoritative room and serves guests over WebRTC data channels; a guest
// mirrors the host's snapshots and submits intents.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/adapters/rtc"
	"github.com/sryo/nombre-pendiente/internal/config"
	"github.com/sryo/nombre-pendiente/internal/domain"
	"github.com/sryo/nombre-pendiente/internal/guest"
	"github.com/sryo/nombre-pendiente/internal/host"
	"github.com/sryo/nombre-pendiente/internal/identity"
	"github.com/sryo/nombre-pendiente/internal/lookup"
	"github.com/sryo/nombre-pendiente/internal/transport"
)

func main() {
	roomName := flag.String("room", "", "room name")
	asHost := flag.Bool("host", false, "host the room instead of joining")
	name := flag.String("name", "", "display name (persisted)")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if *roomName == "" {
		fmt.Fprintln(os.Stderr, "usage: peer -room <name> [-host] [-name <display name>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	user, err := loadIdentity(cfg, *name)
	if err != nil {
		log.Fatal().Err(err).Msg("identity")
	}
	if user.Name == "" {
		fmt.Fprintln(os.Stderr, "pick a display name first: peer -name <name> ...")
		os.Exit(2)
	}

	tr := rtc.New(cfg.Broker.URL, cfg.RTC.StunServers)
	finder := lookup.NewClient(cfg.Lookup.PipedInstances, cfg.Lookup.NoembedURL)

	p := &peer{cfg: cfg, user: user, finder: finder}
	if *asHost {
		p.runHost(tr, *roomName)
	} else {
		p.runGuest(tr, *roomName)
	}
}

func loadIdentity(cfg *config.Config, override string) (domain.User, error) {
	path := cfg.IdentityFile
	if path == "" {
		var err error
		path, err = identity.DefaultPath()
		if err != nil {
			return domain.User{}, err
		}
	}
	store := &identity.FileStore{Path: path}
	user, err := store.Load()
	if err != nil {
		return domain.User{}, err
	}
	if override != "" && override != user.Name {
		if err := user.SetName(override); err != nil {
			return domain.User{}, err
		}
		if err := store.Save(user); err != nil {
			return domain.User{}, err
		}
	}
	return user, nil
}

// peer holds the last rendered snapshot so commands can refer to videos by
// list position.
type peer struct {
	cfg    *config.Config
	user   domain.User
	finder *lookup.Client

	mu      sync.Mutex
	view    *domain.Room
	results []domain.Video
}

func (p *peer) render(room *domain.Room) {
	p.mu.Lock()
	p.view = room
	p.mu.Unlock()

	fmt.Printf("\n== phase: %s", room.Phase)
	if room.Topic != "" {
		fmt.Printf("  topic: %s", room.Topic)
	}
	fmt.Printf("  (%d users)\n", len(room.Users))
	videos := room.Videos
	if room.Phase == domain.PhaseResults {
		videos = domain.ComputeRanking(room.Videos)
		if winners := domain.Winners(videos); len(winners) > 0 {
			names := make([]string, 0, len(winners))
			for _, w := range winners {
				names = append(names, w.Title)
			}
			fmt.Printf("   winner: %s\n", strings.Join(names, ", "))
		} else {
			fmt.Println("   no votes this round")
		}
	}
	for i, v := range videos {
		fmt.Printf("   %d. %s — %s (%d votes, added by %s)\n",
			i+1, v.Title, v.Author, len(v.Votes), v.AddedBy)
	}
	fmt.Print("> ")
}

func (p *peer) videoAt(arg string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.view == nil {
		return "", false
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(p.view.Videos) {
		return "", false
	}
	return p.view.Videos[n-1].ID, true
}

// resolve finds candidates for the input; a direct link yields one result
// which is returned for immediate adding, a search prints choices for pick.
func (p *peer) resolve(input string) (domain.Video, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	results, err := p.finder.Resolve(ctx, input)
	if err != nil || len(results) == 0 {
		fmt.Println("no results; paste a YouTube link instead")
		return domain.Video{}, false
	}
	if len(results) == 1 {
		return results[0], true
	}
	p.mu.Lock()
	p.results = results
	p.mu.Unlock()
	for i, r := range results {
		fmt.Printf("   %d) %s — %s\n", i+1, r.Title, r.Author)
	}
	fmt.Println("use: pick <n>")
	return domain.Video{}, false
}

func (p *peer) pick(arg string) (domain.Video, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(p.results) {
		return domain.Video{}, false
	}
	v := p.results[n-1]
	p.results = nil
	return v, true
}

func (p *peer) runHost(tr transport.Transport, roomName string) {
	id, err := transport.RoomIdentity(roomName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid room name")
		os.Exit(1)
	}
	lis, err := tr.Listen(id)
	if err == transport.ErrIdentityTaken {
		fmt.Fprintln(os.Stderr, "that room already exists; join it or pick another name")
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
	defer lis.Close()

	rep := host.New(host.Options{
		Host:     p.user,
		Policy:   host.Policy{OneVideoPerUser: p.cfg.Room.OneVideoPerUser},
		Grace:    p.cfg.Room.GracePeriod,
		OnChange: p.render,
		OnNotice: func(msg string) { fmt.Println("* " + msg) },
	})
	defer rep.Stop()
	go rep.Serve(lis)

	fmt.Printf("hosting %q — commands: add <link|query>, pick <n>, vote <n>, remove <n>, next, again [topic], quit\n> ", roomName)
	p.render(rep.Room())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd, arg := splitCommand(scanner.Text())
		switch cmd {
		case "add":
			if v, ok := p.resolve(arg); ok {
				v.AddedBy = p.user.Name
				p.reportErr(rep.AddVideo(v))
			}
		case "pick":
			if v, ok := p.pick(arg); ok {
				v.AddedBy = p.user.Name
				p.reportErr(rep.AddVideo(v))
			}
		case "vote":
			if vid, ok := p.videoAt(arg); ok {
				p.reportErr(rep.Vote(vid))
			}
		case "remove":
			if vid, ok := p.videoAt(arg); ok {
				rep.RemoveVideo(vid)
			}
		case "next":
			p.reportErr(rep.AdvancePhase())
		case "again":
			rep.ResetForNewRound(arg)
		case "quit", "exit":
			return
		case "":
		default:
			fmt.Println("unknown command")
			fmt.Print("> ")
		}
	}
}

func (p *peer) runGuest(tr transport.Transport, roomName string) {
	done := make(chan struct{})
	client := guest.New(guest.Options{
		Transport:     tr,
		User:          p.user,
		MaxReconnects: p.cfg.Room.ReconnectAttempts,
		Backoff:       p.cfg.Room.ReconnectBackoff,
		OnState:       p.render,
		OnError:       func(msg string) { fmt.Println("! " + msg) },
		OnGone: func() {
			fmt.Println("lost the room for good")
			close(done)
		},
	})

	err := client.Connect(roomName)
	switch {
	case err == transport.ErrPeerUnreachable:
		fmt.Fprintln(os.Stderr, "room does not exist or the host is offline")
		os.Exit(1)
	case err != nil:
		log.Fatal().Err(err).Msg("connect")
	}
	defer client.Leave()

	fmt.Printf("joined %q — commands: add <link|query>, pick <n>, vote <n>, leave\n> ", roomName)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, arg := splitCommand(line)
			switch cmd {
			case "add":
				if v, ok := p.resolve(arg); ok {
					p.reportErr(client.AddVideo(v))
				}
			case "pick":
				if v, ok := p.pick(arg); ok {
					p.reportErr(client.AddVideo(v))
				}
			case "vote":
				if vid, ok := p.videoAt(arg); ok {
					p.reportErr(client.Vote(vid))
				}
			case "leave", "quit", "exit":
				return
			case "":
			default:
				fmt.Println("unknown command")
				fmt.Print("> ")
			}
		}
	}
}

func (p *peer) reportErr(err error) {
	if err != nil {
		fmt.Println("! " + err.Error())
		fmt.Print("> ")
	}
}

func splitCommand(line string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
	cmd := strings.ToLower(parts[0])
	if len(parts) == 2 {
		return cmd, strings.TrimSpace(parts[1])
	}
	return cmd, ""
}
