package router

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"schedbot/internal/eventbus"
	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/schedule"
	"schedbot/internal/syncer"
	kit "schedbot/internal/transport"
	logx "schedbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessAuthorized requires the sender's handle to have a notification address.
	AccessAuthorized
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	Username string
	Command  string
	Args     []string
	Text     string
	ReqID    string
	Logger   logx.Logger

	// Step is the /schedule step this message answered, if any.
	Step string
	// Outcome names the reply the bot chose, for the request log.
	Outcome string
	// Slots is the number of schedule slots shown.
	Slots int
}

// Directory is the store-backed read path plus /start authorization.
type Directory interface {
	IsAuthorized(ctx context.Context, handle string) (bool, error)
	Authorize(ctx context.Context, handle string, address int64) (schedule.AuthResult, error)
	EventsFor(ctx context.Context, f schedule.Filter) ([]schedule.Slot, error)
	EventsForHandle(ctx context.Context, handle string) ([]schedule.Slot, error)
}

// StatusSource exposes the polling loop for /status.
type StatusSource interface {
	Snapshot() syncer.Snapshot
}

type Config struct {
	Owners          []int64
	Workers         int
	QueueSize       int
	CommandTimeout  time.Duration
	ConversationTTL time.Duration
}

type Router struct {
	log    logx.Logger
	sender kit.Sender
	dir    Directory
	status StatusSource
	bus    eventbus.Bus

	mu      sync.RWMutex
	cmds    map[string]*Command
	order   []*Command
	owners  []int64
	timeout time.Duration

	convs   *conversations
	workers int

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(cfg Config, sender kit.Sender, dir Directory, status StatusSource, log logx.Logger, bus eventbus.Bus) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 2)
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 256
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &Router{
		log:     log,
		sender:  sender,
		dir:     dir,
		status:  status,
		bus:     eventbus.OrNop(bus),
		cmds:    map[string]*Command{},
		owners:  append([]int64(nil), cfg.Owners...),
		timeout: timeout,
		convs:   newConversations(cfg.ConversationTTL, nil),
		workers: workers,
		jobs:    make(chan func(), queue),
	}
	r.SetRegistry(r.builtinCommands())
	return r
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

func (r *Router) ownersSnapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.owners...)
}

// SetRegistry replaces the command set. Names and aliases are matched case-insensitively.
func (r *Router) SetRegistry(cmds []Command) {
	byName := make(map[string]*Command, len(cmds))
	order := make([]*Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
		order = append(order, &cc)
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				continue
			}
			if _, exists := byName[a]; !exists {
				byName[a] = &cc
			}
		}
	}
	r.mu.Lock()
	r.cmds = byName
	r.order = order
	r.mu.Unlock()
}

func (r *Router) lookup(name string) *Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cmds[name]
}

// MenuCommands is the list published as the Telegram command menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	r.mu.RLock()
	cmds := append([]*Command(nil), r.order...)
	r.mu.RUnlock()
	return buildMenuCommands(cmds)
}

func (r *Router) publishMenu(ctx context.Context) {
	up, ok := r.sender.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(cctx, r.MenuCommands()); err != nil {
		r.log.Warn("menu update failed", logx.Err(err))
	}
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func (r *Router) setSupervisor(sup *rtsup.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
// Handlers run on a bounded worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.setSupervisor(sup, true)
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	sup.Go0("telegram.menu.update", r.publishMenu)

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			r.setSupervisor(sup, false)
			close(r.jobs)
		})
	}

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if p := recover(); p != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.setSupervisor(nil, false)
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				r.log.Info("updates channel closed")
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			if !r.tryEnqueue(func() { r.handle(ctx, up) }) {
				msg := up.Message
				_, _ = r.sender.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, busyText, nil)
			}
		}
	}
}

// handle routes one message: commands by name, everything else through the text handler.
func (r *Router) handle(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	req := &Request{
		Update:   up,
		Chat:     kit.ChatTarget{ChatID: msg.ChatID},
		FromID:   msg.FromID,
		Username: schedule.NormalizeHandle(msg.FromUsername),
		Text:     strings.TrimSpace(msg.Text),
		ReqID:    newReqID(),
	}

	var cmd Command
	if name, args, ok := parseCommand(req.Text); ok {
		// a new command abandons any pending /schedule step
		r.convs.clear(msg.ChatID)
		req.Args = args
		if c := r.lookup(name); c != nil {
			cmd = *c
		} else {
			// unknown commands behave like free text
			cmd = Command{Name: name, Access: AccessAuthorized, Handle: r.cmdHelp}
		}
	} else {
		cmd = Command{Name: "text", Access: AccessAuthorized, Handle: r.onText}
	}
	req.Command = cmd.Name
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
	)

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
		r.mwAccess(cmd.Access),
	)
	_ = final(ctx, req)
}

func (r *Router) mwAccess(a Access) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			switch a {
			case AccessOwnerOnly:
				if !slices.Contains(r.ownersSnapshot(), req.FromID) {
					req.Outcome = "not_owner"
					return r.reply(ctx, req, unauthorizedText, nil)
				}
			case AccessAuthorized:
				ok, err := r.dir.IsAuthorized(ctx, req.Username)
				if err != nil {
					req.Outcome = "failure"
					_ = r.reply(ctx, req, failureText, nil)
					return fmt.Errorf("authorization check: %w", err)
				}
				if !ok {
					req.Outcome = "not_organizer"
					return r.reply(ctx, req, notOrganizerText, nil)
				}
			}
			return next(ctx, req)
		}
	}
}

func (r *Router) reply(ctx context.Context, req *Request, text string, opt *kit.SendOptions) error {
	_, err := r.sender.SendText(ctx, req.Chat, text, opt)
	return err
}

func (r *Router) isOwner(id int64) bool {
	return slices.Contains(r.ownersSnapshot(), id)
}
