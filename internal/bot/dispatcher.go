package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/roselinebot/roseline/internal/executor"
	"github.com/roselinebot/roseline/internal/store"
	"github.com/roselinebot/roseline/internal/vndb"
)

// retryDelay is how long the dispatcher waits before re-submitting a
// command that failed on a lost remote connection.
const retryDelay = 500 * time.Millisecond

// Workflows is the executor surface the dispatcher drives.
type Workflows interface {
	FindVN(ctx context.Context, title string) (vndb.VNItem, error)
	GetHook(ctx context.Context, refOrTitle string) (store.VNData, error)
	SetHook(ctx context.Context, refOrTitle, version, code string) (store.Hook, error)
	DelHook(ctx context.Context, refOrTitle, version string) (int64, error)
	DelVN(ctx context.Context, refOrTitle string) (int64, error)
	GetRemoteObject(ctx context.Context, kind vndb.RefKind, id uint64) (vndb.Results, error)
}

type retryItem struct {
	ev      Event
	cmd     Command
	attempt int
}

// Dispatcher serves one transport: it parses inbound messages, runs the
// matching workflow and sends back formatted reply lines. Each workflow
// command runs on its own goroutine, so a slow remote never stalls
// later messages on the transport. Transient remote failures are
// re-submitted once after retryDelay with the original
// sender/target/private context preserved.
type Dispatcher struct {
	exec      Workflows
	transport Transport
	ignored   *ignoreList
	delay     time.Duration
	log       zerolog.Logger

	retries chan retryItem
	stop    chan struct{}
	done    chan struct{}
}

// NewDispatcher creates a dispatcher for the transport. Run must be
// called to start serving.
func NewDispatcher(exec Workflows, transport Transport) *Dispatcher {
	return &Dispatcher{
		exec:      exec,
		transport: transport,
		ignored:   newIgnoreList(),
		delay:     retryDelay,
		log:       log.With().Str("component", "dispatcher").Str("transport", transport.Name()).Logger(),
		retries:   make(chan retryItem),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run consumes transport events until the event channel closes or Stop
// is called.
func (d *Dispatcher) Run() {
	defer close(d.done)
	events := d.transport.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				d.log.Info().Msg("transport closed")
				return
			}
			d.handle(ev)
		case item := <-d.retries:
			go d.execute(item.ev, item.attempt, item.cmd)
		case <-d.stop:
			return
		}
	}
}

// Stop terminates the dispatcher and waits for the event loop to exit.
// In-flight workflow goroutines finish on their own; Transport.Send is
// safe at any time.
func (d *Dispatcher) Stop() {
	select {
	case <-d.done:
		return
	default:
	}
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) send(ev Event, text string) {
	d.transport.Send(ev.replyTarget(), text)
}

// scheduleRetry re-posts the command to the dispatcher after the delay.
func (d *Dispatcher) scheduleRetry(ev Event, cmd Command, attempt int) {
	d.log.Debug().Str("from", ev.From).Int("attempt", attempt).Msg("retrying after transient failure")
	go func() {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-d.stop:
			return
		}
		select {
		case d.retries <- retryItem{ev: ev, cmd: cmd, attempt: attempt}:
		case <-d.stop:
		}
	}()
}

// handle does only the cheap work on the event loop: the ignore check,
// parsing, and replies that need no workflow. Everything touching the
// executor is handed to its own goroutine.
func (d *Dispatcher) handle(ev Event) {
	if d.ignored.Contains(ev.From) {
		return
	}

	cmd, ok := ParseCommand(ev.Text)
	if !ok {
		return
	}

	switch cmd := cmd.(type) {
	case Text:
		d.send(ev, cmd.Text)

	case Ignore:
		if d.ignored.Toggle(cmd.Name) {
			d.send(ev, fmt.Sprintf("Ignoring '%s'", cmd.Name))
		} else {
			d.send(ev, fmt.Sprintf("No longer ignoring '%s'", cmd.Name))
		}

	case IgnoreList:
		names := d.ignored.Names()
		if len(names) == 0 {
			d.send(ev, "Ignore list is empty")
		} else {
			d.send(ev, "Ignored: "+strings.Join(names, ", "))
		}

	default:
		go d.execute(ev, 0, cmd)
	}
}

// execute runs one workflow command to completion. No deadline is
// imposed here; the remote client surfaces its own connection failures.
func (d *Dispatcher) execute(ev Event, attempt int, cmd Command) {
	if d.ignored.Contains(ev.From) {
		return
	}

	logger := d.log.With().Str("from", ev.From).Str("correlationId", uuid.NewString()).Logger()
	ctx := context.Background()

	switch cmd := cmd.(type) {
	case GetVN:
		vn, err := d.exec.FindVN(ctx, cmd.Title)
		if d.replyErr(ev, attempt, logger, cmd, err) {
			return
		}
		d.send(ev, formatVN(vn))

	case GetHook:
		data, err := d.exec.GetHook(ctx, cmd.Target)
		if d.replyErr(ev, attempt, logger, cmd, err) {
			return
		}
		d.send(ev, formatVNData(data))

	case SetHook:
		hook, err := d.exec.SetHook(ctx, cmd.Target, cmd.Version, cmd.Code)
		if d.replyErr(ev, attempt, logger, cmd, err) {
			return
		}
		d.send(ev, formatHookAdded(hook))

	case DelHook:
		n, err := d.exec.DelHook(ctx, cmd.Target, cmd.Version)
		if d.replyErr(ev, attempt, logger, cmd, err) {
			return
		}
		d.send(ev, formatHookDeleted(cmd.Target, cmd.Version, n))

	case DelVN:
		n, err := d.exec.DelVN(ctx, cmd.Target)
		if d.replyErr(ev, attempt, logger, cmd, err) {
			return
		}
		d.send(ev, formatVNDeleted(cmd.Target, n))

	case Refs:
		d.expandRefs(ctx, ev, attempt, logger, cmd)
	}
}

// replyErr renders a workflow failure as one chat line, except for a
// first transient failure, which is re-submitted instead. Reports
// whether the caller should stop.
func (d *Dispatcher) replyErr(ev Event, attempt int, logger zerolog.Logger, cmd Command, err error) bool {
	if err == nil {
		return false
	}
	if executor.IsTransient(err) && attempt == 0 {
		d.scheduleRetry(ev, cmd, attempt+1)
		return true
	}
	logger.Warn().Err(err).Msg("workflow failed")
	d.send(ev, err.Error())
	return true
}

// expandRefs resolves each embedded reference to its own reply line.
// References the remote cannot resolve are skipped; a transient failure
// retries once with only the not-yet-answered references, so no ref is
// expanded twice.
func (d *Dispatcher) expandRefs(ctx context.Context, ev Event, attempt int, logger zerolog.Logger, cmd Refs) {
	for i, ref := range cmd.Refs {
		results, err := d.exec.GetRemoteObject(ctx, ref.Kind, ref.ID)
		if err != nil {
			if executor.IsTransient(err) && attempt == 0 {
				d.scheduleRetry(ev, Refs{Refs: cmd.Refs[i:]}, attempt+1)
				return
			}
			logger.Warn().Err(err).Str("ref", ref.Kind.Short()).Uint64("id", ref.ID).Msg("ref expansion failed")
			continue
		}
		objs, err := results.Objects()
		if err != nil || len(objs) == 0 {
			logger.Warn().Err(err).Str("ref", ref.Kind.Short()).Uint64("id", ref.ID).Msg("ref expansion empty")
			continue
		}
		d.send(ev, formatObject(ref, objs[0]))
	}
}
