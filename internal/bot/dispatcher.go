// Package bot is the single entry point for inbound user events. Every
// `(userID, text)` tuple from the transport lands in HandleText, which gates
// on bans and rate limits, routes commands to the matching, relay, and
// moderation components, and sends replies through the Messenger.
package bot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/pairline/pairline/internal/directory"
	"github.com/pairline/pairline/internal/history"
	"github.com/pairline/pairline/internal/match"
	"github.com/pairline/pairline/internal/metrics"
	"github.com/pairline/pairline/internal/moderation"
	"github.com/pairline/pairline/internal/ratelimit"
	"github.com/pairline/pairline/internal/relay"
	"github.com/pairline/pairline/internal/state"
)

// Messenger is the outbound transport capability the dispatcher consumes.
type Messenger interface {
	Send(userID, text string) error
}

// Archive receives a copy of each filed report for moderator review. It is
// optional; a nil Archive disables archival.
type Archive interface {
	Archive(ctx context.Context, reporterID, reportedID, chatID string, tail []history.Message) error
}

// Reply texts. Kept together so the surface is easy to review.
const (
	replyWelcome = "Welcome! Set your gender with /gender male or /gender female, then send /find to meet someone."
	replyHelp    = "Commands:\n" +
		"/start - register or reset your profile\n" +
		"/gender male|female - set your gender\n" +
		"/age <number> - set your age\n" +
		"/country <name> - set your country\n" +
		"/find - find a chat partner\n" +
		"/next - skip to a new partner\n" +
		"/stop - leave the current chat\n" +
		"/report - report your last partner\n" +
		"/profile - show your profile"
	replyProfileNeeded = "Please finish your profile first. Set your gender with /gender male or /gender female."
	replySearching     = "Looking for a partner... You'll be notified when someone is found."
	replyMatched       = "Partner found! Say hi. Use /next to skip or /stop to leave."
	replyAlreadyPaired = "You are already in a chat. Use /next to skip or /stop to leave."
	replyPartnerLeft   = "Your partner left the chat. Send /find to meet someone new."
	replyChatEnded     = "You left the chat. Send /find to meet someone new."
	replyNotSearching  = "You are not in a chat or a queue. Send /find to start."
	replySearchStopped = "Stopped searching. Send /find when you're ready."
	replyNoSession     = "You are not in a chat. Send /find to meet someone."
	replyNoOneToReport = "There is no recent partner to report."
	replyReported      = "Report received. Thank you."
	replyReportedBan   = "Report received. The user has been banned."
	replyLinkBlocked   = "Links and contact details are not allowed."
	replyUnreachable   = "Could not reach your partner. They may be offline; try again."
	replySlowDown      = "You're going too fast. Please wait a moment."
	replyUnknown       = "Unknown command. Send /help for the list."
)

// Dispatcher routes inbound events to the core components.
type Dispatcher struct {
	dir       *directory.Store
	coord     *match.Coordinator
	mod       *moderation.Service
	relay     *relay.Forwarder
	limiter   *ratelimit.Limiter // nil disables throttling
	archive   Archive            // nil disables report archival
	tail      *history.Buffer    // nil disables report evidence
	store     *state.Store       // nil disables persistence (tests)
	messenger Messenger
}

// Deps bundles the dispatcher's collaborators.
type Deps struct {
	Directory *directory.Store
	Coord     *match.Coordinator
	Mod       *moderation.Service
	Relay     *relay.Forwarder
	Limiter   *ratelimit.Limiter
	Archive   Archive
	Tail      *history.Buffer
	Store     *state.Store
	Messenger Messenger
}

// New creates a dispatcher.
func New(deps Deps) *Dispatcher {
	return &Dispatcher{
		dir:       deps.Directory,
		coord:     deps.Coord,
		mod:       deps.Mod,
		relay:     deps.Relay,
		limiter:   deps.Limiter,
		archive:   deps.Archive,
		tail:      deps.Tail,
		store:     deps.Store,
		messenger: deps.Messenger,
	}
}

// HandleText processes one inbound event. It never returns an error: user
// mistakes are answered with prompts and internal failures are logged.
func (d *Dispatcher) HandleText(userID, text string) {
	text = strings.TrimSpace(text)
	if userID == "" || text == "" {
		return
	}

	if _, err := d.dir.GetOrCreate(userID); err != nil {
		log.Printf("[bot] get or create %s: %v", userID, err)
		return
	}

	// The ban gate comes before everything else.
	if until, banned := d.mod.IsBanned(userID); banned {
		d.send(userID, fmt.Sprintf("You are banned until %s.", until.UTC().Format(time.RFC1123)))
		return
	}

	if strings.HasPrefix(text, "/") {
		d.handleCommand(userID, text)
		return
	}
	d.handleRelay(userID, text)
}

// HandleDisconnect tears down the user's session and queue entry when the
// transport reports them gone. The partner is notified.
func (d *Dispatcher) HandleDisconnect(userID string) {
	partner, _, ok := d.coord.EndSession(userID)
	if ok {
		d.send(partner, replyPartnerLeft)
	}
	dequeued := d.coord.Cancel(userID)
	if ok || dequeued {
		d.persist()
	}
	d.updateGauges()
}

func (d *Dispatcher) handleCommand(userID, text string) {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/start":
		d.cmdStart(userID)
	case "/gender":
		d.cmdGender(userID, args)
	case "/age":
		d.cmdAge(userID, args)
	case "/country":
		d.cmdCountry(userID, args)
	case "/find":
		d.cmdFind(userID)
	case "/next":
		d.cmdNext(userID)
	case "/stop":
		d.cmdStop(userID)
	case "/report":
		d.cmdReport(userID)
	case "/profile":
		d.cmdProfile(userID)
	case "/help":
		d.send(userID, replyHelp)
	default:
		d.send(userID, replyUnknown)
	}
}

// cmdStart registers a new user or resets an existing profile. Any active
// session or queue entry is torn down first so the fresh profile never
// coexists with stale matching state.
func (d *Dispatcher) cmdStart(userID string) {
	if partner, _, ok := d.coord.EndSession(userID); ok {
		d.send(partner, replyPartnerLeft)
	}
	d.coord.Cancel(userID)

	if err := d.dir.Reset(userID); err != nil {
		log.Printf("[bot] reset %s: %v", userID, err)
	}
	d.persist()
	d.updateGauges()
	d.send(userID, replyWelcome)
}

func (d *Dispatcher) cmdGender(userID string, args []string) {
	if len(args) == 0 {
		d.send(userID, "Usage: /gender male or /gender female")
		return
	}
	g := directory.ParseGender(args[0])
	if g == directory.GenderUnset {
		d.send(userID, fmt.Sprintf("Sorry, %q is not a gender I know. Use male or female.", args[0]))
		return
	}
	if err := d.dir.SetGender(userID, g); err != nil {
		log.Printf("[bot] set gender %s: %v", userID, err)
		return
	}
	// A queued user's bucket was chosen from the old gender; re-entering the
	// queue picks the right one.
	if d.coord.Cancel(userID) {
		d.send(userID, "Gender updated. You left the queue; send /find to search again.")
	} else {
		d.send(userID, "Gender set to "+string(g)+".")
	}
	d.persist()
	d.updateGauges()
}

func (d *Dispatcher) cmdAge(userID string, args []string) {
	if len(args) == 0 {
		d.send(userID, "Usage: /age <number>")
		return
	}
	age, err := strconv.Atoi(args[0])
	if err != nil {
		d.send(userID, fmt.Sprintf("%q doesn't look like an age. Send a number, like /age 25.", args[0]))
		return
	}
	if err := d.dir.SetAge(userID, age); err != nil {
		d.send(userID, "That age is out of range.")
		return
	}
	d.persist()
	d.send(userID, fmt.Sprintf("Age set to %d.", age))
}

func (d *Dispatcher) cmdCountry(userID string, args []string) {
	if len(args) == 0 {
		d.send(userID, "Usage: /country <name>")
		return
	}
	country := strings.Join(args, " ")
	if err := d.dir.SetCountry(userID, country); err != nil {
		log.Printf("[bot] set country %s: %v", userID, err)
		return
	}
	d.persist()
	d.send(userID, "Country set to "+country+".")
}

func (d *Dispatcher) cmdFind(userID string) {
	if !d.dir.IsComplete(userID) {
		d.send(userID, replyProfileNeeded)
		return
	}
	if !d.limiter.Allow(context.Background(), userID, ratelimit.RuleFind) {
		d.send(userID, replySlowDown)
		return
	}

	res, err := d.coord.TryMatch(userID)
	if err != nil {
		log.Printf("[bot] try match %s: %v", userID, err)
		return
	}
	d.persist()
	d.updateGauges()

	switch res.Outcome {
	case match.Paired:
		metrics.MatchesTotal.Inc()
		d.send(userID, replyMatched)
		d.send(res.PartnerID, replyMatched)
	case match.Waiting:
		d.send(userID, replySearching)
	case match.AlreadyPaired:
		d.send(userID, replyAlreadyPaired)
	}
}

// cmdNext skips: the current session (if any) is torn down and the skipper
// immediately re-enters matching, all as one operation.
func (d *Dispatcher) cmdNext(userID string) {
	if !d.dir.IsComplete(userID) {
		d.send(userID, replyProfileNeeded)
		return
	}
	if !d.limiter.Allow(context.Background(), userID, ratelimit.RuleFind) {
		d.send(userID, replySlowDown)
		return
	}

	res, err := d.coord.Skip(userID)
	if err != nil {
		log.Printf("[bot] skip %s: %v", userID, err)
		return
	}
	d.persist()
	d.updateGauges()

	if res.FormerPartner != "" {
		if res.PartnerResult != nil {
			// Policy re-queued the skipped partner too.
			switch res.PartnerResult.Outcome {
			case match.Paired:
				metrics.MatchesTotal.Inc()
				d.send(res.FormerPartner, replyPartnerLeft)
				d.send(res.FormerPartner, replyMatched)
				d.send(res.PartnerResult.PartnerID, replyMatched)
			case match.Waiting:
				d.send(res.FormerPartner, replyPartnerLeft+" (Searching for a new partner for you.)")
			}
		} else {
			d.send(res.FormerPartner, replyPartnerLeft)
		}
	}

	switch res.Rematch.Outcome {
	case match.Paired:
		metrics.MatchesTotal.Inc()
		d.send(userID, replyMatched)
		d.send(res.Rematch.PartnerID, replyMatched)
	case match.Waiting:
		d.send(userID, replySearching)
	}
}

func (d *Dispatcher) cmdStop(userID string) {
	partner, _, ok := d.coord.EndSession(userID)
	if ok {
		d.persist()
		d.updateGauges()
		d.send(partner, replyPartnerLeft)
		d.send(userID, replyChatEnded)
		return
	}
	if d.coord.Cancel(userID) {
		d.persist()
		d.updateGauges()
		d.send(userID, replySearchStopped)
		return
	}
	d.send(userID, replyNotSearching)
}

func (d *Dispatcher) cmdReport(userID string) {
	if !d.limiter.Allow(context.Background(), userID, ratelimit.RuleReport) {
		d.send(userID, replySlowDown)
		return
	}

	outcome, err := d.mod.FileReport(userID)
	if err != nil {
		log.Printf("[bot] report by %s: %v", userID, err)
		return
	}

	switch outcome.Kind {
	case moderation.NothingToReport:
		d.send(userID, replyNoOneToReport)
		return
	case moderation.Recorded:
		metrics.ReportsTotal.Inc()
		d.send(userID, replyReported)
	case moderation.Banned:
		metrics.ReportsTotal.Inc()
		metrics.BansTotal.Inc()
		d.send(userID, replyReportedBan)
		d.send(outcome.TargetID, fmt.Sprintf("You have been banned until %s due to reports from other users.",
			outcome.Until.UTC().Format(time.RFC1123)))
		// A banned user may be mid-session or queued; clear them out.
		if partner, _, ok := d.coord.EndSession(outcome.TargetID); ok {
			d.send(partner, replyPartnerLeft)
		}
		d.coord.Cancel(outcome.TargetID)
		d.updateGauges()
	}

	d.persist()
	d.archiveReport(userID, outcome.TargetID)
}

// archiveReport copies the report and the chat tail to the archive, then
// releases the tail. Archive failures are logged; the report already counted.
func (d *Dispatcher) archiveReport(reporterID, reportedID string) {
	chatID, ok := d.coord.LastChatID(reporterID)
	if !ok {
		return
	}
	var messages []history.Message
	if d.tail != nil {
		messages = d.tail.Tail(chatID)
	}
	if d.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.archive.Archive(ctx, reporterID, reportedID, chatID, messages); err != nil {
			log.Printf("[bot] archive report %s -> %s: %v", reporterID, reportedID, err)
		}
	}
	if d.tail != nil {
		d.tail.Drop(chatID)
	}
}

func (d *Dispatcher) cmdProfile(userID string) {
	u, ok := d.dir.Get(userID)
	if !ok {
		return
	}
	gender := string(u.Gender)
	if u.Gender == directory.GenderUnset {
		gender = "not set"
	}
	age := "not set"
	if u.Age > 0 {
		age = strconv.Itoa(u.Age)
	}
	country := u.Country
	if country == "" {
		country = "not set"
	}
	d.send(userID, fmt.Sprintf("Your profile:\nGender: %s\nAge: %s\nCountry: %s", gender, age, country))
}

func (d *Dispatcher) handleRelay(userID, text string) {
	if !d.limiter.Allow(context.Background(), userID, ratelimit.RuleRelay) {
		d.send(userID, replySlowDown)
		return
	}

	res := d.relay.Relay(userID, text)
	switch res.Outcome {
	case relay.Delivered:
		metrics.MessagesTotal.WithLabelValues("delivered").Inc()
	case relay.NoSession:
		metrics.MessagesTotal.WithLabelValues("no_session").Inc()
		d.send(userID, replyNoSession)
	case relay.Blocked:
		metrics.MessagesTotal.WithLabelValues("blocked").Inc()
		d.send(userID, replyLinkBlocked)
	case relay.Invalid:
		metrics.MessagesTotal.WithLabelValues("invalid").Inc()
		d.send(userID, "Message not sent: "+res.Reason)
	case relay.Undelivered:
		metrics.MessagesTotal.WithLabelValues("undelivered").Inc()
		d.send(userID, replyUnreachable)
	}
}

// Flush writes a snapshot immediately. Called on shutdown so the last
// mutations are on disk before the process exits.
func (d *Dispatcher) Flush() {
	d.persist()
}

// persist snapshots the live state and writes it out. Failures are logged;
// the in-memory state stays authoritative.
func (d *Dispatcher) persist() {
	if d.store == nil {
		return
	}
	queues, active, lastPartner := d.coord.Snapshot()
	snap := &state.Snapshot{
		Users:       d.dir.Snapshot(),
		Queues:      queues,
		Active:      active,
		LastPartner: lastPartner,
	}
	if err := d.store.Save(snap); err != nil {
		metrics.SnapshotFailures.Inc()
		log.Printf("[bot] save state: %v", err)
	}
}

func (d *Dispatcher) updateGauges() {
	metrics.QueueSize.Set(float64(d.coord.QueueLen()))
	metrics.ActiveChats.Set(float64(d.coord.SessionCount()))
}

func (d *Dispatcher) send(userID, text string) {
	if err := d.messenger.Send(userID, text); err != nil {
		log.Printf("[bot] send to %s: %v", userID, err)
	}
}
