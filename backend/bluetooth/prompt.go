package bluetooth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

// ErrInterrupted is returned by a prompt the user quit, as opposed to one
// answered negatively.
var ErrInterrupted = errors.New("bluetooth: prompt interrupted")

type RequestKind string

const (
	RequestPinCode       RequestKind = "pincode"
	RequestPasskey       RequestKind = "passkey"
	RequestConfirmation  RequestKind = "confirmation"
	RequestAuthorization RequestKind = "authorization"
	RequestService       RequestKind = "service"
	DisplayPinCode       RequestKind = "display-pincode"
	DisplayPasskey       RequestKind = "display-passkey"
	NoticeCancelled      RequestKind = "cancelled"
)

// ReplyMethod tells a front-end what kind of answer a request expects.
type ReplyMethod string

const (
	ReplyNone   ReplyMethod = "none"
	ReplyYesNo  ReplyMethod = "yes-no"
	ReplyString ReplyMethod = "string"
	ReplyNumber ReplyMethod = "number"
)

// Request describes one agent interaction.
type Request struct {
	ID      string      `json:"id"`
	Kind    RequestKind `json:"kind"`
	Reply   ReplyMethod `json:"reply"`
	Device  string      `json:"device"`
	Path    string      `json:"path,omitempty"`
	Message string      `json:"message"`
	Pincode string      `json:"pincode,omitempty"`
	Passkey uint32      `json:"passkey,omitempty"`
	Entered uint16      `json:"entered,omitempty"`
	Service string      `json:"service,omitempty"`
}

// Prompter is the interactive front-end of the agent. Reads block until the
// user answers, ctx is cancelled, or the user quits; the last two return
// ErrInterrupted.
type Prompter interface {
	ReadString(ctx context.Context, req Request) (string, error)
	// ReadNumber asks again until the answer parses as an integer.
	ReadNumber(ctx context.Context, req Request) (int64, error)
	YesOrNo(ctx context.Context, req Request) (bool, error)
	// Notify shows a message that needs no answer.
	Notify(req Request)
}

// TerminalPrompter asks on a line-oriented terminal.
type TerminalPrompter struct {
	in    io.Reader
	out   io.Writer
	lines chan string
	once  sync.Once
	mu    sync.Mutex
}

func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:    in,
		out:   out,
		lines: make(chan string),
	}
}

func (p *TerminalPrompter) scan() {
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	close(p.lines)
}

func (p *TerminalPrompter) readLine(ctx context.Context, prompt string) (string, error) {
	p.once.Do(func() { go p.scan() })

	p.mu.Lock()
	fmt.Fprint(p.out, prompt)
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		p.print("")
		return "", ErrInterrupted
	case line, ok := <-p.lines:
		if !ok {
			// closed input is a quit
			return "", ErrInterrupted
		}
		return line, nil
	}
}

func (p *TerminalPrompter) print(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, msg)
}

func (p *TerminalPrompter) ReadString(ctx context.Context, req Request) (string, error) {
	return p.readLine(ctx, req.Message)
}

func (p *TerminalPrompter) ReadNumber(ctx context.Context, req Request) (int64, error) {
	for {
		line, err := p.readLine(ctx, req.Message)
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
		if err == nil {
			return n, nil
		}
		p.print("Please enter a number.")
	}
}

func (p *TerminalPrompter) YesOrNo(ctx context.Context, req Request) (bool, error) {
	for {
		line, err := p.readLine(ctx, req.Message+"(yes or no) ")
		if err != nil {
			return false, err
		}
		if answer, ok := parseYesNo(line); ok {
			return answer, nil
		}
		p.print("Please answer yes or no.")
	}
}

func (p *TerminalPrompter) Notify(req Request) {
	p.print(req.Message)
}

func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "true":
		return true, true
	case "n", "no", "false":
		return false, true
	}
	return false, false
}

type pendingRequest struct {
	req Request
	// reply is unbuffered: a nil Reply means ask took the answer.
	reply chan string
	quit  chan struct{}
	once  sync.Once
	// done is closed when ask returns.
	done chan struct{}
}

// APIPrompter publishes requests as events and waits for answers posted
// through Reply or Quit.
type APIPrompter struct {
	publish func(events.Event)
	pending *xsync.MapOf[string, *pendingRequest]
}

func NewAPIPrompter(publish func(events.Event)) *APIPrompter {
	return &APIPrompter{
		publish: publish,
		pending: xsync.NewMapOf[string, *pendingRequest](),
	}
}

func (p *APIPrompter) emit(typ string, req Request) {
	if p.publish != nil {
		p.publish(events.Event{Type: typ, Data: req})
	}
}

func (p *APIPrompter) ask(ctx context.Context, req Request) (string, error) {
	pr := &pendingRequest{
		req:   req,
		reply: make(chan string),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	p.pending.Store(req.ID, pr)
	defer func() {
		p.pending.Delete(req.ID)
		close(pr.done)
	}()

	p.emit(events.TypeAgentRequest, req)
	select {
	case <-ctx.Done():
		p.emit(events.TypeAgentCancelled, req)
		return "", ErrInterrupted
	case <-pr.quit:
		p.emit(events.TypeAgentCancelled, req)
		return "", ErrInterrupted
	case answer := <-pr.reply:
		p.emit(events.TypeAgentResolved, req)
		return answer, nil
	}
}

func (p *APIPrompter) ReadString(ctx context.Context, req Request) (string, error) {
	req.Reply = ReplyString
	return p.ask(ctx, req)
}

func (p *APIPrompter) ReadNumber(ctx context.Context, req Request) (int64, error) {
	req.Reply = ReplyNumber
	answer, err := p.ask(ctx, req)
	if err != nil {
		return 0, err
	}
	// Reply already checked the format.
	return strconv.ParseInt(strings.TrimSpace(answer), 10, 64)
}

func (p *APIPrompter) YesOrNo(ctx context.Context, req Request) (bool, error) {
	req.Reply = ReplyYesNo
	answer, err := p.ask(ctx, req)
	if err != nil {
		return false, err
	}
	yes, _ := parseYesNo(answer)
	return yes, nil
}

func (p *APIPrompter) Notify(req Request) {
	req.Reply = ReplyNone
	p.emit(events.TypeAgentRequest, req)
}

// Reply answers a pending request. Answers that do not fit the expected
// reply kind are refused and the request stays pending.
func (p *APIPrompter) Reply(id, answer string) error {
	pr, ok := p.pending.Load(id)
	if !ok {
		return &RequestNotFoundError{ID: id}
	}
	switch pr.req.Reply {
	case ReplyNumber:
		if _, err := strconv.ParseInt(strings.TrimSpace(answer), 10, 64); err != nil {
			return &ValidationError{Field: "answer", Reason: "a number is expected"}
		}
	case ReplyYesNo:
		if _, ok := parseYesNo(answer); !ok {
			return &ValidationError{Field: "answer", Reason: "yes or no is expected"}
		}
	}
	select {
	case pr.reply <- answer:
		return nil
	case <-pr.done:
		// cancelled, quit or answered meanwhile
		return &RequestNotFoundError{ID: id}
	}
}

// Quit interrupts a pending request.
func (p *APIPrompter) Quit(id string) error {
	pr, ok := p.pending.Load(id)
	if !ok {
		return &RequestNotFoundError{ID: id}
	}
	pr.once.Do(func() { close(pr.quit) })
	logger.Debug("[bluetooth] agent request %s quit", id)
	return nil
}

// Pending lists the requests waiting for an answer, oldest first.
func (p *APIPrompter) Pending() []Request {
	reqs := []Request{}
	p.pending.Range(func(_ string, pr *pendingRequest) bool {
		reqs = append(reqs, pr.req)
		return true
	})
	slices.SortFunc(reqs, func(a, b Request) int { return strings.Compare(a.ID, b.ID) })
	return reqs
}
