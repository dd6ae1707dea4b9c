package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/smancode/sman-sub006/internal/event"
	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/pkg/types"
)

// FramePusher delivers frames to the client connection bound to a
// session. Implemented by the websocket registry.
type FramePusher interface {
	PushPart(sessionID string, part types.Part) error
	PushComplete(sessionID string) error
	PushError(sessionID, message string) error
	CloseSession(sessionID string)
}

// Runner produces one assistant message for the latest user message.
// Parts are streamed through emit as they are produced; the returned
// message holds the final accumulated parts.
type Runner interface {
	RunRound(ctx context.Context, sess *types.Session, userMsg *types.Message, emit func(types.Part)) (*types.Message, error)
}

// Coordinator enforces at-most-one running round per session. New input
// for a busy session is appended to the history and picked up by the
// running round's continuation check, so no input is lost and no second
// round ever runs concurrently for the same session.
type Coordinator struct {
	store  *Store
	files  *FileStore
	pool   *WorkerPool
	runner Runner
	pusher FramePusher
	bus    *event.Bus

	mu       sync.Mutex
	inflight map[string]struct{}
	rounds   sync.WaitGroup
}

// NewCoordinator creates a coordinator. files and bus may be nil.
func NewCoordinator(store *Store, files *FileStore, pool *WorkerPool, runner Runner, pusher FramePusher, bus *event.Bus) *Coordinator {
	return &Coordinator{
		store:    store,
		files:    files,
		pool:     pool,
		runner:   runner,
		pusher:   pusher,
		bus:      bus,
		inflight: make(map[string]struct{}),
	}
}

// Processing reports whether a round is currently running for the session.
func (c *Coordinator) Processing(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[sessionID]
	return ok
}

// claim marks the session in-flight. Returns false if it already was.
func (c *Coordinator) claim(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[sessionID]; ok {
		return false
	}
	c.inflight[sessionID] = struct{}{}
	return true
}

func (c *Coordinator) release(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, sessionID)
}

// Submit appends the user input to the session and starts a round
// unless one is already running. When the session is busy the input
// stays in the history for the running round's continuation check.
// Returns ErrSaturated when no worker is free.
func (c *Coordinator) Submit(ctx context.Context, sess *types.Session, input, kind string) error {
	userMsg := types.NewUserMessage(sess.ID(), input)
	userMsg.Kind = kind
	sess.AddMessage(userMsg)
	c.publish(event.Event{Type: event.MessageCreated, Data: event.MessageData{
		SessionID: sess.ID(), MessageID: userMsg.ID, Role: string(userMsg.Role),
	}})
	c.persist(ctx, sess)

	if !c.claim(sess.ID()) {
		logging.ForSession(sess.ID()).Debug().Msg("round in flight, input queued for continuation")
		return nil
	}

	c.rounds.Add(1)
	err := c.pool.Submit(func() {
		defer c.rounds.Done()
		c.runRound(context.WithoutCancel(ctx), sess)
	})
	if err != nil {
		c.rounds.Done()
		c.release(sess.ID())
		if pushErr := c.pusher.PushError(sess.ID(), "server is at capacity, try again later"); pushErr != nil {
			logging.ForSession(sess.ID()).Warn().Err(pushErr).Msg("capacity error not delivered")
		}
		return fmt.Errorf("submit round: %w", err)
	}
	return nil
}

// runRound executes rounds for the session until no unanswered user
// message remains, then completes and closes the connection.
func (c *Coordinator) runRound(ctx context.Context, sess *types.Session) {
	log := logging.ForSession(sess.ID())

	for {
		userMsg := sess.LatestUserMessage()
		if userMsg == nil {
			c.release(sess.ID())
			break
		}

		sess.SetStatus(types.SessionProcessing)
		c.publish(event.Event{Type: event.RoundStarted, Data: event.SessionData{SessionID: sess.ID()}})
		log.Info().Str("messageId", userMsg.ID).Msg("round started")

		emit := func(p types.Part) {
			if err := c.pusher.PushPart(sess.ID(), p); err != nil {
				log.Debug().Err(err).Msg("part not delivered")
			}
			c.publish(event.Event{Type: event.PartUpdated, Data: event.PartData{
				SessionID: sess.ID(), PartID: p.PartID(), PartType: string(p.PartType()),
			}})
		}

		assistantMsg, err := c.runner.RunRound(ctx, sess, userMsg, emit)
		if assistantMsg != nil {
			sess.AddMessage(assistantMsg)
			c.publish(event.Event{Type: event.MessageCreated, Data: event.MessageData{
				SessionID: sess.ID(), MessageID: assistantMsg.ID, Role: string(assistantMsg.Role),
			}})
		}
		c.publish(event.Event{Type: event.RoundFinished, Data: event.SessionData{SessionID: sess.ID()}})
		c.persist(ctx, sess)

		if err != nil {
			log.Error().Err(err).Msg("round failed")
			if pushErr := c.pusher.PushError(sess.ID(), err.Error()); pushErr != nil {
				log.Debug().Err(pushErr).Msg("error frame not delivered")
			}
		} else {
			log.Info().Str("messageId", userMsg.ID).Msg("round finished")
			if pushErr := c.pusher.PushComplete(sess.ID()); pushErr != nil {
				log.Debug().Err(pushErr).Msg("complete frame not delivered")
			}
		}

		// Release before inspecting the tail. A submit racing this
		// check either finds the session free and starts its own
		// round, or already queued the message this round re-claims
		// below. Input that arrived while the round ran shows up as a
		// user message after the one just answered.
		c.release(sess.ID())
		if !sess.HasUserMessageAfter(userMsg.ID) {
			break
		}
		if !c.claim(sess.ID()) {
			// A racing submit claimed the session; its round owns the
			// rest of the conversation, including the close.
			return
		}
		log.Info().Msg("continuing with input received mid-round")
	}

	sess.SetStatus(types.SessionCompleted)
	c.publish(event.Event{Type: event.SessionCompleted, Data: event.SessionData{SessionID: sess.ID()}})
	c.persist(ctx, sess)
	c.pusher.CloseSession(sess.ID())
}

// Drain waits until all in-flight rounds finish or the context expires.
func (c *Coordinator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.rounds.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) publish(ev event.Event) {
	if c.bus != nil {
		c.bus.Publish(ev)
	}
}

func (c *Coordinator) persist(ctx context.Context, sess *types.Session) {
	if c.files == nil {
		return
	}
	if err := c.files.Save(ctx, sess); err != nil {
		logging.ForSession(sess.ID()).Warn().Err(err).Msg("session not persisted")
	}
}
