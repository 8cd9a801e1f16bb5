package activity

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	feedBacklog      = 20
	feedBuffer       = 64
	feedKeepAlive    = 30 * time.Second
	maxRecentRequest = 100
)

// Handler exposes the activity feed over HTTP.
type Handler struct {
	bus       *Bus
	logger    *slog.Logger
	keepAlive time.Duration
}

// NewHandler builds an activity HTTP handler.
func NewHandler(bus *Bus, logger *slog.Logger) *Handler {
	return &Handler{bus: bus, logger: logger, keepAlive: feedKeepAlive}
}

// Recent returns the latest events as JSON, newest first.
func (h *Handler) Recent(c *fiber.Ctx) error {
	limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(feedBacklog)))
	if err != nil || limit <= 0 {
		limit = feedBacklog
	}
	if limit > maxRecentRequest {
		limit = maxRecentRequest
	}
	events, err := h.bus.Recent(c.UserContext(), limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"events": events})
}

// feedStream is one client's view of the bus: the backlog oldest first and
// the live events published since subscribing.
type feedStream struct {
	backlog     []Event
	live        chan Event
	lastID      int64
	unsubscribe func()
}

// openStream subscribes before reading the backlog so an event published in
// between lands in at least one of the two; fresh drops the duplicates.
func (h *Handler) openStream(ctx context.Context) (*feedStream, error) {
	s := &feedStream{live: make(chan Event, feedBuffer)}
	s.unsubscribe = h.bus.Subscribe(func(_ context.Context, e Event) error {
		select {
		case s.live <- e:
		default:
		}
		return nil
	})

	recent, err := h.bus.Recent(ctx, feedBacklog)
	if err != nil {
		s.unsubscribe()
		return nil, err
	}
	s.backlog = make([]Event, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		s.backlog = append(s.backlog, recent[i])
		s.lastID = max(s.lastID, recent[i].ID)
	}
	return s, nil
}

// fresh reports whether a live event is not already part of the backlog.
func (s *feedStream) fresh(e Event) bool {
	return e.ID > s.lastID
}

// Feed streams events as server-sent events: the recent backlog oldest
// first, then live events until the client goes away. Events published while
// a slow client's buffer is full are dropped for that client.
func (h *Handler) Feed(c *fiber.Ctx) error {
	stream, err := h.openStream(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")

	keepAlive := h.keepAlive
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stream.unsubscribe()

		for _, e := range stream.backlog {
			if err := writeEvent(w, e); err != nil {
				return
			}
		}
		if err := w.Flush(); err != nil {
			return
		}

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case e := <-stream.live:
				if !stream.fresh(e) {
					continue
				}
				if err := writeEvent(w, e); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": keepalive\n\n"); err != nil {
					return
				}
			}
			if err := w.Flush(); err != nil {
				h.logger.Debug("feed client disconnected", "error", err)
				return
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
