// Package watcher follows the node event log and applies marketplace and
// reward events to the mirror store. It prefers the websocket stream and
// falls back to cursor polling when the stream is unavailable.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"girochain/services/achievements-gateway/mirror"
	"girochain/services/achievements-gateway/models"
	"girochain/services/achievements-gateway/nodeclient"
)

const cursorName = "watcher"

type Watcher struct {
	node         nodeclient.Client
	store        *mirror.Store
	logger       *slog.Logger
	wsURL        string
	pollInterval time.Duration
	batchSize    int
	nowFn        func() time.Time
}

// New constructs a watcher with sane defaults. wsURL may be empty to disable
// the stream and rely on polling alone.
func New(node nodeclient.Client, store *mirror.Store, wsURL string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		node:         node,
		store:        store,
		logger:       logger,
		wsURL:        strings.TrimSpace(wsURL),
		pollInterval: 5 * time.Second,
		batchSize:    100,
		nowFn:        time.Now,
	}
}

// Run consumes events until the context is cancelled. Each websocket failure
// degrades to one polling pass before the stream is retried.
func (w *Watcher) Run(ctx context.Context) {
	if w.node == nil || w.store == nil {
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		if w.wsURL != "" {
			if err := w.stream(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("event stream interrupted", slog.Any("error", err))
			}
		}
		if ctx.Err() != nil {
			return
		}
		w.pollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Watcher) stream(ctx context.Context) error {
	cursor, err := w.store.Cursor(cursorName)
	if err != nil {
		return err
	}
	url := w.wsURL + "?cursor=" + strconv.FormatUint(cursor, 10)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "watcher done")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var entry nodeclient.NodeEvent
		if err := json.Unmarshal(data, &entry); err != nil {
			w.logger.Warn("skipping malformed event", slog.Any("error", err))
			continue
		}
		cursor, err = w.consumeStreamEntry(cursor, entry)
		if err != nil {
			return err
		}
	}
}

// consumeStreamEntry applies one streamed event and advances the cursor.
// Sequences are consecutive in the node event log, so a jump means the stream
// dropped entries for us; the caller abandons the stream and the polling
// fallback refills from the saved cursor.
func (w *Watcher) consumeStreamEntry(cursor uint64, entry nodeclient.NodeEvent) (uint64, error) {
	if entry.Sequence <= cursor {
		return cursor, nil
	}
	if entry.Sequence != cursor+1 {
		return cursor, fmt.Errorf("watcher: stream gap after sequence %d, received %d", cursor, entry.Sequence)
	}
	w.apply(entry)
	if err := w.store.SaveCursor(cursorName, entry.Sequence); err != nil {
		return cursor, err
	}
	return entry.Sequence, nil
}

func (w *Watcher) pollOnce(ctx context.Context) {
	cursor, err := w.store.Cursor(cursorName)
	if err != nil {
		w.logger.Warn("load cursor", slog.Any("error", err))
		return
	}
	events, next, err := w.node.FetchEvents(ctx, cursor, w.batchSize)
	if err != nil {
		w.logger.Warn("fetch events", slog.Any("error", err))
		return
	}
	if len(events) == 0 {
		return
	}
	for _, entry := range events {
		w.apply(entry)
	}
	if err := w.store.SaveCursor(cursorName, next); err != nil {
		w.logger.Warn("save cursor", slog.Any("error", err))
	}
}

// apply projects one node event onto the mirror. Product, claim and
// transaction projections are keyed upserts, so replaying a batch after a
// crash does not duplicate rows.
func (w *Watcher) apply(entry nodeclient.NodeEvent) {
	attrs := entry.Event.Attributes
	switch entry.Event.Type {
	case "marketplace.product.created":
		id := parseUint(attrs["productId"])
		listedAt := time.Unix(parseInt(attrs["createdAt"]), 0).UTC()
		if err := w.store.UpsertProduct(id, attrs["seller"], attrs["title"], "", attrs["price"], "active", "", listedAt, nil); err != nil {
			w.logger.Warn("mirror product create", slog.Uint64("productId", id), slog.Any("error", err))
			return
		}
		if err := w.store.IncrementListings(attrs["seller"], entry.Sequence); err != nil {
			w.logger.Warn("bump listings", slog.Any("error", err))
		}
	case "marketplace.product.sold":
		id := parseUint(attrs["productId"])
		soldAt := time.Unix(parseInt(attrs["soldAt"]), 0).UTC()
		if err := w.store.UpsertProduct(id, attrs["seller"], "", "", attrs["price"], "sold", attrs["buyer"], soldAt, &soldAt); err != nil {
			w.logger.Warn("mirror product sale", slog.Uint64("productId", id), slog.Any("error", err))
			return
		}
		if err := w.store.RecordTransaction(id, attrs["seller"], attrs["buyer"], attrs["price"], entry.Sequence); err != nil {
			w.logger.Warn("record transaction", slog.Any("error", err))
		}
		if err := w.store.IncrementSales(attrs["seller"], entry.Sequence); err != nil {
			w.logger.Warn("bump sales", slog.Any("error", err))
		}
		if err := w.store.IncrementPurchases(attrs["buyer"], entry.Sequence); err != nil {
			w.logger.Warn("bump purchases", slog.Any("error", err))
		}
	case "marketplace.product.cancelled":
		id := parseUint(attrs["productId"])
		now := w.nowFn().UTC()
		if err := w.store.UpsertProduct(id, attrs["seller"], "", "", "", "cancelled", "", now, nil); err != nil {
			w.logger.Warn("mirror product cancel", slog.Uint64("productId", id), slog.Any("error", err))
		}
	case "token.reward.claimed":
		if err := w.store.RecordClaim(attrs["wallet"], attrs["kind"], attrs["amount"], models.ClaimConfirmed); err != nil {
			w.logger.Warn("mirror reward claim", slog.Any("error", err))
		}
	}
}

func parseUint(raw string) uint64 {
	value, _ := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	return value
}

func parseInt(raw string) int64 {
	value, _ := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return value
}
