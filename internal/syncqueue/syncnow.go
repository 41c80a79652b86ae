package syncqueue

import (
	"context"
	"log/slog"
)

type SyncNowOutcome string

const (
	SyncNowAlreadyRunning SyncNowOutcome = "already_running"
	SyncNowNothingPending SyncNowOutcome = "nothing_pending"
	SyncNowItemLocked     SyncNowOutcome = "item_locked"
	SyncNowOffline        SyncNowOutcome = "offline"
	SyncNowStarted        SyncNowOutcome = "started"
	SyncNowFailed         SyncNowOutcome = "failed"
)

// SyncNowResult is the answer to a user-initiated sync. Success is false
// only when the request could not be honoured; "already running" and
// "nothing pending" are not failures for the caller to retry.
type SyncNowResult struct {
	Outcome SyncNowOutcome `json:"outcome"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
}

// SyncNow starts a sync on behalf of the user and explains what happened.
func (e *Engine) SyncNow(ctx context.Context) SyncNowResult {
	if e.IsSyncing() {
		return SyncNowResult{Outcome: SyncNowAlreadyRunning, Message: "Sincronização já em andamento"}
	}

	if _, err := e.attempts.CleanupExpired(ctx); err != nil {
		return syncNowFailed(err)
	}

	items, err := e.queue.List(ctx)
	if err != nil {
		return syncNowFailed(err)
	}
	if len(items) == 0 {
		return SyncNowResult{Outcome: SyncNowNothingPending, Success: true, Message: "Nenhum item pendente para sincronizar"}
	}

	if len(e.ProcessingIDs()) > 0 {
		return SyncNowResult{Outcome: SyncNowAlreadyRunning, Message: "Sincronização já em andamento"}
	}

	for _, it := range items {
		active, err := e.attempts.Active(ctx, it.ID)
		if err != nil {
			return syncNowFailed(err)
		}
		if active != nil {
			slog.Debug("item has an active attempt", "item_id", it.ID, "attempt_id", active.AttemptID)
			return SyncNowResult{Outcome: SyncNowItemLocked, Message: "Sincronização já em andamento para este item"}
		}
	}

	if !e.online(ctx) {
		return SyncNowResult{Outcome: SyncNowOffline, Message: "Sem conexão com a internet"}
	}

	e.ForceSync(ctx)
	return SyncNowResult{Outcome: SyncNowStarted, Success: true, Message: "Sincronização iniciada"}
}

func syncNowFailed(err error) SyncNowResult {
	slog.Error("sync now failed", "error", err)
	return SyncNowResult{Outcome: SyncNowFailed, Message: "Erro ao iniciar sincronização: " + err.Error()}
}
