package services

import "minigames-backend/internal/models"

// Broadcaster receives crash round events after the engine lock is released.
type Broadcaster interface {
	BroadcastRoundStart(status models.CrashStatus)
	BroadcastTick(status models.CrashStatus)
	BroadcastCashOut(roundID string, bet models.CrashBet)
	BroadcastCrash(result models.CrashRoundResult)
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastRoundStart(models.CrashStatus) {}
func (noopBroadcaster) BroadcastTick(models.CrashStatus) {}
func (noopBroadcaster) BroadcastCashOut(string, models.CrashBet) {}
func (noopBroadcaster) BroadcastCrash(models.CrashRoundResult) {}
