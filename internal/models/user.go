package models

// UserAccount is the persisted ledger entry of a player.
type UserAccount struct {
	ID    string  `json:"id" redis:"id"`
	Coins float64 `json:"coins" redis:"coins"`
}
