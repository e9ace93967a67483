// Package agents provides the player data model and population dynamics.
package agents

import (
	"github.com/talgya/tycoon/internal/economy"
)

// Agent is a registered economic participant.
type Agent struct {
	ID         string       `db:"id" json:"id"`
	Name       string       `db:"name" json:"name"`
	APIKey     string       `db:"api_key" json:"-"`
	WebhookURL string       `db:"webhook_url" json:"webhook_url,omitempty"`
	Balance    int64        `db:"balance" json:"balance"`
	Tier       economy.Tier `db:"tier" json:"tier"`
	Wealth     int64        `db:"wealth" json:"wealth"`
	Bankrupt   bool         `db:"bankrupt" json:"bankrupt"`
	Season     int          `db:"season" json:"season"`
	CreatedAt  int64        `db:"created_at" json:"created_at"`
}

// Standing is one row of the ranking snapshot.
type Standing struct {
	Rank    int          `json:"rank"`
	AgentID string       `json:"agent_id"`
	Name    string       `json:"name"`
	Wealth  int64        `json:"wealth"`
	Tier    economy.Tier `json:"tier"`
}
