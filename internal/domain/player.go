package domain

import "time"

// PlayerStatusAdded marks a roster entry whose friend relationship the
// collaborator confirmed.
const PlayerStatusAdded = "added"

// Player is a roster entry: a secondary external account a bot has friended.
// An entry exists only after the collaborator confirmed the relationship.
type Player struct {
	ID        int64     `json:"id"`
	BotUID    string    `json:"bot_uid"`
	BotID     int64     `json:"bot_id"`
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	Level     string    `json:"level"`
	AddedAt   time.Time `json:"added_at"`
	ExpiresAt time.Time `json:"expiry_date"`
	Duration  string    `json:"duration"` // Original duration token, e.g. "7d"
	Status    string    `json:"status"`
}

// PlayerRepository defines data access for roster entries
type PlayerRepository interface {
	Create(player *Player) error
	GetByID(id int64) (*Player, error)
	Delete(id int64) error
	List() ([]*Player, error)
	ListByBotUID(botUID string) ([]*Player, error)
	GetByBotAndUID(botUID, playerUID string) (*Player, error)
	DeleteByBotUID(botUID string) error
}

// Link is simple reference data shown to tenants
type Link struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkRepository defines data access for links
type LinkRepository interface {
	Create(link *Link) error
	Delete(id int64) error
	List() ([]*Link, error)
}
