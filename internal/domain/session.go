package domain

// SessionKey identifies one conversation's mutable state.
type SessionKey struct {
	ChatID int64 `bson:"chat_id" json:"chat_id"`
	UserID int64 `bson:"user_id" json:"user_id"`
}

// Session holds the per-conversation selection state. An empty
// SelectedProductID means no product is selected.
type Session struct {
	ChatID            int64  `bson:"chat_id" json:"chat_id"`
	UserID            int64  `bson:"user_id" json:"user_id"`
	SelectedProductID string `bson:"selected_product_id" json:"selected_product_id"`
}

// Key returns the session's identifying key.
func (s Session) Key() SessionKey {
	return SessionKey{ChatID: s.ChatID, UserID: s.UserID}
}

// HasSelection reports whether a product is currently selected.
func (s Session) HasSelection() bool {
	return s.SelectedProductID != ""
}
