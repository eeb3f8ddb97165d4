package cache

// GET /api/messages/last
// There is exactly one slot, so one key.
const lastMessageKey = "message:last"

func LastMessageKey() string {
	return lastMessageKey
}
