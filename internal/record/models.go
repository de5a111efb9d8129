package record

import "time"

// Result is the body of POST /api/v1/record/result_save. Distance is meters,
// Time is seconds.
type Result struct {
	UserID   string  `json:"userId"`
	PartyID  string  `json:"partyId"`
	Distance float64 `json:"distance"`
	Time     int64   `json:"time"`
	Kcal     float64 `json:"kcal"`
}

type SavedResult struct {
	ID string `json:"id"`
	Result
	CreatedAt time.Time `json:"createdAt"`
}
